package utils

import (
	"reflect"

	"github.com/benbjohnson/immutable"
)

// PointerHasher is a generic hasher for pointer-like values.
type PointerHasher[T any] struct{}

// Hash computes the uint32 hash of hashable pointer v.
func (PointerHasher[T]) Hash(v T) uint32 {
	p := reflect.ValueOf(v).Pointer()
	return uint32(p ^ (p >> 32))
}

// Equal checks equality between two hashable pointers.
func (PointerHasher[T]) Equal(a, b T) bool {
	return any(a) == any(b)
}

var _ immutable.Hasher[*int] = PointerHasher[*int]{}

// IntHasher hashes integer-like keys, including named integer types that the
// default immutable hasher rejects.
type IntHasher[T ~int | ~int32 | ~int64 | ~uint32] struct{}

func (IntHasher[T]) Hash(v T) uint32 {
	u := uint64(v)
	return uint32(u ^ (u >> 32))
}

func (IntHasher[T]) Equal(a, b T) bool {
	return a == b
}

// HashCombine uses the C++ boost algorithm for combining multiple hash values.
func HashCombine(hs ...uint32) (seed uint32) {
	for _, v := range hs {
		seed = v + 0x9e3779b9 + (seed << 6) + (seed >> 2)
	}

	return
}
