// Package wholeprogram summarizes the per-method analysis results of a
// scope into immutable snapshots of field, return and parameter values, and
// drives the refinement of those snapshots to a fixpoint.
package wholeprogram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/benbjohnson/immutable"

	"github.com/cs-au-dk/constprop/analysis/ir"
	L "github.com/cs-au-dk/constprop/analysis/lattice"
	"github.com/cs-au-dk/constprop/utils"
)

// Param identifies a parameter register of a method.
type Param struct {
	Method *ir.Method
	Index  int
}

func (p Param) String() string {
	return fmt.Sprintf("%s#%d", p.Method, p.Index)
}

type paramHasher struct{}

func (paramHasher) Hash(p Param) uint32 {
	return utils.HashCombine(utils.PointerHasher[*ir.Method]{}.Hash(p.Method), uint32(p.Index))
}

func (paramHasher) Equal(a, b Param) bool {
	return a == b
}

// State is an immutable whole-program snapshot. Only constant summaries are
// stored; everything absent is T. A State is safe for concurrent reads.
type State struct {
	fields  *immutable.Map[*ir.Field, L.Element]
	returns *immutable.Map[*ir.Method, L.Element]
	params  *immutable.Map[Param, L.Element]
}

// Seed is the snapshot without any knowledge.
func Seed() *State {
	return &State{
		fields:  immutable.NewMap[*ir.Field, L.Element](utils.PointerHasher[*ir.Field]{}),
		returns: immutable.NewMap[*ir.Method, L.Element](utils.PointerHasher[*ir.Method]{}),
		params:  immutable.NewMap[Param, L.Element](paramHasher{}),
	}
}

func lookup[K any](m *immutable.Map[K, L.Element], k K) L.Element {
	if v, ok := m.Get(k); ok {
		return v
	}
	return L.Top
}

// FieldValue is the summary of every value f may hold when read outside
// its tracking initializer.
func (s *State) FieldValue(f *ir.Field) L.Element {
	return lookup(s.fields, f)
}

// ReturnValue is the summary of the values m returns.
func (s *State) ReturnValue(m *ir.Method) L.Element {
	return lookup(s.returns, m)
}

// ArgumentValue is the summary of the i'th argument m receives.
func (s *State) ArgumentValue(m *ir.Method, i int) L.Element {
	return lookup(s.params, Param{m, i})
}

// ConstantFields counts fields with a constant summary.
func (s *State) ConstantFields() int { return s.fields.Len() }

// ConstantMethods counts methods with a constant return summary.
func (s *State) ConstantMethods() int { return s.returns.Len() }

// ConstantParams counts parameters with a constant summary.
func (s *State) ConstantParams() int { return s.params.Len() }

// withField etc. only store constants, keeping absent and T equivalent.

func (s *State) withField(f *ir.Field, v L.Element) *State {
	if !v.IsConstant() {
		return s
	}
	return &State{s.fields.Set(f, v), s.returns, s.params}
}

func (s *State) withReturn(m *ir.Method, v L.Element) *State {
	if !v.IsConstant() {
		return s
	}
	return &State{s.fields, s.returns.Set(m, v), s.params}
}

func (s *State) withParam(p Param, v L.Element) *State {
	if !v.IsConstant() {
		return s
	}
	return &State{s.fields, s.returns, s.params.Set(p, v)}
}

func mapLeq[K any](m1, m2 *immutable.Map[K, L.Element]) bool {
	for iter := m2.Iterator(); !iter.Done(); {
		k, v2, _ := iter.Next()
		if v1, ok := m1.Get(k); !ok || !v1.Leq(v2) {
			return false
		}
	}
	return true
}

// Leq holds when s1 is at least as precise as s2 everywhere.
func (s1 *State) Leq(s2 *State) bool {
	return mapLeq(s1.fields, s2.fields) &&
		mapLeq(s1.returns, s2.returns) &&
		mapLeq(s1.params, s2.params)
}

// Equal compares two snapshots pointwise.
func (s1 *State) Equal(s2 *State) bool {
	return s1.fields.Len() == s2.fields.Len() &&
		s1.returns.Len() == s2.returns.Len() &&
		s1.params.Len() == s2.params.Len() &&
		s1.Leq(s2) && s2.Leq(s1)
}

type entry struct {
	key string
	v   L.Element
}

func entries[K fmt.Stringer](m *immutable.Map[K, L.Element]) []entry {
	es := make([]entry, 0, m.Len())
	for iter := m.Iterator(); !iter.Done(); {
		k, v, _ := iter.Next()
		es = append(es, entry{k.String(), v})
	}
	sort.Slice(es, func(i, j int) bool { return es[i].key < es[j].key })
	return es
}

// String lists the constant summaries, sorted by kind and name.
func (s *State) String() string {
	var sb strings.Builder
	write := func(kind string, es []entry) {
		for _, e := range es {
			fmt.Fprintf(&sb, "%s %s = %s\n", kind, e.key, e.v)
		}
	}
	write("field", entries(s.fields))
	write("return", entries(s.returns))
	write("param", entries(s.params))
	return sb.String()
}
