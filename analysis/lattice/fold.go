package lattice

import (
	"github.com/cs-au-dk/constprop/analysis/ir"
)

// fits checks whether v is representable as a signed integer of the given
// bit width.
func fits(v int64, width uint8) bool {
	if width >= 64 {
		return true
	}
	lim := int64(1) << (width - 1)
	return -lim <= v && v < lim
}

// signExtend reinterprets the low width bits of u as a signed integer.
func signExtend(u uint64, width uint8) int64 {
	if width >= 64 {
		return int64(u)
	}
	shift := 64 - width
	return int64(u<<shift) >> shift
}

// Fold evaluates binary arithmetic over lattice elements. Only operators
// whose result is exact at the given width are folded; overflow and
// out-of-range shift amounts produce T rather than a wrapped value.
func Fold(op ir.ArithOp, width uint8, a, b Element) Element {
	if a.IsBot() || b.IsBot() {
		return Bot
	}

	x, ok1 := a.IntValue()
	y, ok2 := b.IntValue()
	if !ok1 || !ok2 {
		return Top
	}
	switch width {
	case 8, 16, 32, 64:
	default:
		return Top
	}
	if !fits(x, width) || !fits(y, width) {
		return Top
	}

	var r int64
	switch op {
	case ir.Add:
		r = x + y
		if width == 64 && (x > 0 && y > 0 && r < 0 || x < 0 && y < 0 && r >= 0) {
			return Top
		}
	case ir.Sub:
		r = x - y
		if width == 64 && (x >= 0 && y < 0 && r < 0 || x < 0 && y > 0 && r >= 0) {
			return Top
		}
	case ir.And:
		r = x & y
	case ir.Or:
		r = x | y
	case ir.Xor:
		r = x ^ y
	case ir.Shl, ir.Shr, ir.Ushr:
		if y < 0 || y >= int64(width) {
			return Top
		}
		switch op {
		case ir.Shl:
			r = x << y
			// Bits shifted out, or into the sign bit, are overflow.
			if r>>y != x {
				return Top
			}
		case ir.Shr:
			r = x >> y
		default:
			mask := ^uint64(0)
			if width < 64 {
				mask = uint64(1)<<width - 1
			}
			r = signExtend((uint64(x)&mask)>>y, width)
		}
	default:
		return Top
	}

	if !fits(r, width) {
		return Top
	}
	return ConstInt(r)
}

// Compare evaluates a comparison to the integer constants 0 and 1.
// Integers are ordered numerically with null standing for zero; strings are
// only decided by equality tests.
func Compare(cond ir.Cond, a, b Element) Element {
	if a.IsBot() || b.IsBot() {
		return Bot
	}
	if !a.IsConstant() || !b.IsConstant() {
		return Top
	}

	res, ok := compare(cond.Binary(), a.Value(), b.Value())
	if !ok {
		return Top
	}
	if res {
		return ConstInt(1)
	}
	return ConstInt(0)
}

// Decide evaluates the condition of a branch. Unary conditions compare their
// only operand with zero. The boolean result is only meaningful when ok is
// true.
func Decide(cond ir.Cond, ops ...Element) (taken bool, ok bool) {
	if cond.Unary() && len(ops) == 1 {
		ops = []Element{ops[0], ConstInt(0)}
	}
	if len(ops) != 2 {
		return false, false
	}
	e := Compare(cond, ops[0], ops[1])
	v, isInt := e.IntValue()
	return v != 0, isInt
}

func isZero(l ir.Literal) bool {
	return l.Kind == ir.LitNull || l.Kind == ir.LitInt && l.Int == 0
}

func compare(cond ir.Cond, x, y ir.Literal) (bool, bool) {
	intOf := func(l ir.Literal) (int64, bool) {
		switch l.Kind {
		case ir.LitInt:
			return l.Int, true
		case ir.LitNull:
			return 0, true
		}
		return 0, false
	}

	if xi, ok := intOf(x); ok {
		if yi, ok := intOf(y); ok {
			switch cond {
			case ir.Eq:
				return xi == yi, true
			case ir.Ne:
				return xi != yi, true
			case ir.Lt:
				return xi < yi, true
			case ir.Ge:
				return xi >= yi, true
			case ir.Gt:
				return xi > yi, true
			case ir.Le:
				return xi <= yi, true
			}
			return false, false
		}
	}

	if cond != ir.Eq && cond != ir.Ne {
		return false, false
	}

	var eq bool
	switch {
	case x.Kind == ir.LitString && y.Kind == ir.LitString:
		eq = x.Str == y.Str
	case x.Kind == ir.LitString && isZero(y), isZero(x) && y.Kind == ir.LitString:
		// A string literal is never null.
		eq = false
	default:
		return false, false
	}

	if cond == ir.Eq {
		return eq, true
	}
	return !eq, true
}
