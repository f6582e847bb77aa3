package lattice

import (
	"math"
	"testing"

	"github.com/cs-au-dk/constprop/analysis/ir"
)

func TestFold(t *testing.T) {
	c := ConstInt

	tests := []struct {
		name     string
		op       ir.ArithOp
		width    uint8
		a, b     Element
		expected Element
	}{
		{"add", ir.Add, 64, c(40), c(2), c(42)},
		{"sub", ir.Sub, 32, c(1), c(3), c(-2)},
		{"and", ir.And, 64, c(12), c(10), c(8)},
		{"or", ir.Or, 64, c(12), c(10), c(14)},
		{"xor", ir.Xor, 64, c(12), c(10), c(6)},
		{"shl", ir.Shl, 32, c(3), c(4), c(48)},
		{"shr negative", ir.Shr, 32, c(-16), c(2), c(-4)},
		{"ushr negative", ir.Ushr, 8, c(-1), c(4), c(15)},
		{"ushr by zero", ir.Ushr, 32, c(-5), c(0), c(-5)},
		{"add overflow 8", ir.Add, 8, c(127), c(1), Top},
		{"add overflow 64", ir.Add, 64, c(math.MaxInt64), c(1), Top},
		{"sub overflow 64", ir.Sub, 64, c(math.MinInt64), c(1), Top},
		{"sub overflow 32", ir.Sub, 32, c(math.MinInt32), c(1), Top},
		{"shl overflow", ir.Shl, 32, c(1), c(31), Top},
		{"shl overflow 64", ir.Shl, 64, c(3), c(62), Top},
		{"shift too far", ir.Shr, 16, c(1), c(16), Top},
		{"negative shift", ir.Shl, 64, c(1), c(-1), Top},
		{"operand too wide", ir.And, 8, c(300), c(1), Top},
		{"unsafe operator", ir.Mul, 64, c(2), c(3), Top},
		{"division", ir.Div, 64, c(6), c(3), Top},
		{"odd width", ir.Add, 12, c(1), c(1), Top},
		{"top operand", ir.Add, 64, Top, c(1), Top},
		{"bot operand", ir.Add, 64, Bot, Top, Bot},
		{"string operand", ir.Add, 64, ConstString("a"), c(1), Top},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res := Fold(test.op, test.width, test.a, test.b)
			if !res.Eq(test.expected) {
				t.Errorf("%s/%d %s, %s = %s, expected %s",
					test.op, test.width, test.a, test.b, res, test.expected)
			}
		})
	}
}

// Folding must agree with wrapping machine arithmetic whenever it produces
// a constant.
func TestFoldAgreesWithMachine(t *testing.T) {
	vals := []int64{-128, -77, -3, -1, 0, 1, 2, 5, 64, 127}
	machine := map[ir.ArithOp]func(x, y int8) int8{
		ir.Add:  func(x, y int8) int8 { return x + y },
		ir.Sub:  func(x, y int8) int8 { return x - y },
		ir.And:  func(x, y int8) int8 { return x & y },
		ir.Or:   func(x, y int8) int8 { return x | y },
		ir.Xor:  func(x, y int8) int8 { return x ^ y },
		ir.Shl:  func(x, y int8) int8 { return x << y },
		ir.Shr:  func(x, y int8) int8 { return x >> y },
		ir.Ushr: func(x, y int8) int8 { return int8(uint8(x) >> y) },
	}

	for op, f := range machine {
		for _, x := range vals {
			for _, y := range vals {
				res := Fold(op, 8, ConstInt(x), ConstInt(y))
				v, ok := res.IntValue()
				if !ok {
					continue
				}
				if y < 0 && (op == ir.Shl || op == ir.Shr || op == ir.Ushr) {
					t.Errorf("%s/8 %d, %d folded a negative shift", op, x, y)
					continue
				}
				if want := int64(f(int8(x), int8(y))); v != want {
					t.Errorf("%s/8 %d, %d = %d, machine computes %d", op, x, y, v, want)
				}
			}
		}
	}
}

func TestCompare(t *testing.T) {
	c := ConstInt
	tests := []struct {
		cond     ir.Cond
		a, b     Element
		expected Element
	}{
		{ir.Eq, c(1), c(1), c(1)},
		{ir.Ne, c(1), c(1), c(0)},
		{ir.Lt, c(-1), c(0), c(1)},
		{ir.Ge, c(-1), c(0), c(0)},
		{ir.Gt, c(2), c(1), c(1)},
		{ir.Le, c(2), c(1), c(0)},
		{ir.Eq, ConstNull(), c(0), c(1)},
		{ir.Eq, ConstString("a"), ConstString("a"), c(1)},
		{ir.Ne, ConstString("a"), ConstString("b"), c(1)},
		{ir.Lt, ConstString("a"), ConstString("b"), Top},
		{ir.Eq, ConstString("a"), ConstNull(), c(0)},
		{ir.Eq, ConstString("a"), c(3), Top},
		{ir.Eq, Top, c(1), Top},
		{ir.Eq, Bot, c(1), Bot},
		// Zero tests use their two-operand form.
		{ir.Eqz, c(0), c(0), c(1)},
	}

	for _, test := range tests {
		if res := Compare(test.cond, test.a, test.b); !res.Eq(test.expected) {
			t.Errorf("cmp-%s %s, %s = %s, expected %s", test.cond, test.a, test.b, res, test.expected)
		}
	}
}

func TestDecide(t *testing.T) {
	if taken, ok := Decide(ir.Nez, ConstInt(3)); !ok || !taken {
		t.Errorf("if-nez 3 should be taken, got %v (%v)", taken, ok)
	}
	if taken, ok := Decide(ir.Eqz, ConstNull()); !ok || !taken {
		t.Errorf("if-eqz null should be taken, got %v (%v)", taken, ok)
	}
	if taken, ok := Decide(ir.Lt, ConstInt(3), ConstInt(2)); !ok || taken {
		t.Errorf("if-lt 3, 2 should fall through, got %v (%v)", taken, ok)
	}
	if _, ok := Decide(ir.Eqz, Top); ok {
		t.Error("if-eqz T should be undecided")
	}
	if _, ok := Decide(ir.Eq); ok {
		t.Error("a branch without operands should be undecided")
	}
}
