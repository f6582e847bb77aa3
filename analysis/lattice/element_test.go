package lattice

import (
	"testing"

	"github.com/cs-au-dk/constprop/analysis/ir"
	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

func TestElementJoin(t *testing.T) {
	c1, c2 := ConstInt(1), ConstInt(2)
	s, null := ConstString("a"), ConstNull()

	tests := []struct {
		a, b, expected Element
	}{
		{Bot, Bot, Bot},
		{Bot, Top, Top},
		{Top, Bot, Top},
		{Bot, c1, c1},
		{c1, Bot, c1},
		{c1, c1, c1},
		{c1, c2, Top},
		{c1, Top, Top},
		{s, s, s},
		{s, ConstString("b"), Top},
		{null, null, null},
		{null, ConstInt(0), Top},
		{s, null, Top},
	}

	for _, test := range tests {
		res := test.a.Join(test.b)
		if !res.Eq(test.expected) {
			t.Errorf("%s ⊔ %s = %s, expected %s", test.a, test.b, res, test.expected)
		}
		if !test.a.Leq(res) || !test.b.Leq(res) {
			t.Errorf("%s ⊔ %s = %s is not an upper bound", test.a, test.b, res)
		}
	}
}

func TestElementMeet(t *testing.T) {
	c1, c2 := ConstInt(1), ConstInt(2)

	tests := []struct {
		a, b, expected Element
	}{
		{Top, Top, Top},
		{Top, c1, c1},
		{c1, c1, c1},
		{c1, c2, Bot},
		{Bot, c1, Bot},
	}

	for _, test := range tests {
		if res := test.a.Meet(test.b); !res.Eq(test.expected) {
			t.Errorf("%s ⊓ %s = %s, expected %s", test.a, test.b, res, test.expected)
		}
	}
}

func TestElementHeight(t *testing.T) {
	if Bot.Height() != 0 || ConstInt(7).Height() != 1 || Top.Height() != 2 {
		t.Error("unexpected heights", Bot.Height(), ConstInt(7).Height(), Top.Height())
	}
}

func TestConstNormalization(t *testing.T) {
	// Stray payloads must not distinguish equal constants.
	a := Const(ir.Literal{Kind: ir.LitInt, Int: 3, Str: "junk"})
	if a != ConstInt(3) {
		t.Errorf("expected %s to equal 3", a)
	}
	n := Const(ir.Literal{Kind: ir.LitNull, Int: 9})
	if n != ConstNull() {
		t.Errorf("expected %s to equal null", n)
	}
}

func TestValuePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected Value() on T to panic")
		}
	}()
	Top.Value()
}

func TestElementString(t *testing.T) {
	for e, expected := range map[Element]string{
		Bot:              "⊥",
		Top:              "T",
		ConstInt(-4):     "-4",
		ConstString("x"): `"x"`,
		ConstNull():      "null",
	} {
		if s := e.String(); s != expected {
			t.Errorf("expected %q, got %q", expected, s)
		}
	}
}
