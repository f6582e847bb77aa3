// Package lattice implements the flat constant lattice
//
//	⊥ ⊑ c ⊑ T
//
// for literal values c, arithmetic over its elements, and register
// environments mapping the value slots of a method frame to elements.
package lattice

import (
	"github.com/cs-au-dk/constprop/analysis/ir"
	"github.com/cs-au-dk/constprop/utils"

	"github.com/fatih/color"
)

var colorize = struct {
	Element func(...interface{}) string
	Const   func(...interface{}) string
	Key     func(...interface{}) string
	Field   func(...interface{}) string
}{
	Element: func(is ...interface{}) string {
		return utils.CanColorize(color.New(color.FgCyan).SprintFunc())(is...)
	},
	Const: func(is ...interface{}) string {
		return utils.CanColorize(color.New(color.FgHiWhite).SprintFunc())(is...)
	},
	Key: func(is ...interface{}) string {
		return utils.CanColorize(color.New(color.FgYellow).SprintFunc())(is...)
	},
	Field: func(is ...interface{}) string {
		return utils.CanColorize(color.New(color.FgGreen).SprintFunc())(is...)
	},
}

type level uint8

const (
	bot level = iota
	constant
	top
)

// Element is a member of the constant lattice. The zero value is ⊥.
// Elements are comparable with ==.
type Element struct {
	level level
	value ir.Literal
}

var (
	// Bot describes values of unreachable code.
	Bot = Element{}
	// Top describes values that are not known to be constant.
	Top = Element{level: top}
)

// Const lifts a literal into the lattice.
func Const(l ir.Literal) Element {
	// Normalize the payload so == coincides with lattice equality.
	switch l.Kind {
	case ir.LitInt:
		l.Str = ""
	case ir.LitString:
		l.Int = 0
	default:
		l = ir.Null()
	}
	return Element{level: constant, value: l}
}

func ConstInt(v int64) Element { return Const(ir.Int(v)) }

func ConstString(s string) Element { return Const(ir.String(s)) }

func ConstNull() Element { return Const(ir.Null()) }

// IsBot checks whether the element is ⊥.
func (e Element) IsBot() bool { return e.level == bot }

// IsTop checks whether the element is T.
func (e Element) IsTop() bool { return e.level == top }

// IsConstant checks whether the element is a single literal.
func (e Element) IsConstant() bool { return e.level == constant }

// Value must only be invoked on constant elements.
func (e Element) Value() ir.Literal {
	if !e.IsConstant() {
		panic("Called Value() on a ⊥/T element")
	}
	return e.value
}

// IntValue returns the integer payload of integer constants.
func (e Element) IntValue() (int64, bool) {
	if e.IsConstant() && e.value.Kind == ir.LitInt {
		return e.value.Int, true
	}
	return 0, false
}

// Height is 0 for ⊥, 1 for constants and 2 for T.
func (e Element) Height() int { return int(e.level) }

// Leq computes e1 ⊑ e2.
func (e1 Element) Leq(e2 Element) bool {
	switch {
	case e1.IsBot(), e2.IsTop():
		return true
	case e1.IsTop(), e2.IsBot():
		return false
	default:
		return e1.value == e2.value
	}
}

// Geq computes e1 ⊒ e2.
func (e1 Element) Geq(e2 Element) bool { return e2.Leq(e1) }

// Eq computes e1 = e2.
func (e1 Element) Eq(e2 Element) bool { return e1 == e2 }

// Join computes e1 ⊔ e2. Distinct constants join to T.
func (e1 Element) Join(e2 Element) Element {
	switch {
	case e1.Leq(e2):
		return e2
	case e2.Leq(e1):
		return e1
	default:
		return Top
	}
}

// Meet computes e1 ⊓ e2. Distinct constants meet at ⊥.
func (e1 Element) Meet(e2 Element) Element {
	switch {
	case e1.Leq(e2):
		return e1
	case e2.Leq(e1):
		return e2
	default:
		return Bot
	}
}

// JoinAll folds Join over the given elements, starting from ⊥.
func JoinAll(es ...Element) Element {
	res := Bot
	for _, e := range es {
		res = res.Join(e)
	}
	return res
}

func (e Element) String() string {
	switch e.level {
	case bot:
		return colorize.Element("⊥")
	case top:
		return colorize.Element("T")
	default:
		return colorize.Const(e.value.String())
	}
}
