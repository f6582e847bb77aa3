package lattice

import (
	"sort"
	"strings"

	"github.com/benbjohnson/immutable"

	"github.com/cs-au-dk/constprop/analysis/ir"
	"github.com/cs-au-dk/constprop/utils"
)

type (
	regMap  = *immutable.Map[ir.Reg, Element]
	slotMap = *immutable.Map[*ir.Field, Element]
)

// Env is the abstract state of a method frame at a program point: a value
// per defined register, and a value per field slot tracked by the enclosing
// initializer. The zero value is the unreachable environment ⊥.
//
// Envs are persistent; updates return a new Env and never alter the
// receiver.
type Env struct {
	regs  regMap
	slots slotMap
}

// EnvBot is the environment of unreachable program points.
var EnvBot = Env{}

// NewEnv creates a reachable environment with no defined registers.
func NewEnv() Env {
	return Env{
		regs:  immutable.NewMap[ir.Reg, Element](utils.IntHasher[ir.Reg]{}),
		slots: immutable.NewMap[*ir.Field, Element](utils.PointerHasher[*ir.Field]{}),
	}
}

// IsBot checks whether the environment is unreachable.
func (e Env) IsBot() bool { return e.regs == nil }

// Get returns the value of a register. The boolean is false if the register
// is undefined at this point.
func (e Env) Get(r ir.Reg) (Element, bool) {
	if e.IsBot() {
		return Bot, false
	}
	return e.regs.Get(r)
}

// Set updates the value of a register. Updating ⊥ yields ⊥.
func (e Env) Set(r ir.Reg, v Element) Env {
	if e.IsBot() {
		return e
	}
	return Env{e.regs.Set(r, v), e.slots}
}

// Kill makes a register undefined.
func (e Env) Kill(r ir.Reg) Env {
	if e.IsBot() {
		return e
	}
	return Env{e.regs.Delete(r), e.slots}
}

// Slot returns the value of a tracked field slot.
func (e Env) Slot(f *ir.Field) (Element, bool) {
	if e.IsBot() {
		return Bot, false
	}
	return e.slots.Get(f)
}

// SetSlot updates a tracked field slot.
func (e Env) SetSlot(f *ir.Field, v Element) Env {
	if e.IsBot() {
		return e
	}
	return Env{e.regs, e.slots.Set(f, v)}
}

// ForEachSlot calls do for every tracked field slot.
func (e Env) ForEachSlot(do func(*ir.Field, Element)) {
	if e.IsBot() {
		return
	}
	for iter := e.slots.Iterator(); !iter.Done(); {
		f, v, _ := iter.Next()
		do(f, v)
	}
}

// Size is the number of defined registers.
func (e Env) Size() int {
	if e.IsBot() {
		return 0
	}
	return e.regs.Len()
}

// Join computes e1 ⊔ e2. A register is only defined after the join if it
// is defined in both environments.
func (e1 Env) Join(e2 Env) Env {
	switch {
	case e1.IsBot():
		return e2
	case e2.IsBot():
		return e1
	case e1.regs == e2.regs && e1.slots == e2.slots:
		return e1
	}

	small, large := e1.regs, e2.regs
	if small.Len() > large.Len() {
		small, large = large, small
	}
	regs := immutable.NewMapBuilder[ir.Reg, Element](utils.IntHasher[ir.Reg]{})
	for iter := small.Iterator(); !iter.Done(); {
		r, v1, _ := iter.Next()
		if v2, ok := large.Get(r); ok {
			regs.Set(r, v1.Join(v2))
		}
	}

	slots := e1.slots
	for iter := e2.slots.Iterator(); !iter.Done(); {
		f, v2, _ := iter.Next()
		if v1, ok := slots.Get(f); ok {
			slots = slots.Set(f, v1.Join(v2))
		} else {
			slots = slots.Set(f, v2)
		}
	}

	return Env{regs.Map(), slots}
}

// Leq computes e1 ⊑ e2.
func (e1 Env) Leq(e2 Env) bool {
	switch {
	case e1.IsBot():
		return true
	case e2.IsBot():
		return false
	}

	for iter := e2.regs.Iterator(); !iter.Done(); {
		r, v2, _ := iter.Next()
		v1, ok := e1.regs.Get(r)
		if !ok || !v1.Leq(v2) {
			return false
		}
	}
	for iter := e2.slots.Iterator(); !iter.Done(); {
		f, v2, _ := iter.Next()
		v1, ok := e1.slots.Get(f)
		if !ok || !v1.Leq(v2) {
			return false
		}
	}
	return true
}

// Eq computes e1 = e2.
func (e1 Env) Eq(e2 Env) bool {
	return e1.Leq(e2) && e2.Leq(e1)
}

func (e Env) String() string {
	if e.IsBot() {
		return colorize.Element("⊥")
	}

	type entry struct {
		reg   ir.Reg
		field *ir.Field
		v     Element
	}
	regs := make([]entry, 0, e.regs.Len())
	for iter := e.regs.Iterator(); !iter.Done(); {
		r, v, _ := iter.Next()
		regs = append(regs, entry{reg: r, v: v})
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].reg < regs[j].reg })

	slots := make([]entry, 0, e.slots.Len())
	e.ForEachSlot(func(f *ir.Field, v Element) {
		slots = append(slots, entry{field: f, v: v})
	})
	sort.Slice(slots, func(i, j int) bool { return slots[i].field.String() < slots[j].field.String() })

	strs := make([]string, 0, len(regs)+len(slots))
	for _, en := range regs {
		strs = append(strs, colorize.Key(en.reg)+" ↦ "+en.v.String())
	}
	for _, en := range slots {
		strs = append(strs, colorize.Field(en.field)+" ↦ "+en.v.String())
	}
	return "[" + strings.Join(strs, ", ") + "]"
}
