package fixpoint

import (
	"github.com/cs-au-dk/constprop/analysis/ir"
	L "github.com/cs-au-dk/constprop/analysis/lattice"
)

// CallSite describes a reachable call with a known, finite set of targets.
type CallSite struct {
	Insn    *ir.Insn
	Targets []*ir.Method
	Args    []L.Element
}

// Result is the fixpoint computed for one method. It is read-only once
// returned by Analyze.
type Result struct {
	Method *ir.Method

	entry  map[*ir.Block]L.Env
	before map[*ir.Insn]L.Env
	values map[*ir.Insn]L.Element
	calls  map[*ir.Insn]*CallSite

	// Return is the join of all returned values; ⊥ if no value is returned.
	Return L.Element
	// Writes joins the values stored by untracked write sites per field.
	Writes map[*ir.Field]L.Element
	// ExitSlots joins the tracked field slots over every exit of an
	// initializer.
	ExitSlots map[*ir.Field]L.Element
	// Observations joins the tracked field slots at points where code
	// outside the initializer may run.
	Observations map[*ir.Field]L.Element
	// Calls lists the reachable call sites in block order.
	Calls []*CallSite
}

func newResult(m *ir.Method) *Result {
	return &Result{
		Method:       m,
		entry:        make(map[*ir.Block]L.Env, len(m.Blocks)),
		before:       make(map[*ir.Insn]L.Env),
		values:       make(map[*ir.Insn]L.Element),
		calls:        make(map[*ir.Insn]*CallSite),
		Return:       L.Bot,
		Writes:       make(map[*ir.Field]L.Element),
		ExitSlots:    make(map[*ir.Field]L.Element),
		Observations: make(map[*ir.Field]L.Element),
	}
}

// Reachable checks whether the block may execute.
func (r *Result) Reachable(b *ir.Block) bool {
	return !r.entry[b].IsBot()
}

// EntryEnv is the environment on entry to b.
func (r *Result) EntryEnv(b *ir.Block) L.Env {
	return r.entry[b]
}

// EnvBefore is the environment right before insn executes; ⊥ if the
// instruction is unreachable.
func (r *Result) EnvBefore(insn *ir.Insn) L.Env {
	return r.before[insn]
}

// Value is the value insn assigns to its destination; ⊥ for unreachable
// instructions or instructions without a destination.
func (r *Result) Value(insn *ir.Insn) L.Element {
	return r.values[insn]
}

// Operand returns the value of the i'th operand of insn.
func (r *Result) Operand(insn *ir.Insn, i int) L.Element {
	v, _ := r.before[insn].Get(insn.Srcs[i])
	return v
}

// Call returns the call site information for a reachable invoke with known
// targets.
func (r *Result) Call(insn *ir.Insn) (*CallSite, bool) {
	cs, ok := r.calls[insn]
	return cs, ok
}

func joinInto[K comparable](m map[K]L.Element, k K, v L.Element) {
	m[k] = m[k].Join(v)
}
