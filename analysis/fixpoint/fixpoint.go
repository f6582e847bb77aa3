// Package fixpoint computes, for a single method, the constant lattice
// element of every register at every program point. Calls and field loads
// are answered by a whole-program snapshot; the analysis of one method
// never looks at the analysis results of another.
package fixpoint

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/cs-au-dk/constprop/analysis/ir"
	L "github.com/cs-au-dk/constprop/analysis/lattice"
	"github.com/cs-au-dk/constprop/utils/pq"
)

var log = commonlog.GetLogger("constprop.fixpoint")

// ErrInvariant reports a program the analysis cannot soundly interpret,
// such as a read of an undefined register.
var ErrInvariant = errors.New("invariant violation")

type Config struct {
	// FoldArithmetic evaluates binop instructions over constant operands.
	FoldArithmetic bool
	// IncludeVirtuals joins the summaries of every feasible target of a
	// dispatched call instead of treating polymorphic calls as T.
	IncludeVirtuals bool
}

// WholeProgram answers queries about the rest of the program. Absent
// knowledge is T.
type WholeProgram interface {
	FieldValue(f *ir.Field) L.Element
	ReturnValue(m *ir.Method) L.Element
	ArgumentValue(m *ir.Method, i int) L.Element
}

type analysis struct {
	m      *ir.Method
	wp     WholeProgram
	idx    *Index
	config Config

	tracked map[*ir.Field]bool
	res     *Result
}

// Analyze runs the worklist algorithm to a fixpoint over the reachable
// blocks of m and collects the facts the whole-program state is built
// from.
func Analyze(m *ir.Method, wp WholeProgram, idx *Index, config Config) (*Result, error) {
	if !m.HasBody() {
		return nil, fmt.Errorf("%w: %s has no body", ErrInvariant, m)
	}

	a := &analysis{
		m:       m,
		wp:      wp,
		idx:     idx,
		config:  config,
		tracked: make(map[*ir.Field]bool),
		res:     newResult(m),
	}
	for _, f := range idx.Tracked(m) {
		a.tracked[f] = true
	}

	order := make(map[*ir.Block]int, len(m.Blocks))
	for i, b := range m.ReversePostorder() {
		order[b] = i
	}

	in := a.res.entry
	entry := m.Entry()
	in[entry] = a.entryEnv()

	queue := pq.ByRank(func(b *ir.Block) int { return order[b] })
	queue.Add(entry)

	steps := 0
	for !queue.IsEmpty() {
		b := queue.GetNext()
		steps++

		out, err := a.block(b, in[b], nil)
		if err != nil {
			return nil, err
		}

		for succ, env := range out {
			old := in[succ]
			if updated := old.Join(env); !updated.Eq(old) {
				in[succ] = updated
				queue.Add(succ)
			}
		}
	}

	// One more pass over the stable entry environments records the facts.
	for _, b := range m.Blocks {
		if env := in[b]; !env.IsBot() {
			if _, err := a.block(b, env, a.res); err != nil {
				return nil, err
			}
		}
	}

	log.Debugf("%s: fixpoint after %d block visits", m, steps)
	return a.res, nil
}

func (a *analysis) entryEnv() L.Env {
	env := L.NewEnv()
	for i := 0; i < a.m.Params; i++ {
		env = env.Set(ir.Reg(i), a.wp.ArgumentValue(a.m, i))
	}
	for f := range a.tracked {
		v := L.Top
		if lit, ok := f.InitialValue(); ok {
			v = L.Const(lit)
		}
		// Other code may already have stored into the field, e.g. a
		// subclass constructor before delegating to this one.
		if a.idx.WrittenElsewhere(f) {
			v = v.Join(a.wp.FieldValue(f))
		}
		env = env.SetSlot(f, v)
	}
	return env
}

// block interprets the instructions of b under the entry environment env
// and returns the environments flowing to each successor. When res is not
// nil the per-instruction facts are recorded in it.
func (a *analysis) block(b *ir.Block, env L.Env, res *Result) (map[*ir.Block]L.Env, error) {
	out := make(map[*ir.Block]L.Env, len(b.Succs)+len(b.Catches))
	flow := func(to *ir.Block, env L.Env) {
		out[to] = out[to].Join(env)
	}

	for _, insn := range b.Insns {
		if res != nil {
			res.before[insn] = env
		}

		if a.mayThrow(insn) {
			thrown := a.unwind(insn, env)
			for _, h := range b.Catches {
				flow(h, thrown)
			}
			if len(b.Catches) == 0 && res != nil {
				a.exit(thrown)
			}
		}

		var err error
		if env, err = a.transfer(b, insn, env, res, flow); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// unwind is the environment reaching a handler when insn throws. Code run
// by insn may have stored into tracked fields before throwing.
func (a *analysis) unwind(insn *ir.Insn, env L.Env) L.Env {
	switch insn.Op {
	case ir.OpInvoke:
		if targets, known := a.idx.Resolver.Targets(insn); escapes(targets, known) {
			return a.escape(env, nil, targets)
		}
	case ir.OpOpaque:
		env = a.clobber(insn, env)
		if insn.SideEffects {
			return a.escape(env, nil, nil)
		}
	}
	return env
}

// escapes holds when a call may run code outside the current method.
func escapes(targets []*ir.Method, known bool) bool {
	if !known {
		return true
	}
	for _, t := range targets {
		if t.HasBody() {
			return true
		}
	}
	return false
}

func (a *analysis) clobber(insn *ir.Insn, env L.Env) L.Env {
	for _, ref := range insn.Clobbers {
		if f := a.idx.Scope.ResolveField(ref); f != nil && a.tracked[f] {
			env = env.SetSlot(f, L.Top)
		}
	}
	return env
}

// mayThrow refines ir.Insn.MayThrow: accesses through the receiver of a
// constructor cannot fail.
func (a *analysis) mayThrow(insn *ir.Insn) bool {
	if !insn.MayThrow() {
		return false
	}
	switch insn.Op {
	case ir.OpIGet, ir.OpIPut:
		if f := a.field(insn); f != nil && a.isTracked(insn, f) {
			return false
		}
	}
	return true
}

func (a *analysis) field(insn *ir.Insn) *ir.Field {
	return a.idx.Scope.ResolveField(insn.Field)
}

func (a *analysis) isTracked(insn *ir.Insn, f *ir.Field) bool {
	return a.tracked[f] && a.idx.isTrackedAccess(a.m, insn, f)
}

func (a *analysis) read(b *ir.Block, insn *ir.Insn, env L.Env, i int) (L.Element, error) {
	r := insn.Srcs[i]
	v, ok := env.Get(r)
	if !ok {
		return L.Bot, fmt.Errorf("%w: %s in %s of %s reads undefined register %s",
			ErrInvariant, insn, b, a.m, r)
	}
	return v, nil
}

func (a *analysis) readAll(b *ir.Block, insn *ir.Insn, env L.Env) ([]L.Element, error) {
	vs := make([]L.Element, len(insn.Srcs))
	for i := range insn.Srcs {
		v, err := a.read(b, insn, env, i)
		if err != nil {
			return nil, err
		}
		vs[i] = v
	}
	return vs, nil
}

// exit records the tracked slots at a point where the method may return.
func (a *analysis) exit(env L.Env) {
	env.ForEachSlot(func(f *ir.Field, v L.Element) {
		joinInto(a.res.ExitSlots, f, v)
	})
}

// escape handles a point where code outside the initializer may run: that
// code can observe the current slot values, and may write fields the
// initializer does not own exclusively.
func (a *analysis) escape(env L.Env, res *Result, callees []*ir.Method) L.Env {
	if len(a.tracked) == 0 {
		return env
	}
	if res != nil {
		env.ForEachSlot(func(f *ir.Field, v L.Element) {
			joinInto(res.Observations, f, v)
		})
	}

	reinit := make(map[*ir.Class]bool)
	for _, c := range callees {
		if c.IsClassInitializer() || c.IsConstructor() {
			reinit[c.Class] = true
		}
	}

	next := env
	env.ForEachSlot(func(f *ir.Field, v L.Element) {
		if a.idx.WrittenElsewhere(f) || reinit[f.Class] {
			next = next.SetSlot(f, v.Join(a.wp.FieldValue(f)))
		}
	})
	return next
}

func (a *analysis) define(insn *ir.Insn, env L.Env, v L.Element, res *Result) L.Env {
	if res != nil {
		res.values[insn] = v
	}
	if insn.Dest == ir.NoReg {
		return env
	}
	return env.Set(insn.Dest, v)
}

func (a *analysis) transfer(
	b *ir.Block,
	insn *ir.Insn,
	env L.Env,
	res *Result,
	flow func(*ir.Block, L.Env),
) (L.Env, error) {
	ops, err := a.readAll(b, insn, env)
	if err != nil {
		return env, err
	}

	switch insn.Op {
	case ir.OpConst:
		return a.define(insn, env, L.Const(insn.Lit), res), nil

	case ir.OpMove:
		return a.define(insn, env, ops[0], res), nil

	case ir.OpBinOp:
		var v L.Element
		switch {
		case a.config.FoldArithmetic:
			v = L.Fold(insn.Arith, insn.Width, ops[0], ops[1])
		case ops[0].IsBot() || ops[1].IsBot():
			v = L.Bot
		default:
			v = L.Top
		}
		return a.define(insn, env, v, res), nil

	case ir.OpCmp:
		return a.define(insn, env, L.Compare(insn.Cond, ops[0], ops[1]), res), nil

	case ir.OpSGet, ir.OpIGet:
		f := a.field(insn)
		var v L.Element
		switch {
		case f == nil:
			v = L.Top
		case a.isTracked(insn, f):
			v, _ = env.Slot(f)
		default:
			v = a.wp.FieldValue(f)
		}
		return a.define(insn, env, v, res), nil

	case ir.OpSPut, ir.OpIPut:
		f := a.field(insn)
		switch {
		case f == nil:
		case a.isTracked(insn, f):
			env = env.SetSlot(f, ops[0])
		case res != nil:
			joinInto(res.Writes, f, ops[0])
		}
		return env, nil

	case ir.OpInvoke:
		return a.invoke(b, insn, env, ops, res)

	case ir.OpReturn:
		if res != nil {
			if len(ops) > 0 {
				res.Return = res.Return.Join(ops[0])
			}
			a.exit(env)
		}
		return env, nil

	case ir.OpThrow:
		// Uncaught throws are exits recorded by the caller through
		// mayThrow.
		return env, nil

	case ir.OpGoto:
		flow(b.Succs[0], env)
		return env, nil

	case ir.OpIf:
		if taken, ok := L.Decide(insn.Cond, ops...); ok {
			if taken {
				flow(b.Succs[0], env)
			} else {
				flow(b.Succs[1], env)
			}
		} else {
			for _, succ := range b.Succs {
				flow(succ, env)
			}
		}
		return env, nil

	case ir.OpOpaque:
		env = a.clobber(insn, env)
		if insn.SideEffects {
			env = a.escape(env, res, nil)
		}
		if insn.Dest == ir.NoReg {
			return env, nil
		}
		return a.define(insn, env, L.Top, res), nil
	}

	return env, fmt.Errorf("%w: unknown opcode %s in %s", ErrInvariant, insn.Op, a.m)
}

func (a *analysis) invoke(b *ir.Block, insn *ir.Insn, env L.Env, args []L.Element, res *Result) (L.Env, error) {
	targets, known := a.idx.Resolver.Targets(insn)
	for _, t := range targets {
		if t.Params != len(args) {
			return env, fmt.Errorf("%w: %s in %s of %s passes %d arguments to %s which takes %d",
				ErrInvariant, insn, b, a.m, len(args), t, t.Params)
		}
	}

	if res != nil && known {
		cs := &CallSite{Insn: insn, Targets: targets, Args: args}
		res.calls[insn] = cs
		res.Calls = append(res.Calls, cs)
	}

	if escapes(targets, known) {
		env = a.escape(env, res, targets)
	}

	v := L.Top
	switch {
	case !known:
	case len(targets) == 1:
		v = a.wp.ReturnValue(targets[0])
	case a.config.IncludeVirtuals:
		v = L.Bot
		for _, t := range targets {
			v = v.Join(a.wp.ReturnValue(t))
		}
	}

	if insn.Dest == ir.NoReg {
		if res != nil {
			res.values[insn] = v
		}
		return env, nil
	}
	return a.define(insn, env, v, res), nil
}
