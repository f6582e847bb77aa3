// Package transform rewrites a scope using the facts proven by the
// constant analysis. Rewrites are planned for every method before any of
// them is applied, so a failure leaves the scope untouched.
package transform

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/cs-au-dk/constprop/analysis/fixpoint"
	"github.com/cs-au-dk/constprop/analysis/ir"
	L "github.com/cs-au-dk/constprop/analysis/lattice"
)

var log = commonlog.GetLogger("constprop.transform")

// ErrInconsistent reports analysis results that do not match the scope
// they are applied to.
var ErrInconsistent = errors.New("inconsistent analysis results")

type Config struct {
	// ReplaceMovesWithConsts materializes constant values of moves, loads,
	// arithmetic and calls.
	ReplaceMovesWithConsts bool
	// IncludeVirtuals must match the analysis setting. Without it, calls
	// with several feasible targets are never materialized.
	IncludeVirtuals bool
}

type Stats struct {
	InstructionsReplaced int
	BranchesEliminated   int
	BlocksPruned         int
}

func (s *Stats) add(o Stats) {
	s.InstructionsReplaced += o.InstructionsReplaced
	s.BranchesEliminated += o.BranchesEliminated
	s.BlocksPruned += o.BlocksPruned
}

type editKind int

const (
	// Rewrite the instruction into a const in place.
	replaceInPlace editKind = iota
	// Keep the instruction and put a const right after it.
	materializeAfter
	// Turn the conditional branch ending a block into a goto.
	foldBranch
)

type edit struct {
	kind   editKind
	insn   *ir.Insn
	lit    ir.Literal
	target *ir.Block
}

// methodPlan lists the edits of one method in instruction order.
type methodPlan struct {
	m     *ir.Method
	edits []edit
}

// Plan is a set of rewrites ready to be committed.
type Plan struct {
	methods []*methodPlan
}

// Empty checks whether committing the plan would change nothing.
func (p *Plan) Empty() bool {
	for _, mp := range p.methods {
		if len(mp.edits) > 0 {
			return false
		}
	}
	return true
}

// Apply plans and commits the rewrites for every method with a result.
func Apply(scope *ir.Scope, results map[*ir.Method]*fixpoint.Result, config Config) (Stats, error) {
	plan, err := Prepare(scope, results, config)
	if err != nil {
		return Stats{}, err
	}
	return plan.Commit(), nil
}

// Prepare computes the rewrites of every method in parallel without
// modifying the scope.
func Prepare(scope *ir.Scope, results map[*ir.Method]*fixpoint.Result, config Config) (*Plan, error) {
	var methods []*ir.Method
	for _, m := range scope.Methods() {
		if results[m] != nil {
			methods = append(methods, m)
		}
	}

	plans := make([]*methodPlan, len(methods))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range methods {
		i, m := i, m
		g.Go(func() (err error) {
			plans[i], err = planMethod(m, results[m], config)
			return
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Plan{plans}, nil
}

func planMethod(m *ir.Method, res *fixpoint.Result, config Config) (*methodPlan, error) {
	if res.Method != m {
		return nil, fmt.Errorf("%w: result of %s supplied for %s", ErrInconsistent, res.Method, m)
	}

	mp := &methodPlan{m: m}
	for _, b := range m.Blocks {
		if !res.Reachable(b) {
			continue
		}
		for i, insn := range b.Insns {
			switch insn.Op {
			case ir.OpIf:
				e, ok, err := planBranch(b, insn, res)
				if err != nil {
					return nil, err
				}
				if ok {
					mp.edits = append(mp.edits, e)
				}

			case ir.OpMove, ir.OpSGet, ir.OpIGet, ir.OpBinOp, ir.OpCmp, ir.OpInvoke:
				if !config.ReplaceMovesWithConsts {
					continue
				}
				v := res.Value(insn)
				if !v.IsConstant() {
					continue
				}
				lit := v.Value()

				switch {
				case insn.Op == ir.OpInvoke:
					if insn.Dest == ir.NoReg {
						continue
					}
					cs, ok := res.Call(insn)
					if !ok {
						return nil, fmt.Errorf("%w: constant call %s in %s without known targets",
							ErrInconsistent, insn, m)
					}
					if len(cs.Targets) > 1 && !config.IncludeVirtuals {
						continue
					}
					mp.edits = append(mp.edits, edit{kind: materializeAfter, insn: insn, lit: lit})

				case insn.MayThrow():
					// The instruction keeps its exceptional behavior.
					if materialized(b, i, insn.Dest, lit) {
						continue
					}
					mp.edits = append(mp.edits, edit{kind: materializeAfter, insn: insn, lit: lit})

				default:
					mp.edits = append(mp.edits, edit{kind: replaceInPlace, insn: insn, lit: lit})
				}
			}
		}
	}
	return mp, nil
}

// materialized checks whether the instruction at position i of b is
// already followed by a const writing lit into dest.
func materialized(b *ir.Block, i int, dest ir.Reg, lit ir.Literal) bool {
	if i+1 >= len(b.Insns) {
		return false
	}
	next := b.Insns[i+1]
	return next.Op == ir.OpConst && next.Dest == dest && next.Lit == lit
}

func planBranch(b *ir.Block, insn *ir.Insn, res *fixpoint.Result) (edit, bool, error) {
	ops := make([]L.Element, len(insn.Srcs))
	for i := range insn.Srcs {
		ops[i] = res.Operand(insn, i)
		if !ops[i].IsConstant() {
			return edit{}, false, nil
		}
	}
	taken, ok := L.Decide(insn.Cond, ops...)
	if !ok {
		return edit{}, false, nil
	}
	if len(b.Succs) != 2 {
		return edit{}, false, fmt.Errorf("%w: %s of %s has %d successors",
			ErrInconsistent, b, b.Method(), len(b.Succs))
	}
	target := b.Succs[1]
	if taken {
		target = b.Succs[0]
	}
	return edit{kind: foldBranch, insn: insn, target: target}, true, nil
}

// Commit applies the plan. It cannot fail, as Prepare checked every edit.
func (p *Plan) Commit() Stats {
	var stats Stats
	for _, mp := range p.methods {
		stats.add(mp.commit())
	}
	log.Infof("replaced %d instructions, eliminated %d branches",
		stats.InstructionsReplaced, stats.BranchesEliminated)
	return stats
}

func (mp *methodPlan) commit() (stats Stats) {
	m := mp.m
	for _, e := range mp.edits {
		switch e.kind {
		case replaceInPlace:
			e.insn.ReplaceWithConst(e.lit)
			stats.InstructionsReplaced++

		case materializeAfter:
			dest := e.insn.Dest
			if e.insn.Op == ir.OpInvoke {
				e.insn.Dest = ir.NoReg
			}
			e.insn.Block().InsertAfter(e.insn, &ir.Insn{Op: ir.OpConst, Dest: dest, Lit: e.lit})
			stats.InstructionsReplaced++

		case foldBranch:
			// Checked by planBranch.
			if err := m.ReplaceBranch(e.insn.Block(), e.target); err != nil {
				panic(err)
			}
			stats.BranchesEliminated++
		}
	}
	if stats.BranchesEliminated > 0 {
		stats.BlocksPruned = m.PruneUnreachable()
	}
	if stats != (Stats{}) {
		log.Debugf("%s: %+v", m, stats)
	}
	return
}
