// Package runtimeassert instruments a rewritten scope with checks that
// compare runtime values against the constants the analysis claimed.
// A failed check calls a handler method with a description of the site
// and throws whatever the handler returns.
package runtimeassert

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/cs-au-dk/constprop/analysis/fixpoint"
	"github.com/cs-au-dk/constprop/analysis/ir"
	"github.com/cs-au-dk/constprop/analysis/wholeprogram"
)

var log = commonlog.GetLogger("constprop.runtimeassert")

// DefaultHandler receives the failure message and returns the exception to
// throw.
var DefaultHandler = ir.MethodRef{Owner: "Lconstprop/AssertHandler;", Name: "fail"}

type Config struct {
	Fields   bool
	Returns  bool
	Branches bool
	// Handler is the static method called on failure. The zero value
	// selects DefaultHandler.
	Handler ir.MethodRef
}

// DefaultConfig checks every kind of site.
func DefaultConfig() Config {
	return Config{Fields: true, Returns: true, Branches: true, Handler: DefaultHandler}
}

type Stats struct {
	AssertsInserted int
}

// check describes one assertion: right before anchor, or right after it
// when after is set, register actual must hold lit.
type check struct {
	anchor *ir.Insn
	after  bool
	// reload, if set, is a load placed before the check that defines
	// actual.
	reload *ir.Insn
	actual ir.Reg
	lit    ir.Literal
	msg    string
}

type methodPlan struct {
	m      *ir.Method
	checks []check
}

// Plan lists the assertions to insert.
type Plan struct {
	config  Config
	methods []*methodPlan
}

// Inject plans and inserts the assertions.
func Inject(
	scope *ir.Scope,
	state *wholeprogram.State,
	results map[*ir.Method]*fixpoint.Result,
	config Config,
) (Stats, error) {
	plan, err := Prepare(scope, state, results, config)
	if err != nil {
		return Stats{}, err
	}
	return plan.Commit(), nil
}

// CheckHandler verifies that the handler, if declared in the scope, can be
// called with the failure message.
func CheckHandler(scope *ir.Scope, handler ir.MethodRef) error {
	if h := scope.ResolveMethod(handler); h != nil && (h.Params != 1 || !h.Static) {
		return fmt.Errorf("assertion handler %s must be static and take exactly one argument", h)
	}
	return nil
}

// Prepare finds the sites to check without modifying the scope. The
// results are the ones the transform was applied with; rewritten
// instructions keep their identity, so their facts remain available.
func Prepare(
	scope *ir.Scope,
	state *wholeprogram.State,
	results map[*ir.Method]*fixpoint.Result,
	config Config,
) (*Plan, error) {
	if config.Handler == (ir.MethodRef{}) {
		config.Handler = DefaultHandler
	}
	if err := CheckHandler(scope, config.Handler); err != nil {
		return nil, err
	}

	var methods []*ir.Method
	for _, m := range scope.Methods() {
		if results[m] != nil && m.Ref() != config.Handler {
			methods = append(methods, m)
		}
	}

	plans := make([]*methodPlan, len(methods))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range methods {
		i, m := i, m
		g.Go(func() error {
			plans[i] = planMethod(m, state, results[m], config)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Plan{config, plans}, nil
}

func planMethod(m *ir.Method, state *wholeprogram.State, res *fixpoint.Result, config Config) *methodPlan {
	mp := &methodPlan{m: m}
	returns := state.ReturnValue(m)

	for _, b := range m.Blocks {
		if !res.Reachable(b) {
			continue
		}
		for _, insn := range b.Insns {
			switch {
			case config.Fields && (insn.Op == ir.OpSGet || insn.Op == ir.OpIGet):
				if v := res.Value(insn); v.IsConstant() {
					mp.checks = append(mp.checks, check{
						anchor: insn,
						after:  true,
						actual: insn.Dest,
						lit:    v.Value(),
						msg:    fmt.Sprintf("%s: %s is not %s", m, insn.Field, v.Value()),
					})
				}

			case config.Fields && insn.Op == ir.OpConst && insn.Replaced != nil &&
				(insn.Replaced.Op == ir.OpSGet || insn.Replaced.Op == ir.OpIGet):
				load := insn.Replaced.Copy()
				mp.checks = append(mp.checks, check{
					anchor: insn,
					reload: load,
					lit:    insn.Lit,
					msg:    fmt.Sprintf("%s: %s is not %s", m, load.Field, insn.Lit),
				})

			case config.Returns && insn.Op == ir.OpReturn && len(insn.Srcs) == 1 && returns.IsConstant():
				mp.checks = append(mp.checks, check{
					anchor: insn,
					actual: insn.Srcs[0],
					lit:    returns.Value(),
					msg:    fmt.Sprintf("%s does not return %s", m, returns.Value()),
				})

			case config.Branches && insn.Op == ir.OpGoto && insn.Replaced != nil && insn.Replaced.Op == ir.OpIf:
				env := res.EnvBefore(insn)
				for _, r := range insn.Replaced.Srcs {
					if v, ok := env.Get(r); ok && v.IsConstant() {
						mp.checks = append(mp.checks, check{
							anchor: insn,
							actual: r,
							lit:    v.Value(),
							msg:    fmt.Sprintf("%s: operand %s of %s is not %s", m, r, insn.Replaced, v.Value()),
						})
					}
				}
			}
		}
	}
	return mp
}

// Commit inserts the planned assertions.
func (p *Plan) Commit() Stats {
	var stats Stats
	for _, mp := range p.methods {
		for _, c := range mp.checks {
			p.insert(mp.m, c)
			stats.AssertsInserted++
		}
	}
	log.Infof("inserted %d runtime assertions", stats.AssertsInserted)
	return stats
}

// Sites lists the messages of the planned assertions, sorted.
func (p *Plan) Sites() []string {
	var sites []string
	for _, mp := range p.methods {
		for _, c := range mp.checks {
			sites = append(sites, c.msg)
		}
	}
	sort.Strings(sites)
	return sites
}

// insert splits the block of the anchor and places
//
//	const tmp, lit
//	if-eq actual, tmp -> continue
//
// in front of the tail, with a failure block that calls the handler.
func (p *Plan) insert(m *ir.Method, c check) {
	b := c.anchor.Block()
	at := b.IndexOf(c.anchor)
	if c.after {
		at++
	}
	if c.reload != nil {
		c.actual = m.NewReg()
		c.reload.Dest = c.actual
		b.InsertAt(at, c.reload)
		at++
	}

	tail := m.SplitBlock(b, at)

	fail := m.NewBlock()
	msg, exc := m.NewReg(), m.NewReg()
	fail.Const(msg, ir.String(c.msg))
	fail.Invoke(ir.InvokeStatic, exc, p.config.Handler, msg)
	fail.Throw(exc)

	tmp := m.NewReg()
	b.Const(tmp, c.lit)
	b.If(ir.Eq, tail, fail, c.actual, tmp)
}
