// Package ipcp is the interprocedural constant propagation pass: it runs
// the refinement driver over a scope, rewrites the scope with the proven
// constants and optionally instruments it with runtime checks.
package ipcp

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/cs-au-dk/constprop/analysis/fixpoint"
	"github.com/cs-au-dk/constprop/analysis/ir"
	"github.com/cs-au-dk/constprop/analysis/runtimeassert"
	"github.com/cs-au-dk/constprop/analysis/transform"
	"github.com/cs-au-dk/constprop/analysis/wholeprogram"
)

var log = commonlog.GetLogger("constprop.ipcp")

// PassName identifies the pass towards a pass manager.
const PassName = "InterproceduralConstantPropagationPass"

// ErrInvariant reports a malformed scope.
var ErrInvariant = fixpoint.ErrInvariant

// Manager is the part of a pass pipeline the pass interacts with.
type Manager interface {
	Scope() *ir.Scope
	// Options returns the raw option values configured for a pass.
	Options(pass string) map[string]any
	IncrMetric(name string, value int)
}

type Pass struct {
	config Config
	// Resolver determines call targets; nil selects a class hierarchy
	// resolver over the analyzed scope.
	Resolver ir.Resolver
	// OnPhase, if set, observes the phases of the refinement driver.
	OnPhase func(wholeprogram.Phase)
}

// New validates the configuration and creates the pass.
func New(config Config) (*Pass, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Pass{config: config}, nil
}

func (p *Pass) Config() Config { return p.config }

// Analyze runs the refinement driver without modifying the scope.
func (p *Pass) Analyze(scope *ir.Scope) (*wholeprogram.Outcome, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvariant, err)
	}

	resolver := p.Resolver
	if resolver == nil {
		resolver = ir.HierarchyResolver{Scope: scope}
	}
	driver := wholeprogram.NewDriver(scope, resolver, p.config.driver())
	driver.OnPhase = p.OnPhase
	return driver.Run()
}

// Run optimizes the scope in place. Nothing is rewritten when an error is
// returned.
func (p *Pass) Run(scope *ir.Scope) (Stats, error) {
	_, stats, err := p.run(scope)
	return stats, err
}

// RunOutcome is Run, additionally returning the analysis outcome the
// rewrite was based on.
func (p *Pass) RunOutcome(scope *ir.Scope) (*wholeprogram.Outcome, Stats, error) {
	return p.run(scope)
}

func (p *Pass) run(scope *ir.Scope) (*wholeprogram.Outcome, Stats, error) {
	out, err := p.Analyze(scope)
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{
		ConstantFields:  out.State.ConstantFields(),
		ConstantMethods: out.State.ConstantMethods(),
		ConstantParams:  out.State.ConstantParams(),
		Iterations:      out.Iterations,
		IterationCapHit: out.CapHit,
	}

	rewrite, err := transform.Prepare(scope, out.Results, p.config.transform())
	if err != nil {
		return nil, Stats{}, err
	}
	if p.config.CreateRuntimeAsserts {
		// The handler is the only way planning the assertions can fail.
		if err := runtimeassert.CheckHandler(scope, p.config.asserts().Handler); err != nil {
			return nil, Stats{}, err
		}
	}
	ts := rewrite.Commit()
	stats.InstructionsReplaced = ts.InstructionsReplaced
	stats.BranchesEliminated = ts.BranchesEliminated

	if p.config.CreateRuntimeAsserts {
		as, err := runtimeassert.Inject(scope, out.State, out.Results, p.config.asserts())
		if err != nil {
			return nil, Stats{}, err
		}
		stats.AssertsInserted = as.AssertsInserted
	}

	log.Noticef("%s", stats.summary())
	return out, stats, nil
}

// RunPass reads the options of the pass from the manager, optimizes the
// manager's scope and reports the statistics as metrics.
func RunPass(mgr Manager) error {
	config, err := ConfigFromOptions(mgr.Options(PassName))
	if err != nil {
		return err
	}
	p, err := New(config)
	if err != nil {
		return err
	}
	stats, err := p.Run(mgr.Scope())
	if err != nil {
		return err
	}
	stats.Report(mgr.IncrMetric)
	return nil
}
