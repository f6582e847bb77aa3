package wholeprogram

import (
	"runtime"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/cs-au-dk/constprop/analysis/fixpoint"
	"github.com/cs-au-dk/constprop/analysis/ir"
)

var log = commonlog.GetLogger("constprop.driver")

// Phase is the state of the refinement driver.
type Phase int

const (
	Seeding Phase = iota
	Analyzing
	Aggregating
	Converged
	Iterating
)

var phaseNames = [...]string{"Seeding", "Analyzing", "Aggregating", "Converged", "Iterating"}

func (p Phase) String() string { return phaseNames[p] }

type Config struct {
	Fixpoint fixpoint.Config
	// MaxIterations bounds the number of refinements. 0 disables them.
	MaxIterations      int
	PropagateArguments bool
}

// Outcome is the final result of the driver. Results were computed under
// State.
type Outcome struct {
	State      *State
	Results    map[*ir.Method]*fixpoint.Result
	Index      *fixpoint.Index
	Iterations int
	Converged  bool
	CapHit     bool
}

// Driver repeatedly analyzes every method of a scope, feeding each round's
// aggregated snapshot to the next, until two consecutive snapshots agree or
// the iteration cap is reached.
type Driver struct {
	Scope    *ir.Scope
	Resolver ir.Resolver
	Config   Config
	// OnPhase, if set, is called on every phase transition.
	OnPhase func(Phase)

	phase   Phase
	methods []*ir.Method
	idx     *fixpoint.Index
}

func NewDriver(scope *ir.Scope, resolver ir.Resolver, config Config) *Driver {
	return &Driver{Scope: scope, Resolver: resolver, Config: config}
}

// Phase returns the current phase.
func (d *Driver) Phase() Phase { return d.phase }

func (d *Driver) enter(p Phase) {
	d.phase = p
	if d.OnPhase != nil {
		d.OnPhase(p)
	}
}

func (d *Driver) Run() (*Outcome, error) {
	d.enter(Seeding)
	d.idx = fixpoint.NewIndex(d.Scope, d.Resolver)
	d.methods = d.methods[:0]
	for _, m := range d.Scope.Methods() {
		if m.HasBody() {
			d.methods = append(d.methods, m)
		}
	}
	state := Seed()

	results, err := d.analyze(state)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Index: d.idx}
	for out.Iterations < d.Config.MaxIterations {
		d.enter(Aggregating)
		next := Aggregate(d.idx, results, d.Config.PropagateArguments)
		if next.Equal(state) {
			out.Converged = true
			break
		}

		d.enter(Iterating)
		out.Iterations++
		log.Infof("iteration %d: %d constant fields, %d constant methods",
			out.Iterations, next.ConstantFields(), next.ConstantMethods())
		state = next

		if results, err = d.analyze(state); err != nil {
			return nil, err
		}
	}

	if !out.Converged && d.Config.MaxIterations > 0 {
		// The cap is exhausted; check whether the last round happened to be
		// stable.
		d.enter(Aggregating)
		if Aggregate(d.idx, results, d.Config.PropagateArguments).Equal(state) {
			out.Converged = true
		} else {
			out.CapHit = true
			log.Noticef("no fixpoint after %d iterations", out.Iterations)
		}
	}
	if out.Converged {
		d.enter(Converged)
	}

	out.State = state
	out.Results = make(map[*ir.Method]*fixpoint.Result, len(results))
	for i, m := range d.methods {
		out.Results[m] = results[i]
	}
	return out, nil
}

// analyze runs the fixpoint iterator on every method in parallel. The
// results are positioned like d.methods.
func (d *Driver) analyze(state *State) ([]*fixpoint.Result, error) {
	d.enter(Analyzing)

	results := make([]*fixpoint.Result, len(d.methods))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range d.methods {
		i, m := i, m
		g.Go(func() error {
			res, err := fixpoint.Analyze(m, state, d.idx, d.Config.Fixpoint)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
