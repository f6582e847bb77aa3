package main

import (
	"fmt"
	"log"
	"os"

	"github.com/cs-au-dk/constprop/analysis/ipcp"
	"github.com/cs-au-dk/constprop/analysis/ir"
	"github.com/cs-au-dk/constprop/analysis/wholeprogram"
	"github.com/cs-au-dk/constprop/config"
	"github.com/cs-au-dk/constprop/frontend"
)

// pipeline is a wrapper around the lowered program and the context the
// passes run in.
type pipeline struct {
	lowered *frontend.Program
	ctx     *config.Context
}

// pass creates the constant propagation pass from the configured options.
func (pl pipeline) pass() (*ipcp.Pass, error) {
	cfg, err := ipcp.ConfigFromOptions(pl.ctx.Options(ipcp.PassName))
	if err != nil {
		return nil, fmt.Errorf("%w\nRecognized options of %s:\n%s", err, ipcp.PassName, ipcp.Options())
	}
	p, err := ipcp.New(cfg)
	if err != nil {
		return nil, err
	}
	opts.OnVerbose(func() {
		p.OnPhase = func(phase wholeprogram.Phase) {
			log.Println("Entering phase", phase)
		}
	})
	return p, nil
}

// optimize runs the pass over the scope and reports what it did.
func (pl pipeline) optimize() error {
	p, err := pl.pass()
	if err != nil {
		return err
	}

	log.Println("Running", ipcp.PassName+"...")
	out, stats, err := p.RunOutcome(pl.ctx.Scope())
	if err != nil {
		return err
	}
	log.Println(ipcp.PassName, "done")
	stats.Report(pl.ctx.IncrMetric)

	printMetrics(pl.ctx)
	if err := dumpState(out.State); err != nil {
		return err
	}
	if opts.PrintIR() {
		return ir.Fprint(os.Stdout, pl.ctx.Scope())
	}
	return nil
}

// analyze runs the refinement driver only and prints the final
// whole-program state.
func (pl pipeline) analyze() error {
	p, err := pl.pass()
	if err != nil {
		return err
	}

	log.Println("Analyzing...")
	out, err := p.Analyze(pl.ctx.Scope())
	if err != nil {
		return err
	}
	log.Printf("Analysis done after %d iterations", out.Iterations)
	if out.CapHit {
		log.Println("Iteration cap hit before convergence")
	}

	fmt.Println("================ Results =====================")
	fmt.Print(out.State)
	return dumpState(out.State)
}
