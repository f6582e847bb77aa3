package ipcp_test

import (
	"path/filepath"
	"testing"

	"github.com/cs-au-dk/constprop/analysis/ipcp"
	"github.com/cs-au-dk/constprop/testutil"
)

func exampleConfig() ipcp.Config {
	config := ipcp.DefaultConfig()
	config.MaxHeapAnalysisIterations = 10
	config.IncludeVirtuals = true
	config.FoldArithmetic = true
	config.PropagateArguments = true
	config.ReplaceMovesWithConsts = true
	return config
}

func TestExamples(t *testing.T) {
	for _, pkg := range testutil.ListPackagesIn(t, "../..", nil, "constprop") {
		pkg := pkg
		t.Run(filepath.Base(pkg), func(t *testing.T) {
			res := testutil.LoadExamplePackage(t, "../..", pkg)
			p, err := ipcp.New(exampleConfig())
			if err != nil {
				t.Fatal(err)
			}

			out, err := p.Analyze(res.Scope())
			if err != nil {
				t.Fatal(err)
			}
			if !out.Converged {
				t.Errorf("expected the analysis of %s to converge", pkg)
			}

			nm := testutil.MakeNotesManager(t, res)
			if len(nm.Annotations()) == 0 {
				t.Fatalf("%s has no annotations", pkg)
			}
			nm.Check(t, out)

			stats, err := p.Run(res.Scope())
			if err != nil {
				t.Fatal(err)
			}
			if stats.InstructionsReplaced+stats.BranchesEliminated == 0 {
				t.Errorf("expected %s to be rewritten, got\n%s", pkg, stats)
			}
			if err := res.Scope().Validate(); err != nil {
				t.Errorf("rewritten scope is malformed: %v", err)
			}
		})
	}
}
