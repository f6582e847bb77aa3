package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cs-au-dk/constprop/analysis/ipcp"
	"github.com/cs-au-dk/constprop/analysis/ir"
)

const sample = `
[InterproceduralConstantPropagationPass]
include_virtuals = true
max_heap_analysis_iterations = 4
replace_moves_with_consts = true

[OtherPass]
level = "high"
`

func TestParse(t *testing.T) {
	passes, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	opts := passes[ipcp.PassName]
	if len(opts) != 3 {
		t.Fatalf("expected 3 options, got %v", opts)
	}
	config, err := ipcp.ConfigFromOptions(opts)
	if err != nil {
		t.Fatal(err)
	}
	if !config.IncludeVirtuals || config.MaxHeapAnalysisIterations != 4 || !config.ReplaceMovesWithConsts {
		t.Errorf("unexpected configuration %+v", config)
	}

	if passes["OtherPass"]["level"] != "high" {
		t.Errorf("expected the options of other passes to be kept, got %v", passes["OtherPass"])
	}
}

func TestParseErrors(t *testing.T) {
	for name, src := range map[string]string{
		"malformed":      "[pass\n",
		"top-level keys": "include_virtuals = true\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(src)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	if passes, err := Load(""); err != nil || len(passes) != 0 {
		t.Errorf("expected no options without a file, got %v, %v", passes, err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a missing file to be reported, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "constprop.toml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	passes, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(passes) != 2 {
		t.Errorf("expected two pass tables, got %v", passes)
	}
}

// scope declares a static field written 42 by the class initializer and
// loaded by main.
func scope() (*ir.Scope, *ir.Insn) {
	s := ir.NewScope()
	c := s.NewClass("LMain;", nil)
	f := c.NewField("f", true, ir.TypeInt)

	clinit := c.NewMethod(ir.ClassInitializer, true, 0)
	clinit.NumRegs = 1
	b := clinit.NewBlock()
	b.Const(0, ir.Int(42))
	b.SPut(0, f.Ref())
	b.ReturnVoid()

	main := c.NewMethod("main", true, 0)
	main.Root = true
	main.NumRegs = 1
	b = main.NewBlock()
	load := b.SGet(0, f.Ref())
	b.Return(0)
	return s, load
}

func TestRunPass(t *testing.T) {
	passes, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	s, load := scope()
	ctx := NewContext(s, passes)

	if err := ipcp.RunPass(ctx); err != nil {
		t.Fatal(err)
	}
	if load.Op != ir.OpConst || load.Lit != ir.Int(42) {
		t.Errorf("expected the load to become const 42, got %s", load)
	}
	if ctx.Metric("constant_fields") != 1 || ctx.Metric("instructions_replaced") != 1 {
		t.Errorf("unexpected metrics %v", ctx.metrics)
	}
	if len(ctx.Metrics()) == 0 {
		t.Error("expected metrics to be reported")
	}
}

func TestRunPassInvalidOptions(t *testing.T) {
	s, load := scope()
	ctx := NewContext(s, Passes{ipcp.PassName: {"max_heap_analysis_iterations": int64(-1)}})

	if err := ipcp.RunPass(ctx); !errors.Is(err, ipcp.ErrConfig) {
		t.Errorf("expected a configuration error, got %v", err)
	}
	if load.Op != ir.OpSGet {
		t.Errorf("expected the scope to be left alone, got %s", load)
	}
	if len(ctx.Metrics()) != 0 {
		t.Errorf("expected no metrics, got %v", ctx.Metrics())
	}
}
