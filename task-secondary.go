package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/cs-au-dk/constprop/analysis/ir"
	"github.com/cs-au-dk/constprop/utils/dot"
)

// secondaryTask checks whether a task that does not run the pass was
// provided, and executes it.
func (pl pipeline) secondaryTask() bool {
	switch {
	// print-ir : prints the lowered program.
	case task.IsPrintIR():
		if err := ir.Fprint(os.Stdout, pl.ctx.Scope()); err != nil {
			log.Fatalln(err)
		}

	// cfg-to-dot : renders the control-flow graph of the method selected
	// with -fun.
	case task.IsCfgToDot():
		m := pl.ctx.Scope().FindMethod(opts.Function())
		if m == nil {
			log.Fatalf("No method %q in the scope. Candidates:\n%s", opts.Function(), candidates(pl.ctx.Scope(), opts.Function()))
		}

		fname := strings.NewReplacer("/", "_", "<", "", ">", "", "$", "_").Replace(m.String())
		out, err := dot.Render(fname, opts.OutputFormat(), m.Dot())
		if err != nil {
			log.Fatalln("Rendering failed:", err)
		}
		fmt.Println("Wrote", out)
		if fn := pl.lowered.Function(m); fn != nil && fn.Pos().IsValid() {
			fmt.Println("Lowered from", fn, "at", fn.Prog.Fset.Position(fn.Pos()))
		}

	default:
		return false
	}
	return true
}

// candidates lists the methods whose name ends like the requested one.
func candidates(scope *ir.Scope, name string) string {
	suffix := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		suffix = name[i:]
	}

	var sb strings.Builder
	for _, m := range scope.Methods() {
		if strings.HasSuffix(m.String(), suffix) {
			fmt.Fprintf(&sb, "  %s\n", m)
		}
	}
	return sb.String()
}
