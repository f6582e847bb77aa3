package ipcp

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/cs-au-dk/constprop/utils"
)

// Stats summarizes one run of the pass.
type Stats struct {
	ConstantFields       int
	ConstantMethods      int
	ConstantParams       int
	InstructionsReplaced int
	BranchesEliminated   int
	AssertsInserted      int
	Iterations           int
	IterationCapHit      bool
}

var colorize = struct {
	Key   func(...interface{}) string
	Count func(...interface{}) string
	Warn  func(...interface{}) string
}{
	Key:   utils.CanColorize(color.New(color.FgHiBlue).SprintFunc()),
	Count: utils.CanColorize(color.New(color.Bold).SprintFunc()),
	Warn:  utils.CanColorize(color.New(color.FgHiRed).SprintFunc()),
}

type metric struct {
	name  string
	value int
}

func (s Stats) metrics() []metric {
	capHit := 0
	if s.IterationCapHit {
		capHit = 1
	}
	return []metric{
		{"constant_fields", s.ConstantFields},
		{"constant_methods", s.ConstantMethods},
		{"constant_params", s.ConstantParams},
		{"instructions_replaced", s.InstructionsReplaced},
		{"branches_eliminated", s.BranchesEliminated},
		{"asserts_inserted", s.AssertsInserted},
		{"iterations", s.Iterations},
		{"iteration_cap_hit", capHit},
	}
}

// Report passes every statistic to incr under its metric name.
func (s Stats) Report(incr func(name string, value int)) {
	for _, m := range s.metrics() {
		incr(m.name, m.value)
	}
}

func (s Stats) summary() string {
	return fmt.Sprintf("%d constant fields, %d constant methods, %d instructions replaced, %d branches eliminated",
		s.ConstantFields, s.ConstantMethods, s.InstructionsReplaced, s.BranchesEliminated)
}

func (s Stats) String() string {
	var sb strings.Builder
	for _, m := range s.metrics() {
		if m.name == "iteration_cap_hit" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", colorize.Key(m.name), colorize.Count(fmt.Sprint(m.value)))
	}
	if s.IterationCapHit {
		sb.WriteString(colorize.Warn("iteration cap hit before convergence") + "\n")
	}
	return sb.String()
}
