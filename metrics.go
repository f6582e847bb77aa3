package main

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"

	"github.com/cs-au-dk/constprop/analysis/wholeprogram"
	"github.com/cs-au-dk/constprop/config"
	"github.com/cs-au-dk/constprop/utils"
)

var colorize = struct {
	Metric func(...interface{}) string
	Value  func(...interface{}) string
}{
	Metric: utils.CanColorize(color.New(color.FgHiCyan).SprintFunc()),
	Value:  utils.CanColorize(color.New(color.FgGreen, color.Bold).SprintFunc()),
}

// printMetrics lists the metrics reported by the passes.
func printMetrics(ctx *config.Context) {
	fmt.Println("================ Metrics =====================")
	for _, name := range ctx.Metrics() {
		fmt.Printf("%s: %s\n", colorize.Metric(name), colorize.Value(fmt.Sprint(ctx.Metric(name))))
	}
}

// dumpState writes the whole-program state to the file given with
// -dump-state, if any.
func dumpState(state *wholeprogram.State) error {
	path := opts.DumpState()
	if path == "" {
		return nil
	}
	data, err := state.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write state dump: %w", err)
	}
	log.Println("Whole-program state written to", path)
	return nil
}
