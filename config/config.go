// Package config reads the pass configuration file of the command line
// tool and provides the context passes run in.
//
// A configuration file holds one table per pass, keyed by pass name:
//
//	[InterproceduralConstantPropagationPass]
//	include_virtuals = true
//	max_heap_analysis_iterations = 4
//
// The values are handed to the pass uninterpreted; each pass validates its
// own options.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/cs-au-dk/constprop/analysis/ir"
)

var log = commonlog.GetLogger("constprop.config")

// Passes maps pass names to their raw option values.
type Passes map[string]map[string]any

// Parse decodes a configuration file.
func Parse(data []byte) (Passes, error) {
	passes := make(Passes)
	if _, err := toml.Decode(string(data), &passes); err != nil {
		return nil, err
	}
	return passes, nil
}

// Load reads the configuration file at path. An empty path yields an empty
// configuration, leaving every pass at its defaults.
func Load(path string) (Passes, error) {
	if path == "" {
		return Passes{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	passes, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	for _, name := range passes.names() {
		log.Debugf("%s: %d options for %s", path, len(passes[name]), name)
	}
	return passes, nil
}

func (p Passes) names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Context is the environment passes run in: the scope being optimized,
// the configured options and the metrics the passes report.
type Context struct {
	scope   *ir.Scope
	passes  Passes
	metrics map[string]int
}

func NewContext(scope *ir.Scope, passes Passes) *Context {
	return &Context{
		scope:   scope,
		passes:  passes,
		metrics: make(map[string]int),
	}
}

func (c *Context) Scope() *ir.Scope { return c.scope }

// Options returns the options of a pass. A pass without a table gets no
// options.
func (c *Context) Options(pass string) map[string]any {
	if opts, ok := c.passes[pass]; ok {
		return opts
	}
	return map[string]any{}
}

func (c *Context) IncrMetric(name string, value int) {
	c.metrics[name] += value
}

// Metric returns the accumulated value of a metric.
func (c *Context) Metric(name string) int { return c.metrics[name] }

// Metrics lists the names of the reported metrics in order.
func (c *Context) Metrics() []string {
	names := make([]string, 0, len(c.metrics))
	for name := range c.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
