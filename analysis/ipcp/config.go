package ipcp

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cs-au-dk/constprop/analysis/fixpoint"
	"github.com/cs-au-dk/constprop/analysis/runtimeassert"
	"github.com/cs-au-dk/constprop/analysis/transform"
	"github.com/cs-au-dk/constprop/analysis/wholeprogram"
)

// ErrConfig reports an invalid pass configuration.
var ErrConfig = errors.New("invalid configuration")

// Config holds every recognized option of the pass.
type Config struct {
	IncludeVirtuals           bool
	CreateRuntimeAsserts      bool
	MaxHeapAnalysisIterations int
	FoldArithmetic            bool
	ReplaceMovesWithConsts    bool
	PropagateArguments        bool
	RuntimeAssertFields       bool
	RuntimeAssertReturns      bool
	RuntimeAssertBranches     bool
}

type optionKind int

const (
	boolOption optionKind = iota
	intOption
)

func (k optionKind) String() string {
	if k == boolOption {
		return "bool"
	}
	return "int"
}

type option struct {
	name string
	kind optionKind
	doc  string
	// The accessor matching kind selects the entry the option controls.
	boolField func(*Config) *bool
	intField  func(*Config) *int
}

// options enumerates the recognized options. Defaults are those of
// DefaultConfig.
var options = []option{{
	name:      "include_virtuals",
	kind:      boolOption,
	doc:       "resolve virtual-dispatch call targets instead of treating them as unknown",
	boolField: func(c *Config) *bool { return &c.IncludeVirtuals },
}, {
	name:      "create_runtime_asserts",
	kind:      boolOption,
	doc:       "insert runtime checks of the proven constants",
	boolField: func(c *Config) *bool { return &c.CreateRuntimeAsserts },
}, {
	name:     "max_heap_analysis_iterations",
	kind:     intOption,
	doc:      "refinement iteration cap; 0 disables whole-program refinement",
	intField: func(c *Config) *int { return &c.MaxHeapAnalysisIterations },
}, {
	name:      "fold_arithmetic",
	kind:      boolOption,
	doc:       "evaluate arithmetic over constant operands",
	boolField: func(c *Config) *bool { return &c.FoldArithmetic },
}, {
	name:      "replace_moves_with_consts",
	kind:      boolOption,
	doc:       "materialize constant moves, loads, arithmetic and call results",
	boolField: func(c *Config) *bool { return &c.ReplaceMovesWithConsts },
}, {
	name:      "propagate_arguments",
	kind:      boolOption,
	doc:       "summarize the arguments of methods whose call sites are all known",
	boolField: func(c *Config) *bool { return &c.PropagateArguments },
}, {
	name:      "runtime_assert_fields",
	kind:      boolOption,
	doc:       "check constant field loads at runtime",
	boolField: func(c *Config) *bool { return &c.RuntimeAssertFields },
}, {
	name:      "runtime_assert_returns",
	kind:      boolOption,
	doc:       "check constant return values at runtime",
	boolField: func(c *Config) *bool { return &c.RuntimeAssertReturns },
}, {
	name:      "runtime_assert_branches",
	kind:      boolOption,
	doc:       "check the operands of folded branches at runtime",
	boolField: func(c *Config) *bool { return &c.RuntimeAssertBranches },
}}

func lookupOption(name string) (option, bool) {
	for _, o := range options {
		if o.name == name {
			return o, true
		}
	}
	return option{}, false
}

// DefaultConfig disables every optional feature. Once asserts are enabled,
// all kinds of sites are checked.
func DefaultConfig() Config {
	return Config{
		RuntimeAssertFields:   true,
		RuntimeAssertReturns:  true,
		RuntimeAssertBranches: true,
	}
}

// Options describes the recognized options, one per line.
func Options() string {
	var sb strings.Builder
	for _, o := range options {
		fmt.Fprintf(&sb, "%s (%s) -- %s\n", o.name, o.kind, o.doc)
	}
	return sb.String()
}

// ConfigFromOptions builds a configuration from option values keyed by
// option name, starting from DefaultConfig. Integers may be given as any
// Go integer type, as decoders of configuration files produce int64.
func ConfigFromOptions(values map[string]any) (Config, error) {
	config := DefaultConfig()

	// Sorted for deterministic error reporting.
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		o, ok := lookupOption(name)
		if !ok {
			return Config{}, fmt.Errorf("%w: unknown option %q", ErrConfig, name)
		}

		value := values[name]
		switch o.kind {
		case boolOption:
			b, ok := value.(bool)
			if !ok {
				return Config{}, fmt.Errorf("%w: option %q expects a bool, got %T", ErrConfig, name, value)
			}
			*o.boolField(&config) = b

		case intOption:
			i, ok := toInt(value)
			if !ok {
				return Config{}, fmt.Errorf("%w: option %q expects an int, got %T", ErrConfig, name, value)
			}
			*o.intField(&config) = i
		}
	}

	return config, config.Validate()
}

// toInt accepts any integer type whose value fits an int.
func toInt(v any) (int, bool) {
	switch v := v.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		if v < math.MinInt || v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case uint:
		return fromUnsigned(uint64(v))
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return fromUnsigned(uint64(v))
	case uint64:
		return fromUnsigned(v)
	}
	return 0, false
}

func fromUnsigned(v uint64) (int, bool) {
	if v > math.MaxInt {
		return 0, false
	}
	return int(v), true
}

// Validate rejects configurations no run can satisfy.
func (c Config) Validate() error {
	if c.MaxHeapAnalysisIterations < 0 {
		return fmt.Errorf("%w: max_heap_analysis_iterations must not be negative, got %d",
			ErrConfig, c.MaxHeapAnalysisIterations)
	}
	return nil
}

func (c Config) driver() wholeprogram.Config {
	return wholeprogram.Config{
		Fixpoint: fixpoint.Config{
			FoldArithmetic:  c.FoldArithmetic,
			IncludeVirtuals: c.IncludeVirtuals,
		},
		MaxIterations:      c.MaxHeapAnalysisIterations,
		PropagateArguments: c.PropagateArguments,
	}
}

func (c Config) transform() transform.Config {
	return transform.Config{
		ReplaceMovesWithConsts: c.ReplaceMovesWithConsts,
		IncludeVirtuals:        c.IncludeVirtuals,
	}
}

func (c Config) asserts() runtimeassert.Config {
	return runtimeassert.Config{
		Fields:   c.RuntimeAssertFields,
		Returns:  c.RuntimeAssertReturns,
		Branches: c.RuntimeAssertBranches,
		Handler:  runtimeassert.DefaultHandler,
	}
}
