package utils

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/fatih/color"
)

type options struct {
	function     string
	outputFormat string
	gopath       string
	modulePath   string
	configPath   string
	dumpState    string
	task         string
	verbosity    int
	noColorize   bool
	includeTests bool
	printIR      bool
}

const (
	_OPTIMIZE = iota
	_ANALYZE
	_PRINT_IR
	_CFG_TO_DOT
)

// CanColorize wraps a colouring function, making it the identity when
// colours have been disabled.
func CanColorize(col func(...interface{}) string) func(...interface{}) string {
	return func(is ...interface{}) string {
		if opts.noColorize || color.NoColor {
			return fmt.Sprintf(strings.Repeat("%s", len(is)), is...)
		}
		return col(is...)
	}
}

var task = []struct{ flag, explanation string }{{
	"optimize",
	"Run interprocedural constant propagation and apply the rewrite",
}, {
	"analyze",
	"Run the refinement driver only and print the whole-program state",
}, {
	"print-ir",
	"Print the lowered IR without analysing it",
}, {
	"cfg-to-dot",
	"Render the control-flow graph of the function selected with -fun",
}}

var opts = &options{}

type optInterface struct{}

type taskInterface struct{}

func Opts() optInterface {
	return optInterface{}
}

func (optInterface) NoColorize() bool {
	return opts.noColorize
}
func (optInterface) Function() string {
	return opts.function
}
func (optInterface) OutputFormat() string {
	return opts.outputFormat
}
func (optInterface) GoPath() string {
	return opts.gopath
}
func (optInterface) ModulePath() string {
	return opts.modulePath
}
func (optInterface) ConfigPath() string {
	return opts.configPath
}
func (optInterface) DumpState() string {
	return opts.dumpState
}
func (optInterface) Verbosity() int {
	return opts.verbosity
}
func (optInterface) Verbose() bool {
	return opts.verbosity > 0
}
func (optInterface) IncludeTests() bool {
	return opts.includeTests
}
func (optInterface) PrintIR() bool {
	return opts.printIR
}
func (optInterface) Task() taskInterface {
	return taskInterface{}
}
func (taskInterface) IsOptimize() bool {
	return opts.task == task[_OPTIMIZE].flag
}
func (taskInterface) IsAnalyze() bool {
	return opts.task == task[_ANALYZE].flag
}
func (taskInterface) IsPrintIR() bool {
	return opts.task == task[_PRINT_IR].flag
}
func (taskInterface) IsCfgToDot() bool {
	return opts.task == task[_CFG_TO_DOT].flag
}

func init() {
	taskFlag := "\n"
	for _, task := range task {
		taskFlag += task.flag + " -- " + task.explanation + "\n"
	}
	taskFlag += "\n"

	flag.StringVar(&(opts.function), "fun", "main", "function whose CFG is rendered by -task=cfg-to-dot.\n"+
		"Function names are matched against the lowered method name (e.g. 'main.compute' or 'main.T.String').")
	flag.StringVar(&(opts.outputFormat), "format", "svg", "output file format [svg | png | jpg | dot]")
	flag.StringVar(&(opts.gopath), "gopath", ".", "specify GOPATH to be used for packages.Load")
	flag.StringVar(&(opts.modulePath), "modulepath", "", `specify a path to a directory containing a Go module.
- If provided, packages are loaded in "module-aware" mode (GO111MODULE=on).`)
	flag.StringVar(&(opts.configPath), "config", "", "TOML file with pass options, one table per pass")
	flag.StringVar(&(opts.dumpState), "dump-state", "", "write the final whole-program state as CBOR to this file")
	flag.StringVar(&(opts.task), "task", task[_OPTIMIZE].flag, "Set the task to do during execution. Options:"+taskFlag)
	flag.BoolVar(&(opts.noColorize), "no-colorize", false, "Disable pretty printer colorization")
	flag.BoolVar(&(opts.includeTests), "include-tests", false, "include test files of the loaded packages")
	flag.BoolVar(&(opts.printIR), "print", false, "print the IR after the pass has run")
	flag.IntVar(&(opts.verbosity), "verbose", 0, "log verbosity (0 = notices only, 1 = info, 2 = debug)")

	log.SetFlags(log.Ltime | log.Lshortfile)
}

func ParseArgs() {
	// Calling flag.Parse in init messes up unit tests.
	flag.Parse()

	validTask := false
	for _, task := range task {
		if task.flag == opts.task {
			validTask = true
			break
		}
	}

	if !validTask {
		log.Fatalf("Value \"%s\" is not valid for -task", opts.task)
	}

	if Opts().Task().IsCfgToDot() {
		opts.noColorize = true
	}
	color.NoColor = color.NoColor || opts.noColorize
}

func (optInterface) OnVerbose(do func()) {
	if Opts().Verbose() {
		do()
	}
}
