package main

import (
	"log"
	"os"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/cs-au-dk/constprop/config"
	"github.com/cs-au-dk/constprop/frontend"
	"github.com/cs-au-dk/constprop/pkgutil"
	"github.com/cs-au-dk/constprop/utils"
)

var (
	opts = utils.Opts()
	task = opts.Task()
)

func main() {
	utils.ParseArgs()
	path := utils.MakePath()

	// -verbose 0 keeps notices and above.
	commonlog.Configure(opts.Verbosity()-1, nil)

	passes, err := config.Load(opts.ConfigPath())
	if err != nil {
		log.Fatalln(err)
	}

	start := time.Now()
	pkgs, err := pkgutil.LoadPackages(pkgutil.LoadConfig{
		GoPath:       opts.GoPath(),
		ModulePath:   opts.ModulePath(),
		IncludeTests: opts.IncludeTests(),
	}, path)
	if err != nil {
		log.Println("Failed pkgutil.LoadPackages")
		log.Println(err)
		os.Exit(1)
	}

	prog, initial := pkgutil.BuildProgram(pkgs)
	if pkgutil.GetMain(initial) == nil {
		log.Println("No main packages detected, only exported functions are entry points")
	}

	lowered, err := frontend.LowerProgram(prog, pkgutil.ScopePackages(prog, initial))
	if err != nil {
		log.Fatalln("Lowering failed:", err)
	}
	opts.OnVerbose(func() { utils.TimeTrack(start, "Loading") })

	pl := pipeline{
		lowered: lowered,
		ctx:     config.NewContext(lowered.Scope, passes),
	}

	if pl.secondaryTask() {
		return
	}

	switch {
	case task.IsAnalyze():
		err = pl.analyze()
	default:
		err = pl.optimize()
	}
	if err != nil {
		log.Fatalln(err)
	}
}
