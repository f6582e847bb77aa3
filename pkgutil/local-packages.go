package pkgutil

import (
	"strings"

	"github.com/tliron/commonlog"
	"golang.org/x/tools/go/ssa"
)

var log = commonlog.GetLogger("constprop.pkgutil")

// localDepth is the number of leading path segments a package must share
// with the main package to be considered part of the same project.
const localDepth = 3

func pkgQualifiedPath(pkg *ssa.Package) []string {
	path := strings.Split(strings.TrimSuffix(pkg.Pkg.Path(), ".test"), "/")
	if path[0] == "vendor" {
		path = path[1:]
	}
	return path
}

// ScopePackages determines the packages subject to optimization: the
// loaded packages together with every package of the program that is local
// to the main package. Standard library packages are never in scope.
func ScopePackages(prog *ssa.Program, initial []*ssa.Package) []*ssa.Package {
	inScope := make(map[*ssa.Package]bool)
	for _, pkg := range initial {
		inScope[pkg] = true
	}

	if mp := GetMain(initial); mp != nil {
		mainpath := pkgQualifiedPath(mp)
		for _, p := range prog.AllPackages() {
			if inScope[p] || isTestMain(p) || CheckPkgInGoroot(p.Pkg) {
				continue
			}
			pkgpath := pkgQualifiedPath(p)
			local := true
			for i := 0; local && i < localDepth && i < len(mainpath) && i < len(pkgpath); i++ {
				local = mainpath[i] == pkgpath[i]
			}
			if local {
				inScope[p] = true
			}
		}
	}

	res := make([]*ssa.Package, 0, len(inScope))
	for p := range inScope {
		res = append(res, p)
	}
	sortPackages(res)

	for _, p := range res {
		log.Debugf("in scope: %s", p.Pkg.Path())
	}
	return res
}
