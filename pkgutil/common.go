package pkgutil

import (
	"go/types"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// CheckPkgInGoroot checks whether a package is declared in GOROOT.
func CheckPkgInGoroot(pkg *types.Package) bool {
	path := filepath.Join(runtime.GOROOT(), "src", pkg.Path())
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return true
	}
	return false
}

// isTestMain holds for the synthesized packages driving `go test`.
func isTestMain(pkg *ssa.Package) bool {
	return strings.HasSuffix(pkg.Pkg.Path(), ".test")
}

// BuildProgram creates and builds the SSA program for the loaded packages.
// It returns the SSA packages of the loaded (not merely imported) packages,
// ordered by path.
func BuildProgram(pkgs []*packages.Package) (*ssa.Program, []*ssa.Package) {
	prog, initial := ssautil.AllPackages(pkgs, ssa.InstantiateGenerics)
	prog.Build()

	// Test variants share the path of the package they extend. The variant
	// with the most members includes the test files.
	byPath := make(map[string]*ssa.Package)
	for _, pkg := range initial {
		if pkg == nil || isTestMain(pkg) {
			continue
		}
		if prev, ok := byPath[pkg.Pkg.Path()]; !ok || len(pkg.Members) > len(prev.Members) {
			byPath[pkg.Pkg.Path()] = pkg
		}
	}

	res := make([]*ssa.Package, 0, len(byPath))
	for _, pkg := range byPath {
		res = append(res, pkg)
	}
	sortPackages(res)
	return prog, res
}

// GetMain picks the main package with the most members, ignoring
// synthesized test mains.
func GetMain(pkgs []*ssa.Package) (main *ssa.Package) {
	for _, mp := range ssautil.MainPackages(pkgs) {
		if isTestMain(mp) {
			continue
		}
		if main == nil || len(main.Members) < len(mp.Members) {
			main = mp
		}
	}
	return
}

func sortPackages(pkgs []*ssa.Package) {
	sort.Slice(pkgs, func(i, j int) bool {
		return pkgs[i].Pkg.Path() < pkgs[j].Pkg.Path()
	})
}
