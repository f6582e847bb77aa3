package pkgutil

import (
	"go/types"
	"sort"
	"strings"

	"golang.org/x/tools/go/ssa"
)

// TestFunctions returns the Test functions declared in the packages. They
// are entry points called by the test runner.
func TestFunctions(pkgs []*ssa.Package) (res []*ssa.Function) {
	for _, pkg := range pkgs {
		for name, member := range pkg.Members {
			fun, ok := member.(*ssa.Function)
			if ok && strings.HasPrefix(name, "Test") && isTestingT(fun) {
				res = append(res, fun)
			}
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].String() < res[j].String()
	})
	return
}

func isTestingT(fun *ssa.Function) bool {
	sig := fun.Signature
	if sig.Recv() != nil || sig.Params().Len() != 1 || sig.Results().Len() != 0 {
		return false
	}
	ptr, ok := sig.Params().At(0).Type().(*types.Pointer)
	if !ok {
		return false
	}
	named, ok := ptr.Elem().(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == "testing" && obj.Name() == "T"
}
