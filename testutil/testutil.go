package testutil

import (
	"bytes"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"

	"github.com/cs-au-dk/constprop/analysis/ir"
	"github.com/cs-au-dk/constprop/frontend"
	"github.com/cs-au-dk/constprop/pkgutil"
)

// LoadResult contains a loaded Go program and its lowering.
type LoadResult struct {
	// MainPkg is the package focused by the test.
	MainPkg *packages.Package
	// Prog is the SSA representation of the entire program.
	Prog *ssa.Program
	// Pkgs are the packages lowered into the scope.
	Pkgs []*ssa.Package
	// Lowered maps between the program and the scope.
	Lowered *frontend.Program
}

func (res LoadResult) Scope() *ir.Scope { return res.Lowered.Scope }

// LoadExampleAsPackages loads a package under examples/src.
func LoadExampleAsPackages(t *testing.T, pathToRoot string, pkg string) []*packages.Package {
	// Invoking the package tools is slow because it uses `go list` under the
	// hood. A single file without imports is type checked directly.
	srcDir := filepath.Join(pathToRoot, "examples", "src", pkg)
	if entries, err := os.ReadDir(srcDir); err == nil && len(entries) == 1 {
		entry := entries[0]
		if !entry.IsDir() && entry.Name() == "main.go" {
			if content, err := os.ReadFile(filepath.Join(srcDir, "main.go")); err == nil &&
				!bytes.Contains(content, []byte("import")) {
				return LoadSourceAsPackages(t, pkg, string(content))
			}
		}
	}

	pkgs, err := pkgutil.LoadPackages(pkgutil.LoadConfig{GoPath: filepath.Join(pathToRoot, "examples")}, pkg)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkgs) != 1 {
		t.Fatalf("expected %s to contain a single package, got %v", pkg, pkgs)
	}
	return pkgs
}

func LoadExamplePackage(t *testing.T, pathToRoot string, pkg string) LoadResult {
	return LoadResultFromPackages(t, LoadExampleAsPackages(t, pathToRoot, pkg))
}

// lowerLock serializes lowering, which walks every function of a program.
var lowerLock sync.Mutex

func LoadResultFromPackages(t *testing.T, pkgs []*packages.Package) (res LoadResult) {
	t.Helper()
	res.MainPkg = pkgs[0]

	prog, initial := pkgutil.BuildProgram(pkgs)
	res.Prog = prog
	res.Pkgs = pkgutil.ScopePackages(prog, initial)

	lowerLock.Lock()
	defer lowerLock.Unlock()

	lowered, err := frontend.LowerProgram(prog, res.Pkgs)
	if err != nil {
		t.Fatal(err)
	}
	res.Lowered = lowered
	return
}

// LoadSourceAsPackages type checks a main package given as source text.
func LoadSourceAsPackages(t *testing.T, importPath string, content string) []*packages.Package {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "main.go", content, parser.ParseComments)
	if err != nil {
		t.Fatal(err)
	}
	files := []*ast.File{file}

	pkg := types.NewPackage(importPath, file.Name.Name)
	info := &types.Info{
		Types:      make(map[ast.Expr]types.TypeAndValue),
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Implicits:  make(map[ast.Node]types.Object),
		Instances:  make(map[*ast.Ident]types.Instance),
		Scopes:     make(map[ast.Node]*types.Scope),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
	}
	if err := types.NewChecker(
		&types.Config{Importer: importer.Default()},
		fset, pkg, info).Files(files); err != nil {
		t.Fatal(err)
	}

	if len(pkg.Imports()) == 0 {
		return []*packages.Package{{
			ID:        "pkg-loaded-from-src",
			Name:      pkg.Name(),
			PkgPath:   pkg.Path(),
			Types:     pkg,
			Fset:      fset,
			Syntax:    files,
			TypesInfo: info,
		}}
	}

	// Dependencies need the package tools to be loaded from source.
	pkgs, err := pkgutil.LoadPackagesFromSource(content)
	if err != nil {
		t.Fatal(err)
	}
	return pkgs
}

func LoadPackageFromSource(t *testing.T, importPath string, content string) LoadResult {
	return LoadResultFromPackages(t, LoadSourceAsPackages(t, importPath, content))
}

// ListPackagesIn lists the example packages in a directory under
// examples/src, leaving out the blacklisted ones.
func ListPackagesIn(t *testing.T, pathToRoot string, blacklist []string, dir string) []string {
	entries, err := os.ReadDir(filepath.Join(pathToRoot, "examples", "src", dir))
	if err != nil {
		t.Fatal(err)
	}

	skip := make(map[string]bool, len(blacklist))
	for _, name := range blacklist {
		skip[name] = true
	}

	var res []string
	for _, entry := range entries {
		if entry.IsDir() && !skip[entry.Name()] {
			res = append(res, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(res)
	return res
}
