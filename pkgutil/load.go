package pkgutil

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/tools/go/packages"
)

// LoadConfig determines how packages are located. With a ModulePath the
// packages are loaded in module-aware mode from that module's root,
// otherwise GOPATH mode is used with GoPath as the workspace. IncludeTests
// also loads the test variants of the packages, so Test functions become
// visible to the optimizer.
type LoadConfig struct {
	GoPath, ModulePath string
	IncludeTests       bool
}

// loadMode requests everything needed to build SSA for the packages and
// their dependencies.
const loadMode packages.LoadMode = packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
	packages.NeedImports | packages.NeedTypes | packages.NeedTypesSizes | packages.NeedSyntax |
	packages.NeedTypesInfo | packages.NeedDeps

// ErrLoad is returned when the loaded packages contain errors.
var ErrLoad = errors.New("errors encountered while loading packages")

var (
	moduleRegex = regexp.MustCompile(`(?m)^module\s+(\S+)`)

	cwd = func() string {
		dir, err := os.Getwd()
		if err != nil {
			panic(err)
		}
		return dir
	}()
)

// relativizingParseFile parses files under names relative to the working
// directory, which keeps printed positions stable across machines.
func relativizingParseFile(fset *token.FileSet, filename string, src []byte) (*ast.File, error) {
	if rel, err := filepath.Rel(cwd, filename); err == nil {
		filename = rel
	}
	return parser.ParseFile(fset, filename, src, parser.AllErrors|parser.ParseComments)
}

// ModuleName reads the module path declared by the go.mod file in dir.
func ModuleName(dir string) (string, error) {
	contents, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return "", fmt.Errorf("unable to read go.mod in %s: %w", dir, err)
	}
	m := moduleRegex.FindSubmatch(contents)
	if m == nil {
		return "", fmt.Errorf("no module directive in %s", filepath.Join(dir, "go.mod"))
	}
	return string(m[1]), nil
}

// LoadPackages loads the packages matching the query.
func LoadPackages(cfg LoadConfig, query string) ([]*packages.Package, error) {
	config := &packages.Config{
		Mode:      loadMode,
		Tests:     cfg.IncludeTests,
		ParseFile: relativizingParseFile,
	}

	if cfg.ModulePath != "" {
		dir, err := filepath.Abs(cfg.ModulePath)
		if err != nil {
			return nil, err
		}
		if _, err := ModuleName(dir); err != nil {
			return nil, err
		}
		config.Dir = dir
		config.Env = append(os.Environ(), "GO111MODULE=on")
		if cfg.GoPath != "" {
			gopath, err := filepath.Abs(cfg.GoPath)
			if err != nil {
				return nil, err
			}
			config.Env = append(config.Env, "GOPATH="+gopath)
		}
	} else {
		gopath, err := filepath.Abs(cfg.GoPath)
		if err != nil {
			return nil, err
		}
		config.Env = append(os.Environ(), "GOPATH="+gopath, "GO111MODULE=off")
	}

	return load(config, query)
}

// LoadPackagesFromSource loads a single main package given as source text.
func LoadPackagesFromSource(source string) ([]*packages.Package, error) {
	const file = "/fake/testpackage/main.go"
	config := &packages.Config{
		Mode:    loadMode,
		Env:     append(os.Environ(), "GO111MODULE=off", "GOPATH=/fake"),
		Overlay: map[string][]byte{file: []byte(source)},
	}
	return load(config, file)
}

func load(config *packages.Config, query string) ([]*packages.Package, error) {
	pkgs, err := packages.Load(config, query)
	if err != nil {
		return nil, err
	}
	if packages.PrintErrors(pkgs) > 0 {
		return nil, ErrLoad
	}
	if !config.Tests {
		return pkgs, nil
	}

	// A package with tests is reported both with and without its test
	// files. Only the variant with tests is kept so every function is
	// lowered once.
	ids := make(map[string]bool, len(pkgs))
	for _, pkg := range pkgs {
		ids[pkg.ID] = true
	}
	var res []*packages.Package
	for _, pkg := range pkgs {
		if !ids[fmt.Sprintf("%s [%s.test]", pkg.ID, pkg.ID)] {
			res = append(res, pkg)
		}
	}
	return res, nil
}
