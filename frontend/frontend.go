// Package frontend lowers Go programs in SSA form into the register IR
// analyzed by the optimizer.
//
// Every package becomes a class holding the package's globals as static
// fields and its functions as static methods; the package initializer
// becomes the class initializer. Named types become classes whose instance
// fields are the struct fields and whose methods are dispatched virtually,
// and interfaces become interface classes. Instructions the IR does not
// model are lowered to opaque instructions.
package frontend

import (
	"go/ast"
	"go/token"
	"go/types"
	"sort"

	"github.com/tliron/commonlog"
	"golang.org/x/tools/go/ssa"

	"github.com/cs-au-dk/constprop/analysis/ir"
	"github.com/cs-au-dk/constprop/pkgutil"
)

var log = commonlog.GetLogger("constprop.frontend")

// Program is the result of lowering.
type Program struct {
	Scope *ir.Scope
	// Methods maps every lowered function to its method.
	Methods map[*ssa.Function]*ir.Method

	origin map[*ir.Insn]ssa.Instruction
	fset   *token.FileSet
}

// Origin returns the SSA instruction an IR instruction was lowered from.
func (p *Program) Origin(insn *ir.Insn) ssa.Instruction { return p.origin[insn] }

// Position returns the source position of an IR instruction, if known.
func (p *Program) Position(insn *ir.Insn) (token.Position, bool) {
	instr := p.origin[insn]
	if instr == nil || !instr.Pos().IsValid() {
		return token.Position{}, false
	}
	return p.fset.Position(instr.Pos()), true
}

// Function returns the function a method was lowered from.
func (p *Program) Function(m *ir.Method) *ssa.Function {
	for fn, m2 := range p.Methods {
		if m2 == m {
			return fn
		}
	}
	return nil
}

type lowerer struct {
	prog *ssa.Program
	pkgs []*ssa.Package

	scope    *ir.Scope
	classes  map[*types.Named]*ir.Class
	globals  map[*ssa.Global]*ir.Field
	fields   map[*types.Var]*ir.Field
	methods  map[*ssa.Function]*ir.Method
	named    []*types.Named
	origin   map[*ir.Insn]ssa.Instruction
	lowered  []*ssa.Function
	external map[*ir.Class]bool
}

// Lower lowers the packages of the program into a scope.
func Lower(prog *ssa.Program, pkgs []*ssa.Package) (*ir.Scope, error) {
	p, err := LowerProgram(prog, pkgs)
	if err != nil {
		return nil, err
	}
	return p.Scope, nil
}

// LowerProgram lowers the packages of the program, keeping the mapping
// between the program and the scope. The program must be built.
func LowerProgram(prog *ssa.Program, pkgs []*ssa.Package) (*Program, error) {
	l := &lowerer{
		prog:     prog,
		pkgs:     append([]*ssa.Package(nil), pkgs...),
		scope:    ir.NewScope(),
		classes:  make(map[*types.Named]*ir.Class),
		globals:  make(map[*ssa.Global]*ir.Field),
		fields:   make(map[*types.Var]*ir.Field),
		methods:  make(map[*ssa.Function]*ir.Method),
		origin:   make(map[*ir.Insn]ssa.Instruction),
		external: make(map[*ir.Class]bool),
	}
	sort.Slice(l.pkgs, func(i, j int) bool {
		return l.pkgs[i].Pkg.Path() < l.pkgs[j].Pkg.Path()
	})

	for _, pkg := range l.pkgs {
		l.declarePackage(pkg)
	}
	for _, t := range l.named {
		l.declareType(t)
	}
	l.recordImplementations()
	l.markRoots()
	l.markEscapes()

	for _, fn := range l.lowered {
		if err := l.lowerFunction(fn); err != nil {
			return nil, err
		}
	}

	if err := l.scope.Validate(); err != nil {
		return nil, err
	}
	l.scope.IndexFields()

	log.Infof("lowered %d classes, %d methods", len(l.scope.Classes), len(l.methods))
	return &Program{
		Scope:   l.scope,
		Methods: l.methods,
		origin:  l.origin,
		fset:    prog.Fset,
	}, nil
}

func sortedMembers(pkg *ssa.Package) []string {
	names := make([]string, 0, len(pkg.Members))
	for name := range pkg.Members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *lowerer) declarePackage(pkg *ssa.Package) {
	c := l.scope.NewClass(pkg.Pkg.Path(), nil)

	for _, name := range sortedMembers(pkg) {
		switch mem := pkg.Members[name].(type) {
		case *ssa.Global:
			elem := mem.Type().(*types.Pointer).Elem()
			f := c.NewField(name, true, fieldType(elem))
			if f.Type == ir.TypeString {
				zero := ir.String("")
				f.Initial = &zero
			}
			l.globals[mem] = f

		case *ssa.Function:
			if mem.TypeParams().Len() > 0 {
				// Only instantiations have bodies; they are left unanalyzed.
				continue
			}
			mname := name
			if name == "init" {
				mname = ir.ClassInitializer
			}
			l.declareFunction(c, mem, mname, true)

		case *ssa.Type:
			if t, ok := mem.Type().(*types.Named); ok && t.TypeParams().Len() == 0 {
				l.named = append(l.named, t)
			}
		}
	}

	// Declared init functions are not members; the package initializer
	// calls them in order.
	if init := pkg.Func("init"); init != nil {
		for _, b := range init.Blocks {
			for _, instr := range b.Instrs {
				call, ok := instr.(*ssa.Call)
				if !ok {
					continue
				}
				if fn := call.Call.StaticCallee(); fn != nil && fn.Pkg == pkg && l.methods[fn] == nil {
					l.declareFunction(c, fn, fn.Name(), true)
				}
			}
		}
	}
}

func className(t *types.Named) string {
	obj := t.Obj()
	if obj.Pkg() == nil {
		return obj.Name()
	}
	return obj.Pkg().Path() + "." + obj.Name()
}

func (l *lowerer) declareType(t *types.Named) {
	c := l.scope.NewClass(className(t), nil)
	l.classes[t] = c

	switch u := t.Underlying().(type) {
	case *types.Interface:
		c.IsInterface = true
		for i := 0; i < u.NumMethods(); i++ {
			fn := u.Method(i)
			sig := fn.Type().(*types.Signature)
			m := c.NewMethod(fn.Name(), false, 1+sig.Params().Len())
			m.External = true
		}
		return

	case *types.Struct:
		for i := 0; i < u.NumFields(); i++ {
			v := u.Field(i)
			l.fields[v] = c.NewField(v.Name(), false, fieldType(v.Type()))
			if l.fields[v].Type == ir.TypeString {
				zero := ir.String("")
				l.fields[v].Initial = &zero
			}
		}
	}

	for i := 0; i < t.NumMethods(); i++ {
		fn := l.prog.FuncValue(t.Method(i))
		if fn == nil {
			continue
		}
		l.declareFunction(c, fn, fn.Name(), false)
	}
}

// declareFunction declares the method for a function and, as static
// methods of the same class, for the functions it encloses. Free variables
// occupy the first parameter registers.
func (l *lowerer) declareFunction(c *ir.Class, fn *ssa.Function, name string, static bool) {
	m := c.NewMethod(name, static, len(fn.FreeVars)+len(fn.Params))
	if len(fn.Blocks) == 0 {
		m.External = true
	} else {
		l.lowered = append(l.lowered, fn)
	}
	l.methods[fn] = m

	for _, anon := range fn.AnonFuncs {
		l.declareFunction(c, anon, anon.Name(), true)
	}
}

func (l *lowerer) recordImplementations() {
	var ifaces []*types.Named
	for _, t := range l.named {
		if types.IsInterface(t) {
			ifaces = append(ifaces, t)
		}
	}

	for _, t := range l.named {
		if types.IsInterface(t) {
			continue
		}
		c := l.classes[t]
		for _, it := range ifaces {
			iface := it.Underlying().(*types.Interface)
			if types.Implements(t, iface) || types.Implements(types.NewPointer(t), iface) {
				c.Interfaces = append(c.Interfaces, l.classes[it])
			}
		}
	}
}

// markRoots marks the methods that are entry points of the program.
// Methods of named types are reachable through interfaces and method
// values, and are roots as well. Functions used as values are marked while
// searching for escapes.
func (l *lowerer) markRoots() {
	for _, pkg := range l.pkgs {
		isMain := pkg.Pkg.Name() == "main"
		for _, name := range sortedMembers(pkg) {
			fn, ok := pkg.Members[name].(*ssa.Function)
			if !ok || l.methods[fn] == nil {
				continue
			}
			switch {
			case name == "init",
				isMain && name == "main",
				!isMain && ast.IsExported(name):
				l.methods[fn].Root = true
			}
		}
	}

	for _, t := range l.named {
		for _, m := range l.classes[t].Methods {
			m.Root = true
		}
	}

	for _, fn := range pkgutil.TestFunctions(l.pkgs) {
		if m := l.methods[fn]; m != nil {
			m.Root = true
		}
	}
}

// fieldType classifies the values of a Go type. Booleans are integers.
func fieldType(t types.Type) ir.FieldType {
	switch u := t.Underlying().(type) {
	case *types.Basic:
		switch {
		case u.Info()&(types.IsInteger|types.IsBoolean) != 0:
			return ir.TypeInt
		case u.Info()&types.IsString != 0:
			return ir.TypeString
		case u.Kind() == types.UnsafePointer:
			return ir.TypeRef
		}
	case *types.Pointer, *types.Map, *types.Chan, *types.Signature, *types.Slice, *types.Interface:
		return ir.TypeRef
	}
	return ir.TypeOther
}
