package frontend_test

import (
	"testing"

	"github.com/cs-au-dk/constprop/analysis/ir"
	L "github.com/cs-au-dk/constprop/analysis/lattice"
	"github.com/cs-au-dk/constprop/analysis/wholeprogram"
	"github.com/cs-au-dk/constprop/testutil"
)

const declarations = `package main

var (
	limit   = 10
	name    string
	counter int
	hook    func()
)

type shape interface {
	area() int
}

type rect struct {
	w, h int
}

func (r *rect) area() int { return r.w * r.h }

type unit struct{}

func (unit) area() int { return 1 }

func bump(p *int) { *p++ }

func helper() int { return limit }

func Exported() int { return 1 }

func main() {
	bump(&counter)
	hook = func() {}
	var s shape = &rect{2, 3}
	println(s.area(), unit{}.area(), helper(), name, Exported())
}
`

func TestDeclarations(t *testing.T) {
	res := testutil.LoadPackageFromSource(t, "main", declarations)
	scope := res.Scope()

	pkg := scope.Class("main")
	if pkg == nil {
		t.Fatal("expected a class for the package")
	}

	t.Run("globals", func(t *testing.T) {
		for _, tc := range []struct {
			name     string
			typ      ir.FieldType
			external bool
		}{
			{"limit", ir.TypeInt, false},
			{"name", ir.TypeString, false},
			{"counter", ir.TypeInt, true},
			{"hook", ir.TypeRef, false},
		} {
			f := pkg.Field(tc.name)
			if f == nil {
				t.Errorf("missing field %s", tc.name)
				continue
			}
			if !f.Static || f.Type != tc.typ || f.External != tc.external {
				t.Errorf("%s: got static=%v type=%v external=%v", tc.name, f.Static, f.Type, f.External)
			}
		}

		if v, ok := pkg.Field("name").InitialValue(); !ok || v != ir.String("") {
			t.Errorf("expected strings to start out empty, got %v", v)
		}
	})

	t.Run("roots", func(t *testing.T) {
		for _, tc := range []struct {
			name string
			root bool
		}{
			{ir.ClassInitializer, true},
			{"main", true},
			{"main$1", true},
			{"helper", false},
			{"bump", false},
			{"Exported", false},
		} {
			m := pkg.Method(tc.name)
			if m == nil {
				t.Errorf("missing method %s", tc.name)
				continue
			}
			if m.Root != tc.root {
				t.Errorf("expected %s to have root=%v", m, tc.root)
			}
		}
	})

	t.Run("types", func(t *testing.T) {
		iface := scope.Class("main.shape")
		if iface == nil || !iface.IsInterface || iface.External {
			t.Fatalf("expected a closed interface class, got %+v", iface)
		}

		for _, name := range []string{"main.rect", "main.unit"} {
			c := scope.Class(name)
			if c == nil {
				t.Fatalf("missing class %s", name)
			}
			if !c.IsSubclassOf(iface) {
				t.Errorf("expected %s to implement %s", c, iface)
			}
			m := c.Method("area")
			if m == nil || m.Static || !m.Virtual || !m.Root || m.Params != 1 {
				t.Errorf("unexpected method %+v in %s", m, c)
			}
		}

		rect := scope.Class("main.rect")
		for _, name := range []string{"w", "h"} {
			if f := rect.Field(name); f == nil || f.Static || f.External {
				t.Errorf("expected %s to be a tracked instance field, got %+v", name, f)
			}
		}
	})

	t.Run("calls", func(t *testing.T) {
		var kinds []ir.InvokeKind
		pkg.Method("main").Insns(func(_ *ir.Block, insn *ir.Insn) {
			if insn.Op == ir.OpInvoke {
				kinds = append(kinds, insn.Kind)
			}
		})
		want := map[ir.InvokeKind]bool{ir.InvokeStatic: true, ir.InvokeDirect: true, ir.InvokeInterface: true}
		for _, k := range kinds {
			delete(want, k)
		}
		if len(want) != 0 {
			t.Errorf("expected static, direct and interface calls, got %v", kinds)
		}

		targets, known := ir.HierarchyResolver{Scope: scope}.Targets(findInvoke(pkg.Method("main"), ir.InvokeInterface))
		if !known || len(targets) != 2 {
			t.Errorf("expected both implementations as targets, got %v (%v)", targets, known)
		}
	})

	t.Run("positions", func(t *testing.T) {
		insn := findInvoke(pkg.Method("main"), ir.InvokeStatic)
		pos, ok := res.Lowered.Position(insn)
		if !ok || pos.Line != 31 {
			t.Errorf("expected the first call on line 31, got %v", pos)
		}
	})
}

func findInvoke(m *ir.Method, kind ir.InvokeKind) (found *ir.Insn) {
	m.Insns(func(_ *ir.Block, insn *ir.Insn) {
		if found == nil && insn.Op == ir.OpInvoke && insn.Kind == kind {
			found = insn
		}
	})
	return
}

func analyze(t *testing.T, src string) (*ir.Scope, *wholeprogram.Outcome) {
	t.Helper()
	scope := testutil.LoadPackageFromSource(t, "main", src).Scope()
	out, err := wholeprogram.NewDriver(scope, ir.HierarchyResolver{Scope: scope}, wholeprogram.Config{
		MaxIterations: 5,
	}).Run()
	if err != nil {
		t.Fatal(err)
	}
	if !out.Converged {
		t.Fatal("expected the analysis to converge")
	}
	return scope, out
}

func TestPhis(t *testing.T) {
	scope, out := analyze(t, `package main

func loop(n int) int {
	x := 1
	for i := 0; i < n; i++ {
		x = 1
	}
	return x
}

func swap(n int) int {
	a, b := 1, 2
	for i := 0; i < n; i++ {
		a, b = b, a
	}
	return b
}

func main() {
	println(loop(3), swap(3))
}
`)

	if v := out.State.ReturnValue(scope.FindMethod("main.loop")); v != L.ConstInt(1) {
		t.Errorf("expected loop to return 1, got %v", v)
	}
	// Sequential copies on the back edge would make b constantly 2.
	if v := out.State.ReturnValue(scope.FindMethod("main.swap")); v.IsConstant() {
		t.Errorf("expected swap to return an unknown value, got %v", v)
	}
}

func TestPackageInitializer(t *testing.T) {
	scope, out := analyze(t, `package main

var x = 5

var y int

var z = 1

func init() {
	z = 2
}

func main() {
	println(x, y, z)
}
`)

	pkg := scope.Class("main")
	for _, tc := range []struct {
		field string
		want  L.Element
	}{
		{"x", L.ConstInt(5)},
		{"y", L.ConstInt(0)},
		{"z", L.Top},
	} {
		if v := out.State.FieldValue(pkg.Field(tc.field)); v != tc.want {
			t.Errorf("expected %s to be %v, got %v", tc.field, tc.want, v)
		}
	}

	if m := pkg.Method("init#1"); m == nil || m.Root {
		t.Errorf("expected the declared init function to be lowered as a regular method, got %+v", m)
	}
}

func TestEscapes(t *testing.T) {
	scope := testutil.LoadPackageFromSource(t, "main", `package main

type point struct {
	x, y int
}

type pair struct {
	a int
}

type item struct {
	v int
}

var origin point

func set(p *int) { *p = 1 }

func makePair() pair { return pair{a: 3} }

func main() {
	p := &point{}
	set(&p.x)
	p.y = 2

	q := makePair()
	r := &q
	r.a = 4

	items := []item{{v: 1}}
	println(p.y, r.a, len(items), origin.x)
}
`).Scope()

	for _, tc := range []struct {
		class, field string
		external     bool
	}{
		{"main.point", "x", true},
		{"main.point", "y", false},
		{"main.pair", "a", true},
		{"main.item", "v", true},
		{"main", "origin", true},
	} {
		f := scope.Class(tc.class).Field(tc.field)
		if f.External != tc.external {
			t.Errorf("expected %s to have external=%v", f, tc.external)
		}
	}
}
