package ir

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// hierarchy declares
//
//	interface LI;  with method m
//	class LA; implements LI;  field static x, methods <init>, m
//	class LB; extends LA;  overrides m
//	class LC; extends LA;  inherits m
func hierarchy() *Scope {
	s := NewScope()
	i := s.NewClass("LI;", nil)
	i.IsInterface = true
	i.NewMethod("m", false, 1).External = true

	a := s.NewClass("LA;", nil)
	a.Interfaces = []*Class{i}
	x := a.NewField("x", true, TypeInt)
	lit := Int(3)
	x.Initial = &lit

	ctor := a.NewMethod(InstanceInitializer, false, 1)
	ctor.Entry().ReturnVoid()

	am := a.NewMethod("m", false, 1)
	am.NumRegs = 2
	b := am.Entry()
	b.SGet(1, FieldRef{"LC;", "x"})
	b.Return(1)

	bc := s.NewClass("LB;", a)
	bm := bc.NewMethod("m", false, 1)
	bm.NumRegs = 2
	bb := bm.Entry()
	bb.Const(1, Int(4))
	bb.SPut(1, FieldRef{"LB;", "x"})
	bb.Return(1)

	s.NewClass("LC;", a)
	return s
}

func TestResolveField(t *testing.T) {
	s := hierarchy()
	x := s.Class("LA;").Field("x")

	check := func(t *testing.T) {
		t.Helper()
		for _, owner := range []string{"LA;", "LB;", "LC;"} {
			if f := s.ResolveField(FieldRef{owner, "x"}); f != x {
				t.Errorf("%s.x resolved to %v, expected %s", owner, f, x)
			}
		}
		if f := s.ResolveField(FieldRef{"LJava;", "out"}); f != nil {
			t.Errorf("expected field outside the scope to be unresolved, got %s", f)
		}
	}

	t.Run("uncached", check)
	s.IndexFields()
	t.Run("indexed", check)

	// Adding classes drops the index.
	s.NewClass("LD;", s.Class("LB;"))
	if s.idents != nil {
		t.Error("expected the field index to be invalidated")
	}
	if f := s.ResolveField(FieldRef{"LD;", "x"}); f != x {
		t.Errorf("LD;.x resolved to %v", f)
	}
}

func TestHierarchyResolver(t *testing.T) {
	s := hierarchy()
	r := HierarchyResolver{s}

	targets := func(kind InvokeKind, owner string) ([]*Method, bool) {
		return r.Targets(&Insn{Op: OpInvoke, Kind: kind, Meth: MethodRef{owner, "m"}})
	}

	t.Run("virtual", func(t *testing.T) {
		ms, ok := targets(InvokeVirtual, "LA;")
		if !ok || len(ms) != 2 {
			t.Fatalf("expected LA;.m and LB;.m, got %v (%v)", ms, ok)
		}
	})

	t.Run("interface", func(t *testing.T) {
		ms, ok := targets(InvokeInterface, "LI;")
		if !ok || len(ms) != 2 {
			t.Fatalf("expected LA;.m and LB;.m, got %v (%v)", ms, ok)
		}
	})

	t.Run("leaf", func(t *testing.T) {
		ms, ok := targets(InvokeVirtual, "LC;")
		if !ok || len(ms) != 1 || ms[0] != s.FindMethod("LA;.m") {
			t.Fatalf("expected the inherited LA;.m, got %v (%v)", ms, ok)
		}
	})

	t.Run("direct", func(t *testing.T) {
		ms, ok := targets(InvokeDirect, "LB;")
		if !ok || len(ms) != 1 || ms[0] != s.FindMethod("LB;.m") {
			t.Fatalf("expected LB;.m, got %v (%v)", ms, ok)
		}
	})

	t.Run("open hierarchy", func(t *testing.T) {
		s.Class("LC;").External = true
		defer func() { s.Class("LC;").External = false }()
		if _, ok := targets(InvokeVirtual, "LA;"); ok {
			t.Error("expected an externally extensible subclass to make targets unknown")
		}
	})

	t.Run("final", func(t *testing.T) {
		s.Class("LC;").External = true
		defer func() { s.Class("LC;").External = false }()
		fin := s.Class("LA;").NewMethod("fin", false, 1)
		fin.Virtual = false
		ms, ok := r.Targets(&Insn{Op: OpInvoke, Kind: InvokeVirtual, Meth: MethodRef{"LA;", "fin"}})
		if !ok || len(ms) != 1 || ms[0] != fin {
			t.Fatalf("expected a method that cannot be overridden to resolve to %s, got %v (%v)", fin, ms, ok)
		}
	})

	t.Run("unknown owner", func(t *testing.T) {
		if _, ok := targets(InvokeStatic, "LJava;"); ok {
			t.Error("expected a call outside the scope to be unresolved")
		}
	})
}

func TestFprint(t *testing.T) {
	s := hierarchy()

	var buf bytes.Buffer
	if err := Fprint(&buf, s); err != nil {
		t.Fatal(err)
	}

	g := goldie.New(t)
	g.Assert(t, "hierarchy", buf.Bytes())
}
