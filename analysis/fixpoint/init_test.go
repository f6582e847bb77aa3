package fixpoint

import (
	"testing"

	"github.com/cs-au-dk/constprop/analysis/ir"
	L "github.com/cs-au-dk/constprop/analysis/lattice"
)

// initializers declares
//
//	class LA; { static int f; int g; static <clinit>; <init>; static helper }
func initializers() (s *ir.Scope, a *ir.Class, f, g *ir.Field, helper *ir.Method) {
	s = ir.NewScope()
	a = s.NewClass("LA;", nil)
	f = a.NewField("f", true, ir.TypeInt)
	g = a.NewField("g", false, ir.TypeInt)
	helper = a.NewMethod("helper", true, 0)
	helper.Entry().ReturnVoid()
	return
}

func TestClassInitializer(t *testing.T) {
	_, a, f, _, helper := initializers()

	// v0 = A.f; helper(); A.f = 42; v1 = A.f
	clinit := a.NewMethod(ir.ClassInitializer, true, 0)
	clinit.NumRegs = 2
	b := clinit.NewBlock()
	before := b.SGet(0, f.Ref())
	b.Invoke(ir.InvokeStatic, ir.NoReg, helper.Ref())
	b.Const(1, ir.Int(42))
	b.SPut(1, f.Ref())
	after := b.SGet(1, f.Ref())
	b.ReturnVoid()

	wp := top()
	wp.fields[f] = L.ConstInt(7)
	res := analyze(t, clinit, wp, Config{})

	if v := res.Value(before); v != L.ConstInt(0) {
		t.Errorf("reads before the first store see the default value, got %s", v)
	}
	if v := res.Value(after); v != L.ConstInt(42) {
		t.Errorf("reads after the store see the stored value, got %s", v)
	}
	if v := res.ExitSlots[f]; v != L.ConstInt(42) {
		t.Errorf("expected %s to leave the initializer as 42, got %s", f, v)
	}
	if v := res.Observations[f]; v != L.ConstInt(0) {
		t.Errorf("helper may observe the default value, got %s", v)
	}
	if _, ok := res.Writes[f]; ok {
		t.Errorf("tracked stores are not write sites")
	}
}

func TestClassInitializerWidening(t *testing.T) {
	s, a, f, _, helper := initializers()

	// helper writes A.f, so the slot must account for it after the call.
	helper.Blocks = nil
	helper.NumRegs = 1
	hb := helper.NewBlock()
	hb.Const(0, ir.Int(5))
	hb.SPut(0, f.Ref())
	hb.ReturnVoid()

	clinit := a.NewMethod(ir.ClassInitializer, true, 0)
	clinit.NumRegs = 1
	b := clinit.NewBlock()
	b.Invoke(ir.InvokeStatic, ir.NoReg, helper.Ref())
	read := b.SGet(0, f.Ref())
	b.ReturnVoid()

	idx := NewIndex(s, ir.HierarchyResolver{Scope: s})
	if !idx.WrittenElsewhere(f) {
		t.Fatalf("expected %s to be written outside the initializer", f)
	}

	wp := top()
	wp.fields[f] = L.ConstInt(5)
	res, err := Analyze(clinit, wp, idx, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if v := res.Value(read); !v.IsTop() {
		t.Errorf("the slot joins 0 with the summary 5, got %s", v)
	}

	hres, err := Analyze(helper, wp, idx, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if v := hres.Writes[f]; v != L.ConstInt(5) {
		t.Errorf("expected helper to write 5 into %s, got %s", f, v)
	}
}

func TestConstructor(t *testing.T) {
	t.Run("receiver", func(t *testing.T) {
		_, a, _, g, _ := initializers()

		ctor := a.NewMethod(ir.InstanceInitializer, false, 1)
		ctor.NumRegs = 3
		b := ctor.NewBlock()
		b.Const(1, ir.Int(3))
		b.IPut(1, 0, g.Ref())
		get := b.IGet(2, 0, g.Ref())
		b.ReturnVoid()

		res := analyze(t, ctor, top(), Config{})
		if v := res.Value(get); v != L.ConstInt(3) {
			t.Errorf("expected the receiver's field to read back 3, got %s", v)
		}
		if v := res.ExitSlots[g]; v != L.ConstInt(3) {
			t.Errorf("expected %s to leave the constructor as 3, got %s", g, v)
		}
	})

	t.Run("unstable receiver", func(t *testing.T) {
		_, a, _, g, _ := initializers()

		ctor := a.NewMethod(ir.InstanceInitializer, false, 1)
		ctor.NumRegs = 2
		b := ctor.NewBlock()
		b.Const(1, ir.Int(3))
		b.IPut(1, 0, g.Ref())
		b.Opaque(0)
		b.IPut(1, 0, g.Ref())
		b.ReturnVoid()

		res := analyze(t, ctor, top(), Config{})
		if len(res.ExitSlots) != 0 {
			t.Errorf("a constructor reassigning its receiver tracks nothing, got %v", res.ExitSlots)
		}
		if v := res.Writes[g]; v != L.ConstInt(3) {
			t.Errorf("expected untracked writes of 3, got %s", v)
		}
	})

	t.Run("other object", func(t *testing.T) {
		_, a, _, g, _ := initializers()

		ctor := a.NewMethod(ir.InstanceInitializer, false, 2)
		ctor.NumRegs = 3
		b := ctor.NewBlock()
		b.Const(2, ir.Int(9))
		b.IPut(2, 1, g.Ref())
		b.ReturnVoid()

		res := analyze(t, ctor, top(), Config{})
		if v := res.Writes[g]; v != L.ConstInt(9) {
			t.Errorf("stores into other objects are write sites, got %s", v)
		}
		// The slot starts from the summary, as other constructors might
		// have stored into the receiver already.
		if v := res.ExitSlots[g]; !v.IsTop() {
			t.Errorf("expected the receiver slot to account for foreign stores, got %s", v)
		}
	})
}

func TestClobber(t *testing.T) {
	_, a, f, _, _ := initializers()

	clinit := a.NewMethod(ir.ClassInitializer, true, 0)
	clinit.NumRegs = 1
	b := clinit.NewBlock()
	b.Const(0, ir.Int(1))
	b.SPut(0, f.Ref())
	op := b.Opaque(ir.NoReg)
	op.Clobbers = []ir.FieldRef{f.Ref()}
	b.ReturnVoid()

	res := analyze(t, clinit, top(), Config{})
	if v := res.ExitSlots[f]; !v.IsTop() {
		t.Errorf("clobbered slots are T, got %s", v)
	}
}

func TestClassInitializerHandler(t *testing.T) {
	s, a, f, _, _ := initializers()
	h := a.NewField("h", true, ir.TypeInt)

	// LD;.fail stores into A.f and then throws.
	fail := s.NewClass("LD;", nil).NewMethod("fail", true, 0)
	fail.NumRegs = 1
	fb := fail.NewBlock()
	fb.Const(0, ir.Int(2))
	fb.SPut(0, f.Ref())
	fb.Throw(0)

	// A.f = 1; try { fail() } catch { A.h = A.f }
	clinit := a.NewMethod(ir.ClassInitializer, true, 0)
	clinit.NumRegs = 1
	b0, handler, exit := clinit.NewBlock(), clinit.NewBlock(), clinit.NewBlock()
	b0.Const(0, ir.Int(1))
	b0.SPut(0, f.Ref())
	b0.Invoke(ir.InvokeStatic, ir.NoReg, fail.Ref())
	b0.Goto(exit)
	b0.Catch(handler)
	read := handler.SGet(0, f.Ref())
	handler.SPut(0, h.Ref())
	handler.ReturnVoid()
	exit.ReturnVoid()

	wp := top()
	wp.fields[f] = L.ConstInt(2)
	res := analyze(t, clinit, wp, Config{})
	if v := res.Value(read); !v.IsTop() {
		t.Errorf("the handler sees the store made before the throw, got %s", v)
	}
	if v := res.ExitSlots[h]; !v.IsTop() {
		t.Errorf("expected %s to leave the initializer as T, got %s", h, v)
	}
}
