package ir

import (
	"errors"
	"testing"
)

// diamond builds
//
//	B0: if-eqz v0 -> B1 else B2
//	B1: const v1, 1; goto B3
//	B2: const v1, 2; goto B3
//	B3: return v1
func diamond() (*Scope, *Method) {
	s := NewScope()
	c := s.NewClass("LA;", nil)
	m := c.NewMethod("f", true, 1)
	m.NumRegs = 2

	b0, b1, b2, b3 := m.NewBlock(), m.NewBlock(), m.NewBlock(), m.NewBlock()
	b0.If(Eqz, b1, b2, 0)
	b1.Const(1, Int(1))
	b1.Goto(b3)
	b2.Const(1, Int(2))
	b2.Goto(b3)
	b3.Return(1)
	return s, m
}

func TestReversePostorder(t *testing.T) {
	_, m := diamond()

	rpo := m.ReversePostorder()
	if len(rpo) != 4 {
		t.Fatalf("expected 4 reachable blocks, got %d", len(rpo))
	}
	if rpo[0] != m.Blocks[0] || rpo[3] != m.Blocks[3] {
		t.Errorf("entry must come first and the join last, got %v", rpo)
	}

	// Unreachable blocks are not listed.
	dead := m.NewBlock()
	dead.ReturnVoid()
	for _, b := range m.ReversePostorder() {
		if b == dead {
			t.Errorf("%s is unreachable but was listed", dead)
		}
	}
}

func TestReplaceBranch(t *testing.T) {
	t.Run("prunes untaken arm", func(t *testing.T) {
		_, m := diamond()
		b0, b1 := m.Blocks[0], m.Blocks[1]

		if err := m.ReplaceBranch(b0, b1); err != nil {
			t.Fatal(err)
		}

		term := b0.Terminator()
		if term.Op != OpGoto || len(term.Srcs) != 0 {
			t.Errorf("expected a goto, got %s", term)
		}
		if term.Replaced == nil || term.Replaced.Op != OpIf || term.Replaced.Cond != Eqz {
			t.Errorf("expected original branch to be remembered, got %v", term.Replaced)
		}

		if n := m.PruneUnreachable(); n != 1 {
			t.Errorf("expected one block to be removed, got %d", n)
		}
		if len(m.Blocks) != 3 {
			t.Errorf("expected 3 blocks to remain, got %d", len(m.Blocks))
		}
		if err := m.Validate(); err != nil {
			t.Error(err)
		}
	})

	t.Run("rejects non-successor", func(t *testing.T) {
		_, m := diamond()
		err := m.ReplaceBranch(m.Blocks[0], m.Blocks[3])
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", err)
		}
	})

	t.Run("rejects goto", func(t *testing.T) {
		_, m := diamond()
		err := m.ReplaceBranch(m.Blocks[1], m.Blocks[3])
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", err)
		}
	})
}

func TestSplitBlock(t *testing.T) {
	s := NewScope()
	m := s.NewClass("LA;", nil).NewMethod("g", true, 0)
	m.NumRegs = 2

	b0, handler := m.NewBlock(), m.NewBlock()
	first := b0.Const(0, Int(1))
	second := b0.Const(1, Int(2))
	b0.Return(1)
	b0.Catch(handler)
	handler.ReturnVoid()

	tail := m.SplitBlock(b0, 1)
	if len(b0.Insns) != 1 || b0.Insns[0] != first {
		t.Errorf("expected head to keep only %s, got %v", first, b0.Insns)
	}
	if len(tail.Insns) != 2 || tail.Insns[0] != second || second.Block() != tail {
		t.Errorf("expected tail to start with %s", second)
	}
	if len(tail.Catches) != 1 || tail.Catches[0] != handler {
		t.Errorf("expected tail to inherit handlers, got %v", tail.Catches)
	}

	// The head is unterminated until the caller closes it.
	if err := m.Validate(); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected an unterminated head to be rejected, got %v", err)
	}
	b0.Goto(tail)
	if err := m.Validate(); err != nil {
		t.Error(err)
	}
}

func TestInsert(t *testing.T) {
	s := NewScope()
	m := s.NewClass("LA;", nil).NewMethod("h", true, 0)
	m.NumRegs = 2
	b := m.NewBlock()
	c := b.Const(0, Int(1))
	b.Return(0)

	ins := b.InsertAfter(c, &Insn{Op: OpMove, Dest: 1, Srcs: []Reg{0}})
	if b.IndexOf(ins) != 1 || ins.Block() != b {
		t.Errorf("expected move at position 1, got %d", b.IndexOf(ins))
	}
	b.InsertAt(0, &Insn{Op: OpConst, Dest: 1, Lit: Null()})
	if got := b.IndexOf(c); got != 1 {
		t.Errorf("expected %s to shift to position 1, got %d", c, got)
	}
	if err := m.Validate(); err != nil {
		t.Error(err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func(m *Method)
	}{
		{"register out of frame", func(m *Method) {
			m.NewBlock().Return(5)
		}},
		{"missing terminator", func(m *Method) {
			m.NewBlock().Const(0, Int(0))
		}},
		{"early terminator", func(m *Method) {
			b := m.NewBlock()
			b.ReturnVoid()
			b.Const(0, Int(0))
			b.ReturnVoid()
		}},
		{"arity", func(m *Method) {
			b := m.NewBlock()
			b.add(&Insn{Op: OpBinOp, Dest: 0, Srcs: []Reg{0}, Width: 64})
			b.ReturnVoid()
		}},
		{"successor count", func(m *Method) {
			b := m.NewBlock()
			b.ReturnVoid()
			b.Succs = []*Block{b}
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := NewScope()
			m := s.NewClass("LA;", nil).NewMethod("f", true, 0)
			m.NumRegs = 1
			test.build(m)
			if err := m.Validate(); !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}
