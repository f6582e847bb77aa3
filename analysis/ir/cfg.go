package ir

import (
	"errors"
	"fmt"
)

// ErrMalformed reports a structurally invalid method body.
var ErrMalformed = errors.New("malformed IR")

// ReversePostorder lists the blocks reachable from the entry, over normal
// and exceptional edges, in reverse postorder.
func (m *Method) ReversePostorder() []*Block {
	if len(m.Blocks) == 0 {
		return nil
	}

	visited := make(map[*Block]bool, len(m.Blocks))
	post := make([]*Block, 0, len(m.Blocks))

	var visit func(*Block)
	visit = func(b *Block) {
		visited[b] = true
		for _, s := range b.Succs {
			if !visited[s] {
				visit(s)
			}
		}
		for _, s := range b.Catches {
			if !visited[s] {
				visit(s)
			}
		}
		post = append(post, b)
	}
	visit(m.Blocks[0])

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// Preds computes the normal and exceptional predecessors of every block.
func (m *Method) Preds() map[*Block][]*Block {
	preds := make(map[*Block][]*Block, len(m.Blocks))
	for _, b := range m.Blocks {
		for _, s := range b.Succs {
			preds[s] = append(preds[s], b)
		}
		for _, s := range b.Catches {
			preds[s] = append(preds[s], b)
		}
	}
	return preds
}

// ReplaceBranch turns the conditional branch ending b into a goto to
// target, dropping the untaken edge. The branch instruction is rewritten in
// place and remembers its original form.
func (m *Method) ReplaceBranch(b *Block, target *Block) error {
	br := b.Terminator()
	if br == nil || br.Op != OpIf {
		return fmt.Errorf("%w: %s of %s does not end in a conditional branch", ErrMalformed, b, m)
	}
	if target != b.Succs[0] && target != b.Succs[1] {
		return fmt.Errorf("%w: %s is not a successor of %s", ErrMalformed, target, b)
	}

	orig := br.Copy()
	br.Op = OpGoto
	br.Srcs = nil
	br.Replaced = orig
	b.Succs = []*Block{target}
	return nil
}

// PruneUnreachable removes blocks no longer reachable from the entry and
// returns how many were removed.
func (m *Method) PruneUnreachable() int {
	if len(m.Blocks) == 0 {
		return 0
	}

	reachable := make(map[*Block]bool, len(m.Blocks))
	for _, b := range m.ReversePostorder() {
		reachable[b] = true
	}

	kept := m.Blocks[:0]
	removed := 0
	for _, b := range m.Blocks {
		if reachable[b] {
			kept = append(kept, b)
		} else {
			removed++
		}
	}
	for i := len(kept); i < len(m.Blocks); i++ {
		m.Blocks[i] = nil
	}
	m.Blocks = kept
	return removed
}

// SplitBlock moves the instructions of b from position at onwards, together
// with b's successors and handlers, into a new block. b is left without a
// terminator and without normal successors; the caller must terminate it.
func (m *Method) SplitBlock(b *Block, at int) *Block {
	tail := m.NewBlock()
	tail.Insns = append(tail.Insns, b.Insns[at:]...)
	for _, insn := range tail.Insns {
		insn.block = tail
	}
	tail.Succs = b.Succs
	tail.Catches = append([]*Block(nil), b.Catches...)

	b.Insns = b.Insns[:at:at]
	b.Succs = nil
	return tail
}

// ReplaceWithConst rewrites insn in place into a const writing lit to its
// destination. The instruction remembers its original form.
func (i *Insn) ReplaceWithConst(lit Literal) {
	orig := i.Copy()
	*i = Insn{Op: OpConst, Dest: orig.Dest, Lit: lit, Replaced: orig, block: i.block}
}

// InsertAt places insn at position at of b.
func (b *Block) InsertAt(at int, insn *Insn) *Insn {
	insn.block = b
	b.Insns = append(b.Insns, nil)
	copy(b.Insns[at+1:], b.Insns[at:])
	b.Insns[at] = insn
	return insn
}

// InsertAfter places insn right after anchor, which must be in b.
func (b *Block) InsertAfter(anchor, insn *Insn) *Insn {
	return b.InsertAt(b.IndexOf(anchor)+1, insn)
}

// Validate checks the structural invariants every analysis relies on.
func (m *Method) Validate() error {
	if !m.HasBody() {
		return nil
	}
	if m.Params > m.NumRegs {
		return fmt.Errorf("%w: %s has %d parameters but %d registers", ErrMalformed, m, m.Params, m.NumRegs)
	}

	owned := make(map[*Block]bool, len(m.Blocks))
	for _, b := range m.Blocks {
		owned[b] = true
	}

	checkReg := func(b *Block, insn *Insn, r Reg) error {
		if r < 0 || int(r) >= m.NumRegs {
			return fmt.Errorf("%w: %s in %s of %s uses register %s outside frame of %d",
				ErrMalformed, insn, b, m, r, m.NumRegs)
		}
		return nil
	}

	for _, b := range m.Blocks {
		if b.method != m {
			return fmt.Errorf("%w: %s is not owned by %s", ErrMalformed, b, m)
		}
		term := b.Terminator()
		if term == nil {
			return fmt.Errorf("%w: %s of %s has no terminator", ErrMalformed, b, m)
		}

		for i, insn := range b.Insns {
			if insn.block != b {
				return fmt.Errorf("%w: %s is detached from %s of %s", ErrMalformed, insn, b, m)
			}
			if insn.Op.IsTerminator() && i != len(b.Insns)-1 {
				return fmt.Errorf("%w: %s terminates %s of %s early", ErrMalformed, insn, b, m)
			}
			for _, r := range insn.Srcs {
				if err := checkReg(b, insn, r); err != nil {
					return err
				}
			}
			if r, ok := insn.Defines(); ok {
				if err := checkReg(b, insn, r); err != nil {
					return err
				}
			}
			if err := checkArity(insn); err != nil {
				return fmt.Errorf("%w: %s of %s: %v", ErrMalformed, b, m, err)
			}
		}

		want := map[Opcode]int{OpIf: 2, OpGoto: 1, OpReturn: 0, OpThrow: 0}[term.Op]
		if len(b.Succs) != want {
			return fmt.Errorf("%w: %s of %s ends in %s with %d successors",
				ErrMalformed, b, m, term.Op, len(b.Succs))
		}
		for _, s := range append(append([]*Block(nil), b.Succs...), b.Catches...) {
			if !owned[s] {
				return fmt.Errorf("%w: %s of %s branches to foreign block %s", ErrMalformed, b, m, s)
			}
		}
	}
	return nil
}

func checkArity(insn *Insn) error {
	want := -1
	switch insn.Op {
	case OpMove, OpIGet, OpSPut, OpThrow:
		want = 1
	case OpBinOp, OpCmp, OpIPut:
		want = 2
	case OpConst, OpSGet, OpGoto:
		want = 0
	case OpReturn:
		if len(insn.Srcs) > 1 {
			return fmt.Errorf("%s returns %d values", insn, len(insn.Srcs))
		}
	case OpIf:
		want = 2
		if insn.Cond.Unary() {
			want = 1
		}
	}
	if want >= 0 && len(insn.Srcs) != want {
		return fmt.Errorf("%s expects %d operands, has %d", insn, want, len(insn.Srcs))
	}
	return nil
}

// Validate checks every method of the scope.
func (s *Scope) Validate() error {
	for _, m := range s.Methods() {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}
