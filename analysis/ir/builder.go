package ir

func (b *Block) add(insn *Insn) *Insn {
	insn.block = b
	b.Insns = append(b.Insns, insn)
	return insn
}

func (b *Block) Const(dest Reg, lit Literal) *Insn {
	return b.add(&Insn{Op: OpConst, Dest: dest, Lit: lit})
}

func (b *Block) Move(dest, src Reg) *Insn {
	return b.add(&Insn{Op: OpMove, Dest: dest, Srcs: []Reg{src}})
}

// BinOp appends 64-bit arithmetic.
func (b *Block) BinOp(op ArithOp, dest, x, y Reg) *Insn {
	return b.BinOpW(op, 64, dest, x, y)
}

func (b *Block) BinOpW(op ArithOp, width uint8, dest, x, y Reg) *Insn {
	return b.add(&Insn{Op: OpBinOp, Arith: op, Width: width, Dest: dest, Srcs: []Reg{x, y}})
}

func (b *Block) Cmp(cond Cond, dest, x, y Reg) *Insn {
	return b.add(&Insn{Op: OpCmp, Cond: cond.Binary(), Dest: dest, Srcs: []Reg{x, y}})
}

func (b *Block) SGet(dest Reg, f FieldRef) *Insn {
	return b.add(&Insn{Op: OpSGet, Dest: dest, Field: f})
}

func (b *Block) SPut(src Reg, f FieldRef) *Insn {
	return b.add(&Insn{Op: OpSPut, Dest: NoReg, Srcs: []Reg{src}, Field: f})
}

func (b *Block) IGet(dest, obj Reg, f FieldRef) *Insn {
	return b.add(&Insn{Op: OpIGet, Dest: dest, Srcs: []Reg{obj}, Field: f})
}

func (b *Block) IPut(src, obj Reg, f FieldRef) *Insn {
	return b.add(&Insn{Op: OpIPut, Dest: NoReg, Srcs: []Reg{src, obj}, Field: f})
}

// Invoke appends a call; dest may be NoReg.
func (b *Block) Invoke(kind InvokeKind, dest Reg, m MethodRef, args ...Reg) *Insn {
	return b.add(&Insn{Op: OpInvoke, Kind: kind, Dest: dest, Meth: m, Srcs: args})
}

func (b *Block) Return(src Reg) *Insn {
	return b.add(&Insn{Op: OpReturn, Dest: NoReg, Srcs: []Reg{src}})
}

func (b *Block) ReturnVoid() *Insn {
	return b.add(&Insn{Op: OpReturn, Dest: NoReg})
}

// If appends a conditional branch to then, falling through to els.
func (b *Block) If(cond Cond, then, els *Block, srcs ...Reg) *Insn {
	b.Succs = []*Block{then, els}
	return b.add(&Insn{Op: OpIf, Dest: NoReg, Cond: cond, Srcs: srcs})
}

func (b *Block) Goto(target *Block) *Insn {
	b.Succs = []*Block{target}
	return b.add(&Insn{Op: OpGoto, Dest: NoReg})
}

func (b *Block) Throw(src Reg) *Insn {
	return b.add(&Insn{Op: OpThrow, Dest: NoReg, Srcs: []Reg{src}})
}

// Opaque appends an instruction the analysis does not model; dest may be
// NoReg.
func (b *Block) Opaque(dest Reg, srcs ...Reg) *Insn {
	return b.add(&Insn{Op: OpOpaque, Dest: dest, Srcs: srcs})
}

// Catch adds an exceptional successor.
func (b *Block) Catch(handler *Block) {
	b.Catches = append(b.Catches, handler)
}
