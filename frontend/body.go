package frontend

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/cs-au-dk/constprop/analysis/ir"
)

// externOwner names the owner of calls to functions outside the scope. It
// is not a valid package path, so such calls never resolve.
const externOwner = "<extern>"

// function lowers the body of a single function.
type function struct {
	*lowerer
	fn *ssa.Function
	m  *ir.Method

	regs   map[ssa.Value]ir.Reg
	blocks map[*ssa.BasicBlock]*ir.Block

	// The instruction being lowered and the block receiving its code.
	instr ssa.Instruction
	cur   *ir.Block
}

func (l *lowerer) lowerFunction(fn *ssa.Function) error {
	f := &function{
		lowerer: l,
		fn:      fn,
		m:       l.methods[fn],
		regs:    make(map[ssa.Value]ir.Reg),
		blocks:  make(map[*ssa.BasicBlock]*ir.Block),
	}

	for i, fv := range fn.FreeVars {
		f.regs[fv] = ir.Reg(i)
	}
	for i, p := range fn.Params {
		f.regs[p] = ir.Reg(len(fn.FreeVars) + i)
	}

	// The entry block is lowered first so it becomes the entry of the
	// method.
	for _, b := range fn.Blocks {
		f.blocks[b] = f.m.NewBlock()
	}
	for _, b := range fn.Blocks {
		f.cur = f.blocks[b]
		for _, instr := range b.Instrs {
			f.instr = instr
			if err := f.lower(instr); err != nil {
				return fmt.Errorf("lowering %s: %w", fn, err)
			}
		}
	}
	return nil
}

// emit records the origin of an instruction appended to the current block.
func (f *function) emit(insn *ir.Insn) *ir.Insn {
	f.origin[insn] = f.instr
	return insn
}

// reg returns the register holding the result of an instruction or a
// parameter.
func (f *function) reg(v ssa.Value) ir.Reg {
	if r, ok := f.regs[v]; ok {
		return r
	}
	r := f.m.NewReg()
	f.regs[v] = r
	return r
}

// operand returns a register holding v in the current block, materializing
// constants and other values without registers.
func (f *function) operand(v ssa.Value) ir.Reg {
	switch v.(type) {
	case *ssa.Const, *ssa.Global, *ssa.Function, *ssa.Builtin:
		r := f.m.NewReg()
		f.assign(f.cur, r, v)
		return r
	}
	return f.reg(v)
}

func (f *function) operands(vs []ssa.Value) []ir.Reg {
	regs := make([]ir.Reg, len(vs))
	for i, v := range vs {
		regs[i] = f.operand(v)
	}
	return regs
}

// assign copies v into dest at the end of b.
func (f *function) assign(b *ir.Block, dest ir.Reg, v ssa.Value) {
	switch x := v.(type) {
	case *ssa.Const:
		if lit, ok := literal(x); ok {
			f.emit(b.Const(dest, lit))
		} else {
			f.emit(b.Opaque(dest))
		}
	case *ssa.Global, *ssa.Function, *ssa.Builtin:
		f.emit(b.Opaque(dest))
	default:
		f.emit(b.Move(dest, f.reg(v)))
	}
}

// dest is the register defined by the current instruction, if any.
func (f *function) dest() ir.Reg {
	if v, ok := f.instr.(ssa.Value); ok {
		if t, ok := v.Type().(*types.Tuple); ok && t.Len() == 0 {
			return ir.NoReg
		}
		return f.reg(v)
	}
	return ir.NoReg
}

func (f *function) opaque(sideEffects bool) {
	insn := f.emit(f.cur.Opaque(f.dest()))
	insn.SideEffects = sideEffects
}

func (f *function) lower(instr ssa.Instruction) error {
	switch x := instr.(type) {
	case *ssa.Phi, *ssa.DebugRef:
		// Phis are assigned on the incoming edges.

	case *ssa.Jump:
		succ := x.Block().Succs[0]
		if err := f.copyPhis(f.cur, x.Block(), succ); err != nil {
			return err
		}
		f.emit(f.cur.Goto(f.blocks[succ]))

	case *ssa.If:
		cond := f.operand(x.Cond)
		succs := x.Block().Succs
		then, err := f.edge(x.Block(), succs[0])
		if err != nil {
			return err
		}
		els, err := f.edge(x.Block(), succs[1])
		if err != nil {
			return err
		}
		f.emit(f.cur.If(ir.Nez, then, els, cond))

	case *ssa.Return:
		switch len(x.Results) {
		case 0:
			f.emit(f.cur.ReturnVoid())
		case 1:
			f.emit(f.cur.Return(f.operand(x.Results[0])))
		default:
			tuple := f.m.NewReg()
			f.emit(f.cur.Opaque(tuple, f.operands(x.Results)...))
			f.emit(f.cur.Return(tuple))
		}

	case *ssa.Panic:
		f.emit(f.cur.Throw(f.operand(x.X)))

	case *ssa.Store:
		f.lowerStore(x)

	case *ssa.UnOp:
		f.lowerUnOp(x)

	case *ssa.BinOp:
		f.lowerBinOp(x)

	case *ssa.Call:
		f.lowerCall(x)

	case *ssa.ChangeType:
		f.emit(f.cur.Move(f.dest(), f.operand(x.X)))

	case *ssa.Convert:
		if preservesValue(x.X.Type(), x.Type()) {
			f.emit(f.cur.Move(f.dest(), f.operand(x.X)))
		} else {
			f.opaque(false)
		}

	case *ssa.Go, *ssa.Defer, *ssa.RunDefers, *ssa.Send, *ssa.Select:
		// These may run code of other goroutines or deferred calls.
		f.opaque(true)

	default:
		f.opaque(false)
	}
	return nil
}

// edge returns the block a branch of pred targets to reach succ. Edges into
// blocks with phis are split to hold the assignments of the phis.
func (f *function) edge(pred, succ *ssa.BasicBlock) (*ir.Block, error) {
	if !hasPhis(succ) {
		return f.blocks[succ], nil
	}
	e := f.m.NewBlock()
	if err := f.copyPhis(e, pred, succ); err != nil {
		return nil, err
	}
	f.emit(e.Goto(f.blocks[succ]))
	return e, nil
}

func hasPhis(b *ssa.BasicBlock) bool {
	if len(b.Instrs) == 0 {
		return false
	}
	_, ok := b.Instrs[0].(*ssa.Phi)
	return ok
}

// copyPhis appends to b the parallel assignment of the phis of succ for the
// edge from pred.
func (f *function) copyPhis(b *ir.Block, pred, succ *ssa.BasicBlock) error {
	idx := -1
	for i, p := range succ.Preds {
		if p == pred {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%s is not a predecessor of %s", pred, succ)
	}

	var phis []*ssa.Phi
	for _, instr := range succ.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		phis = append(phis, phi)
	}

	// A phi reading another phi of the same block must see its old value.
	parallel := false
	for _, phi := range phis {
		if other, ok := phi.Edges[idx].(*ssa.Phi); ok && other.Block() == succ {
			parallel = true
		}
	}

	if !parallel {
		for _, phi := range phis {
			f.assign(b, f.reg(phi), phi.Edges[idx])
		}
		return nil
	}

	tmps := make([]ir.Reg, len(phis))
	for i, phi := range phis {
		tmps[i] = f.m.NewReg()
		f.assign(b, tmps[i], phi.Edges[idx])
	}
	for i, phi := range phis {
		f.emit(b.Move(f.reg(phi), tmps[i]))
	}
	return nil
}

func (f *function) lowerStore(x *ssa.Store) {
	switch addr := x.Addr.(type) {
	case *ssa.Global:
		if field := f.globals[addr]; field != nil {
			f.emit(f.cur.SPut(f.operand(x.Val), field.Ref()))
			return
		}
	case *ssa.FieldAddr:
		if field := f.fieldOf(addr); field != nil {
			val := f.operand(x.Val)
			f.emit(f.cur.IPut(val, f.operand(addr.X), field.Ref()))
			return
		}
	}
	f.opaque(false)
}

func (f *function) lowerUnOp(x *ssa.UnOp) {
	switch x.Op {
	case token.MUL:
		switch addr := x.X.(type) {
		case *ssa.Global:
			if f.isInitGuard(addr) {
				// The runtime runs package initializers once.
				f.emit(f.cur.Const(f.dest(), ir.Int(0)))
				return
			}
			if field := f.globals[addr]; field != nil {
				f.emit(f.cur.SGet(f.dest(), field.Ref()))
				return
			}
		case *ssa.FieldAddr:
			if field := f.fieldOf(addr); field != nil {
				f.emit(f.cur.IGet(f.dest(), f.operand(addr.X), field.Ref()))
				return
			}
		}

	case token.ARROW:
		f.opaque(true)
		return

	case token.NOT:
		if isBool(x.X.Type()) {
			v := f.operand(x.X)
			one := f.m.NewReg()
			f.emit(f.cur.Const(one, ir.Int(1)))
			f.emit(f.cur.BinOp(ir.Xor, f.dest(), v, one))
			return
		}

	case token.SUB:
		if w, ok := signedWidth(x.X.Type()); ok {
			zero := f.m.NewReg()
			f.emit(f.cur.Const(zero, ir.Int(0)))
			f.emit(f.cur.BinOpW(ir.Sub, w, f.dest(), zero, f.operand(x.X)))
			return
		}

	case token.XOR:
		if w, ok := signedWidth(x.X.Type()); ok {
			v := f.operand(x.X)
			ones := f.m.NewReg()
			f.emit(f.cur.Const(ones, ir.Int(-1)))
			f.emit(f.cur.BinOpW(ir.Xor, w, f.dest(), v, ones))
			return
		}
	}
	f.opaque(false)
}

// isInitGuard holds for the guard the package initializer checks to run at
// most once.
func (f *function) isInitGuard(g *ssa.Global) bool {
	return f.fn.Synthetic == "package initializer" && g.Pkg == f.fn.Pkg && g.Name() == "init$guard"
}

var arithOps = map[token.Token]ir.ArithOp{
	token.ADD: ir.Add,
	token.SUB: ir.Sub,
	token.MUL: ir.Mul,
	token.QUO: ir.Div,
	token.REM: ir.Rem,
	token.AND: ir.And,
	token.OR:  ir.Or,
	token.XOR: ir.Xor,
	token.SHL: ir.Shl,
	token.SHR: ir.Shr,
}

var condOps = map[token.Token]ir.Cond{
	token.EQL: ir.Eq,
	token.NEQ: ir.Ne,
	token.LSS: ir.Lt,
	token.LEQ: ir.Le,
	token.GTR: ir.Gt,
	token.GEQ: ir.Ge,
}

func (f *function) lowerBinOp(x *ssa.BinOp) {
	t := x.X.Type()

	if cond, ok := condOps[x.Op]; ok {
		_, signed := signedWidth(t)
		equality := cond == ir.Eq || cond == ir.Ne
		if signed || equality && equatable(t) {
			a, b := f.operand(x.X), f.operand(x.Y)
			f.emit(f.cur.Cmp(cond, f.dest(), a, b))
			return
		}
		f.opaque(false)
		return
	}

	op, ok := arithOps[x.Op]
	w, signed := signedWidth(t)
	if !ok || !signed {
		f.opaque(false)
		return
	}
	a, b := f.operand(x.X), f.operand(x.Y)
	f.emit(f.cur.BinOpW(op, w, f.dest(), a, b))
}

func (f *function) lowerCall(x *ssa.Call) {
	common := x.Common()

	if common.IsInvoke() {
		owner := types.TypeString(common.Value.Type(), nil)
		if named, ok := common.Value.Type().(*types.Named); ok && f.classes[named] != nil {
			owner = f.classes[named].Name
		}
		args := append([]ir.Reg{f.operand(common.Value)}, f.operands(common.Args)...)
		ref := ir.MethodRef{Owner: owner, Name: common.Method.Name()}
		f.emit(f.cur.Invoke(ir.InvokeInterface, f.dest(), ref, args...))
		return
	}

	switch callee := common.Value.(type) {
	case *ssa.Builtin:
		f.opaque(false)

	case *ssa.Function:
		args := f.operands(common.Args)
		if m := f.methods[callee]; m != nil {
			kind := ir.InvokeStatic
			if !m.Static {
				kind = ir.InvokeDirect
			}
			f.emit(f.cur.Invoke(kind, f.dest(), m.Ref(), args...))
			return
		}
		ref := ir.MethodRef{Owner: externOwner, Name: callee.String()}
		f.emit(f.cur.Invoke(ir.InvokeStatic, f.dest(), ref, args...))

	default:
		// Closures and function values.
		f.opaque(true)
	}
}

// literal converts a constant to an IR literal. Booleans are the integers 0
// and 1. Floating-point, complex and aggregate constants have no literal.
func literal(c *ssa.Const) (ir.Literal, bool) {
	if c.Value == nil {
		if nillable(c.Type()) {
			return ir.Null(), true
		}
		return ir.Literal{}, false
	}

	basic, ok := c.Type().Underlying().(*types.Basic)
	if !ok {
		return ir.Literal{}, false
	}
	switch {
	case basic.Info()&types.IsBoolean != 0:
		if constant.BoolVal(c.Value) {
			return ir.Int(1), true
		}
		return ir.Int(0), true
	case basic.Info()&types.IsString != 0:
		return ir.String(constant.StringVal(c.Value)), true
	case basic.Info()&types.IsInteger != 0:
		if v, exact := constant.Int64Val(c.Value); exact {
			return ir.Int(v), true
		}
	}
	return ir.Literal{}, false
}

func nillable(t types.Type) bool {
	switch u := t.Underlying().(type) {
	case *types.Pointer, *types.Map, *types.Chan, *types.Signature, *types.Slice, *types.Interface:
		return true
	case *types.Basic:
		return u.Kind() == types.UnsafePointer || u.Kind() == types.UntypedNil
	}
	return false
}

func isBool(t types.Type) bool {
	basic, ok := t.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsBoolean != 0
}

func integerWidth(basic *types.Basic) uint8 {
	switch basic.Kind() {
	case types.Int8, types.Uint8:
		return 8
	case types.Int16, types.Uint16:
		return 16
	case types.Int32, types.Uint32:
		return 32
	}
	return 64
}

// signedWidth reports the width of signed integer types.
func signedWidth(t types.Type) (uint8, bool) {
	basic, ok := t.Underlying().(*types.Basic)
	if !ok || basic.Info()&types.IsInteger == 0 || basic.Info()&types.IsUnsigned != 0 {
		return 0, false
	}
	return integerWidth(basic), true
}

// equatable holds for types whose values are only constant when equal
// literals denote equal values.
func equatable(t types.Type) bool {
	if basic, ok := t.Underlying().(*types.Basic); ok {
		return basic.Info()&(types.IsInteger|types.IsBoolean|types.IsString) != 0
	}
	return nillable(t)
}

// preservesValue holds for integer conversions that never change a value
// representable as a literal. Unsigned literals are always non-negative.
func preservesValue(from, to types.Type) bool {
	fb, ok1 := from.Underlying().(*types.Basic)
	tb, ok2 := to.Underlying().(*types.Basic)
	if !ok1 || !ok2 || fb.Info()&types.IsInteger == 0 || tb.Info()&types.IsInteger == 0 {
		return false
	}
	fw, tw := integerWidth(fb), integerWidth(tb)
	fromSigned := fb.Info()&types.IsUnsigned == 0
	toSigned := tb.Info()&types.IsUnsigned == 0
	switch {
	case fromSigned == toSigned:
		return tw >= fw
	case toSigned:
		return tw > fw || tw == 64
	}
	return false
}
