// Package ir is a small register-based bytecode representation: a scope of
// classes, their fields and methods, and for every method with a body a
// mutable control-flow graph of instructions.
package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Reg is a value slot of a method frame.
type Reg int

// NoReg marks an absent register operand or destination.
const NoReg Reg = -1

func (r Reg) String() string {
	if r == NoReg {
		return "_"
	}
	return "v" + strconv.Itoa(int(r))
}

// LitKind distinguishes the representable literal values.
type LitKind uint8

const (
	LitInt LitKind = iota
	LitString
	LitNull
)

// Literal is a value that can be materialized by a const instruction.
type Literal struct {
	Kind LitKind
	Int  int64
	Str  string
}

func Int(v int64) Literal     { return Literal{Kind: LitInt, Int: v} }
func String(s string) Literal { return Literal{Kind: LitString, Str: s} }
func Null() Literal           { return Literal{Kind: LitNull} }

func (l Literal) String() string {
	switch l.Kind {
	case LitInt:
		return strconv.FormatInt(l.Int, 10)
	case LitString:
		return strconv.Quote(l.Str)
	default:
		return "null"
	}
}

// Opcode is the operation of an instruction.
type Opcode uint8

const (
	OpConst Opcode = iota
	OpMove
	OpBinOp
	OpCmp
	OpSGet
	OpSPut
	OpIGet
	OpIPut
	OpInvoke
	OpReturn
	OpIf
	OpGoto
	OpThrow
	OpOpaque
)

var opNames = [...]string{
	OpConst:  "const",
	OpMove:   "move",
	OpBinOp:  "binop",
	OpCmp:    "cmp",
	OpSGet:   "sget",
	OpSPut:   "sput",
	OpIGet:   "iget",
	OpIPut:   "iput",
	OpInvoke: "invoke",
	OpReturn: "return",
	OpIf:     "if",
	OpGoto:   "goto",
	OpThrow:  "throw",
	OpOpaque: "opaque",
}

func (op Opcode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// IsTerminator holds for opcodes that end a block.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpReturn, OpIf, OpGoto, OpThrow:
		return true
	}
	return false
}

// ArithOp is the operator of a binop instruction.
type ArithOp uint8

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
	Rem
	And
	Or
	Xor
	Shl
	Shr
	Ushr
)

var arithNames = [...]string{"add", "sub", "mul", "div", "rem", "and", "or", "xor", "shl", "shr", "ushr"}

func (op ArithOp) String() string { return arithNames[op] }

// Cond is the predicate of a cmp or if instruction. The Z-suffixed
// predicates compare their single operand against zero (or null).
type Cond uint8

const (
	Eq Cond = iota
	Ne
	Lt
	Ge
	Gt
	Le
	Eqz
	Nez
	Ltz
	Gez
	Gtz
	Lez
)

var condNames = [...]string{"eq", "ne", "lt", "ge", "gt", "le", "eqz", "nez", "ltz", "gez", "gtz", "lez"}

func (c Cond) String() string { return condNames[c] }

// Unary holds for predicates comparing against zero.
func (c Cond) Unary() bool { return c >= Eqz }

// Binary returns the two-operand predicate equivalent to a zero test.
func (c Cond) Binary() Cond {
	if c.Unary() {
		return c - Eqz
	}
	return c
}

// InvokeKind is the dispatch mode of a call.
type InvokeKind uint8

const (
	InvokeStatic InvokeKind = iota
	InvokeDirect
	InvokeVirtual
	InvokeInterface
	InvokeSuper
)

var invokeNames = [...]string{"static", "direct", "virtual", "interface", "super"}

func (k InvokeKind) String() string { return invokeNames[k] }

// Dispatched holds for call kinds whose target depends on the receiver's
// runtime type.
func (k InvokeKind) Dispatched() bool {
	return k == InvokeVirtual || k == InvokeInterface
}

// FieldRef names a field as seen from an instruction. The owner is the class
// named in the reference, which may inherit the field from a super class.
type FieldRef struct {
	Owner string
	Name  string
}

func (r FieldRef) String() string { return r.Owner + "." + r.Name }

// MethodRef names a method as seen from a call site.
type MethodRef struct {
	Owner string
	Name  string
}

func (r MethodRef) String() string { return r.Owner + "." + r.Name }

// Insn is a single instruction. Which fields are meaningful depends on Op.
type Insn struct {
	Op    Opcode
	Dest  Reg
	Srcs  []Reg
	Lit   Literal
	Arith ArithOp
	// Width is the bit width of binop arithmetic.
	Width uint8
	Cond  Cond
	Kind  InvokeKind
	Field FieldRef
	Meth  MethodRef
	// SideEffects marks opaque instructions that may run arbitrary code.
	SideEffects bool
	// Clobbers lists fields an opaque instruction may write unanalyzably.
	Clobbers []FieldRef
	// Replaced is the instruction a rewrite turned into this one.
	Replaced *Insn

	block *Block
}

// Block returns the block currently holding the instruction.
func (i *Insn) Block() *Block { return i.block }

// Copy returns a detached shallow copy of the instruction.
func (i *Insn) Copy() *Insn {
	c := *i
	c.Srcs = append([]Reg(nil), i.Srcs...)
	c.Clobbers = append([]FieldRef(nil), i.Clobbers...)
	c.block = nil
	return &c
}

// Defines reports the register written by the instruction, if any.
func (i *Insn) Defines() (Reg, bool) {
	switch i.Op {
	case OpConst, OpMove, OpBinOp, OpCmp, OpSGet, OpIGet, OpInvoke, OpOpaque:
		return i.Dest, i.Dest != NoReg
	}
	return NoReg, false
}

// MayThrow holds for instructions that can transfer control to a catch
// handler.
func (i *Insn) MayThrow() bool {
	switch i.Op {
	case OpInvoke, OpIGet, OpIPut, OpThrow, OpOpaque:
		return true
	case OpBinOp:
		return i.Arith == Div || i.Arith == Rem
	}
	return false
}

func (i *Insn) String() string {
	regs := func(rs []Reg) string {
		strs := make([]string, len(rs))
		for j, r := range rs {
			strs[j] = r.String()
		}
		return strings.Join(strs, ", ")
	}

	switch i.Op {
	case OpConst:
		return fmt.Sprintf("const %s, %s", i.Dest, i.Lit)
	case OpMove:
		return fmt.Sprintf("move %s, %s", i.Dest, regs(i.Srcs))
	case OpBinOp:
		return fmt.Sprintf("%s/%d %s, %s", i.Arith, i.Width, i.Dest, regs(i.Srcs))
	case OpCmp:
		return fmt.Sprintf("cmp-%s %s, %s", i.Cond, i.Dest, regs(i.Srcs))
	case OpSGet:
		return fmt.Sprintf("sget %s, %s", i.Dest, i.Field)
	case OpSPut:
		return fmt.Sprintf("sput %s, %s", regs(i.Srcs), i.Field)
	case OpIGet:
		return fmt.Sprintf("iget %s, %s, %s", i.Dest, regs(i.Srcs), i.Field)
	case OpIPut:
		return fmt.Sprintf("iput %s, %s", regs(i.Srcs), i.Field)
	case OpInvoke:
		return fmt.Sprintf("invoke-%s %s, %s(%s)", i.Kind, i.Dest, i.Meth, regs(i.Srcs))
	case OpReturn:
		if len(i.Srcs) == 0 {
			return "return-void"
		}
		return "return " + regs(i.Srcs)
	case OpIf:
		s := fmt.Sprintf("if-%s %s", i.Cond, regs(i.Srcs))
		if b := i.block; b != nil && len(b.Succs) == 2 {
			s += fmt.Sprintf(" -> %s else %s", b.Succs[0], b.Succs[1])
		}
		return s
	case OpGoto:
		if b := i.block; b != nil && len(b.Succs) == 1 {
			return "goto " + b.Succs[0].String()
		}
		return "goto"
	case OpThrow:
		return "throw " + regs(i.Srcs)
	default:
		s := "opaque " + i.Dest.String()
		if len(i.Srcs) > 0 {
			s += ", " + regs(i.Srcs)
		}
		if i.SideEffects {
			s += " !effects"
		}
		return s
	}
}

// Block is a basic block. Succs are the normal successors; for a
// conditional branch Succs[0] is taken when the condition holds and
// Succs[1] otherwise. Catches are the exceptional successors.
type Block struct {
	ID      int
	Insns   []*Insn
	Succs   []*Block
	Catches []*Block

	method *Method
}

func (b *Block) String() string { return "B" + strconv.Itoa(b.ID) }

// Method returns the method owning the block.
func (b *Block) Method() *Method { return b.method }

// Terminator returns the last instruction of the block, if it ends the block.
func (b *Block) Terminator() *Insn {
	if n := len(b.Insns); n > 0 && b.Insns[n-1].Op.IsTerminator() {
		return b.Insns[n-1]
	}
	return nil
}

// IndexOf returns the position of insn in the block, or -1.
func (b *Block) IndexOf(insn *Insn) int {
	for i, x := range b.Insns {
		if x == insn {
			return i
		}
	}
	return -1
}

// FieldType classifies the values a field can hold.
type FieldType uint8

const (
	TypeInt FieldType = iota
	TypeString
	TypeRef
	TypeOther
)

// Field is a field declaration.
type Field struct {
	Class  *Class
	Name   string
	Static bool
	Type   FieldType
	// Initial is the explicit value the field holds before any write.
	Initial *Literal
	// External marks fields written outside the scope, e.g. reflectively.
	External bool
}

func (f *Field) Ref() FieldRef { return FieldRef{f.Class.Name, f.Name} }

func (f *Field) String() string { return f.Ref().String() }

// InitialValue is the value of the field before its first write, if known.
func (f *Field) InitialValue() (Literal, bool) {
	if f.Initial != nil {
		return *f.Initial, true
	}
	switch f.Type {
	case TypeInt:
		return Int(0), true
	case TypeString, TypeRef:
		return Null(), true
	}
	return Literal{}, false
}

const (
	ClassInitializer    = "<clinit>"
	InstanceInitializer = "<init>"
)

// Method is a method declaration, with a body unless External.
type Method struct {
	Class *Class
	Name  string
	// Params counts parameter registers, including the receiver. Parameters
	// occupy registers 0..Params-1.
	Params  int
	NumRegs int
	Static  bool
	// Virtual marks methods reachable through dynamic dispatch.
	Virtual bool
	// External marks methods without an analyzable body.
	External bool
	// Root marks methods that may be called from outside the scope.
	Root   bool
	Blocks []*Block

	nextBlock int
}

func (m *Method) Ref() MethodRef { return MethodRef{m.Class.Name, m.Name} }

func (m *Method) String() string { return m.Ref().String() }

// IsClassInitializer holds for static initializers.
func (m *Method) IsClassInitializer() bool { return m.Static && m.Name == ClassInitializer }

// IsConstructor holds for instance initializers.
func (m *Method) IsConstructor() bool { return !m.Static && m.Name == InstanceInitializer }

// Entry returns the entry block, creating it for empty methods.
func (m *Method) Entry() *Block {
	if len(m.Blocks) == 0 {
		return m.NewBlock()
	}
	return m.Blocks[0]
}

// HasBody holds for methods whose code can be analyzed.
func (m *Method) HasBody() bool { return !m.External && len(m.Blocks) > 0 }

// NewBlock appends an empty block to the method.
func (m *Method) NewBlock() *Block {
	b := &Block{ID: m.nextBlock, method: m}
	m.nextBlock++
	m.Blocks = append(m.Blocks, b)
	return b
}

// NewReg allocates a fresh register.
func (m *Method) NewReg() Reg {
	r := Reg(m.NumRegs)
	m.NumRegs++
	return r
}

// Insns calls do for every instruction of the method in block order.
func (m *Method) Insns(do func(b *Block, insn *Insn)) {
	for _, b := range m.Blocks {
		for _, insn := range b.Insns {
			do(b, insn)
		}
	}
}

// Class is a class or interface declaration.
type Class struct {
	Name        string
	Super       *Class
	Interfaces  []*Class
	IsInterface bool
	// External classes may be extended outside the scope.
	External bool
	Fields   []*Field
	Methods  []*Method

	scope *Scope
}

func (c *Class) String() string { return c.Name }

// Scope returns the scope declaring the class.
func (c *Class) Scope() *Scope { return c.scope }

// NewField declares a field in the class.
func (c *Class) NewField(name string, static bool, typ FieldType) *Field {
	f := &Field{Class: c, Name: name, Static: static, Type: typ}
	c.Fields = append(c.Fields, f)
	c.scope.invalidate()
	return f
}

// NewMethod declares a method in the class. Instance methods count the
// receiver among their parameters.
func (c *Class) NewMethod(name string, static bool, params int) *Method {
	m := &Method{Class: c, Name: name, Static: static, Params: params, NumRegs: params}
	if !static && name != InstanceInitializer {
		m.Virtual = true
	}
	c.Methods = append(c.Methods, m)
	c.scope.invalidate()
	return m
}

// Field returns the field declared in the class with the given name.
func (c *Class) Field(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Method returns the method declared in the class with the given name.
func (c *Class) Method(name string) *Method {
	for _, m := range c.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// IsSubclassOf holds when c is d or inherits from it, through super classes
// or implemented interfaces.
func (c *Class) IsSubclassOf(d *Class) bool {
	if c == nil {
		return false
	}
	if c == d {
		return true
	}
	for _, i := range c.Interfaces {
		if i.IsSubclassOf(d) {
			return true
		}
	}
	return c.Super.IsSubclassOf(d)
}

// Scope is the set of classes subject to analysis and rewrite.
type Scope struct {
	Classes []*Class

	byName map[string]*Class
	idents *fieldIdentities
}

func NewScope() *Scope {
	return &Scope{byName: make(map[string]*Class)}
}

// NewClass declares a class. super may be nil.
func (s *Scope) NewClass(name string, super *Class) *Class {
	c := &Class{Name: name, Super: super, scope: s}
	s.Classes = append(s.Classes, c)
	s.byName[name] = c
	s.invalidate()
	return c
}

// Class looks up a class by name.
func (s *Scope) Class(name string) *Class { return s.byName[name] }

// Methods lists every method of the scope in declaration order.
func (s *Scope) Methods() []*Method {
	var ms []*Method
	for _, c := range s.Classes {
		ms = append(ms, c.Methods...)
	}
	return ms
}

// Fields lists every field of the scope in declaration order.
func (s *Scope) Fields() []*Field {
	var fs []*Field
	for _, c := range s.Classes {
		fs = append(fs, c.Fields...)
	}
	return fs
}

// FindMethod looks up a method by its printed name "Owner.Name".
func (s *Scope) FindMethod(name string) *Method {
	for _, m := range s.Methods() {
		if m.String() == name {
			return m
		}
	}
	return nil
}

func (s *Scope) invalidate() {
	if s != nil {
		s.idents = nil
	}
}
