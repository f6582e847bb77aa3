package frontend

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/cs-au-dk/constprop/analysis/ir"
)

// markEscapes inspects every function of the program, lowered or not, and
// widens what the closed-world view of the scope cannot account for:
//   - globals accessed other than by a direct load or store of a lowered
//     function are External,
//   - struct fields whose address is used other than for a load or store
//     in a lowered function are External, as are all fields of struct types
//     whose values are stored as a whole or kept in slices, maps or channels,
//   - lowered functions referenced other than as the callee of a lowered
//     call are roots,
//   - interfaces implemented by types without a class are External.
func (l *lowerer) markEscapes() {
	var ifaces []*types.Named
	for _, t := range l.named {
		if types.IsInterface(t) {
			ifaces = append(ifaces, t)
		}
	}

	byValue := make(map[types.Type]bool)
	contained := make(map[types.Type]bool)
	for fn := range ssautil.AllFunctions(l.prog) {
		lowered := l.methods[fn] != nil && len(fn.Blocks) > 0
		for _, p := range fn.Params {
			l.markContainers(p.Type(), contained, byValue)
		}
		for _, fv := range fn.FreeVars {
			l.markContainers(fv.Type(), contained, byValue)
		}

		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				if _, ok := instr.(*ssa.DebugRef); ok {
					continue
				}
				if v, ok := instr.(ssa.Value); ok {
					l.markContainers(v.Type(), contained, byValue)
				}

				for _, op := range instr.Operands(nil) {
					if op == nil || *op == nil {
						continue
					}
					switch x := (*op).(type) {
					case *ssa.Global:
						if f := l.globals[x]; f != nil && !(lowered && isDirectAccess(instr, x)) {
							f.External = true
						}
					case *ssa.Function:
						if m := l.methods[x]; m != nil && !(lowered && isStaticCallee(instr, x)) {
							m.Root = true
						}
					case *ssa.Const:
						l.markContainers(x.Type(), contained, byValue)
					}
				}

				switch x := instr.(type) {
				case *ssa.Store:
					l.markByValue(x.Val.Type(), byValue)
				case *ssa.FieldAddr:
					if f := l.fieldOf(x); f != nil && !(lowered && onlyAccessed(x)) {
						f.External = true
					}
				case *ssa.MakeInterface:
					l.markUnmodeled(x.X.Type(), ifaces)
				}
			}
		}
	}
}

// markByValue marks the fields of every struct type held by value in t as
// External, since storing a struct value writes its fields without field
// stores.
func (l *lowerer) markByValue(t types.Type, seen map[types.Type]bool) {
	if seen[t] {
		return
	}
	seen[t] = true

	switch u := t.(type) {
	case *types.Named:
		if c := l.classes[u]; c != nil {
			if _, ok := u.Underlying().(*types.Struct); ok {
				for _, f := range c.Fields {
					f.External = true
				}
			}
		}
		l.markByValue(u.Underlying(), seen)
	case *types.Struct:
		for i := 0; i < u.NumFields(); i++ {
			l.markByValue(u.Field(i).Type(), seen)
		}
	case *types.Array:
		l.markByValue(u.Elem(), seen)
	case *types.Slice:
		l.markByValue(u.Elem(), seen)
	case *types.Chan:
		l.markByValue(u.Elem(), seen)
	case *types.Map:
		l.markByValue(u.Key(), seen)
		l.markByValue(u.Elem(), seen)
	case *types.Tuple:
		for i := 0; i < u.Len(); i++ {
			l.markByValue(u.At(i).Type(), seen)
		}
	}
}

// markContainers marks the struct types held by value in the elements of
// the slices, maps and channels reachable from t. Builtins like copy and
// append write such elements without stores.
func (l *lowerer) markContainers(t types.Type, seen, byValue map[types.Type]bool) {
	if seen[t] {
		return
	}
	seen[t] = true

	switch u := t.(type) {
	case *types.Named:
		l.markContainers(u.Underlying(), seen, byValue)
	case *types.Pointer:
		l.markContainers(u.Elem(), seen, byValue)
	case *types.Struct:
		for i := 0; i < u.NumFields(); i++ {
			l.markContainers(u.Field(i).Type(), seen, byValue)
		}
	case *types.Array:
		l.markContainers(u.Elem(), seen, byValue)
	case *types.Slice:
		l.markByValue(u.Elem(), byValue)
		l.markContainers(u.Elem(), seen, byValue)
	case *types.Chan:
		l.markByValue(u.Elem(), byValue)
		l.markContainers(u.Elem(), seen, byValue)
	case *types.Map:
		l.markByValue(u.Key(), byValue)
		l.markByValue(u.Elem(), byValue)
		l.markContainers(u.Key(), seen, byValue)
		l.markContainers(u.Elem(), seen, byValue)
	case *types.Tuple:
		for i := 0; i < u.Len(); i++ {
			l.markContainers(u.At(i).Type(), seen, byValue)
		}
	}
}

// markUnmodeled marks the interfaces a concrete type implements as External
// when the type has no class, since calls through them may reach methods
// outside the scope.
func (l *lowerer) markUnmodeled(t types.Type, ifaces []*types.Named) {
	base := t
	if p, ok := t.(*types.Pointer); ok {
		base = p.Elem()
	}
	if named, ok := base.(*types.Named); ok && l.classes[named] != nil {
		return
	}
	for _, it := range ifaces {
		c := l.classes[it]
		if c.External {
			continue
		}
		if types.Implements(t, it.Underlying().(*types.Interface)) {
			c.External = true
		}
	}
}

func (l *lowerer) fieldOf(fa *ssa.FieldAddr) *ir.Field {
	ptr, ok := fa.X.Type().Underlying().(*types.Pointer)
	if !ok {
		return nil
	}
	st, ok := ptr.Elem().Underlying().(*types.Struct)
	if !ok || fa.Field >= st.NumFields() {
		return nil
	}
	return l.fields[st.Field(fa.Field)]
}

// isDirectAccess holds when instr loads from or stores to g.
func isDirectAccess(instr ssa.Instruction, g *ssa.Global) bool {
	switch x := instr.(type) {
	case *ssa.Store:
		return x.Addr == g && x.Val != g
	case *ssa.UnOp:
		return x.Op == token.MUL && x.X == g
	}
	return false
}

// isStaticCallee holds when instr calls fn statically without passing it.
func isStaticCallee(instr ssa.Instruction, fn *ssa.Function) bool {
	call, ok := instr.(*ssa.Call)
	if !ok || call.Call.IsInvoke() || call.Call.Value != fn {
		return false
	}
	for _, arg := range call.Call.Args {
		if arg == fn {
			return false
		}
	}
	return true
}

// onlyAccessed holds when the field address is only loaded from and stored
// to.
func onlyAccessed(fa *ssa.FieldAddr) bool {
	refs := fa.Referrers()
	if refs == nil {
		return true
	}
	for _, ref := range *refs {
		switch x := ref.(type) {
		case *ssa.Store:
			if x.Addr != fa || x.Val == fa {
				return false
			}
		case *ssa.UnOp:
			if x.Op != token.MUL {
				return false
			}
		case *ssa.DebugRef:
		default:
			return false
		}
	}
	return true
}
