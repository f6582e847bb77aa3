package ir

import (
	uf "github.com/spakin/disjoint"
)

// fieldIdentities maps every field reference of the scope to its declaring
// field. References that reach the same declaration through different
// owners share one identity.
type fieldIdentities struct {
	resolved map[FieldRef]*Field
}

// IndexFields canonicalizes all field references of the scope. It must be
// called again after classes or fields are added, and before resolving
// fields concurrently.
func (s *Scope) IndexFields() {
	sets := make(map[FieldRef]*uf.Element)
	elem := func(ref FieldRef) *uf.Element {
		e, ok := sets[ref]
		if !ok {
			e = uf.NewElement()
			sets[ref] = e
		}
		return e
	}

	for _, f := range s.Fields() {
		elem(f.Ref()).Data = f
	}

	for _, m := range s.Methods() {
		m.Insns(func(_ *Block, insn *Insn) {
			refs := insn.Clobbers
			switch insn.Op {
			case OpSGet, OpSPut, OpIGet, OpIPut:
				refs = append([]FieldRef{insn.Field}, refs...)
			}
			for _, ref := range refs {
				if decl := s.lookupField(ref); decl != nil {
					uf.Union(elem(ref), elem(decl.Ref()))
				}
			}
		})
	}

	idents := &fieldIdentities{resolved: make(map[FieldRef]*Field, len(sets))}
	for ref, e := range sets {
		if f, ok := e.Find().Data.(*Field); ok {
			idents.resolved[ref] = f
		}
	}
	s.idents = idents
}

// lookupField walks the hierarchy from the reference's owner to the
// declaring class.
func (s *Scope) lookupField(ref FieldRef) *Field {
	var visit func(c *Class) *Field
	visit = func(c *Class) *Field {
		if c == nil {
			return nil
		}
		if f := c.Field(ref.Name); f != nil {
			return f
		}
		for _, i := range c.Interfaces {
			if f := visit(i); f != nil {
				return f
			}
		}
		return visit(c.Super)
	}
	return visit(s.Class(ref.Owner))
}

// ResolveField returns the declaration a field reference denotes, or nil if
// it is declared outside the scope.
func (s *Scope) ResolveField(ref FieldRef) *Field {
	if s.idents != nil {
		if f, ok := s.idents.resolved[ref]; ok {
			return f
		}
	}
	return s.lookupField(ref)
}

// lookupMethod finds the first declaration of name in c or its super
// classes.
func lookupMethod(c *Class, name string) *Method {
	for ; c != nil; c = c.Super {
		if m := c.Method(name); m != nil {
			return m
		}
	}
	return nil
}

// ResolveMethod returns the declaration a call resolves to statically.
func (s *Scope) ResolveMethod(ref MethodRef) *Method {
	c := s.Class(ref.Owner)
	if c == nil {
		return nil
	}
	if m := lookupMethod(c, ref.Name); m != nil {
		return m
	}
	if c.IsInterface {
		for _, i := range c.Interfaces {
			if m := s.ResolveMethod(MethodRef{i.Name, ref.Name}); m != nil {
				return m
			}
		}
	}
	return nil
}

// Resolver determines the feasible targets of call sites. The boolean is
// false when the set of targets is not known to be finite and complete.
type Resolver interface {
	Targets(call *Insn) ([]*Method, bool)
}

// HierarchyResolver resolves calls by class hierarchy analysis under a
// closed-world assumption: only classes marked External may be extended
// outside the scope.
type HierarchyResolver struct {
	Scope *Scope
}

func (r HierarchyResolver) Targets(call *Insn) ([]*Method, bool) {
	if call.Op != OpInvoke {
		return nil, false
	}

	if !call.Kind.Dispatched() {
		if m := r.Scope.ResolveMethod(call.Meth); m != nil {
			return []*Method{m}, true
		}
		return nil, false
	}

	owner := r.Scope.Class(call.Meth.Owner)
	if owner == nil || owner.External {
		return nil, false
	}
	// Methods that cannot be overridden dispatch to their declaration.
	if m := lookupMethod(owner, call.Meth.Name); m != nil && !m.Virtual {
		return []*Method{m}, true
	}

	var targets []*Method
	seen := make(map[*Method]bool)
	for _, c := range r.Scope.Classes {
		if c.IsInterface || !c.IsSubclassOf(owner) {
			continue
		}
		if c.External {
			return nil, false
		}
		m := lookupMethod(c, call.Meth.Name)
		if m == nil {
			// Inherited from outside the scope.
			return nil, false
		}
		if !seen[m] {
			seen[m] = true
			targets = append(targets, m)
		}
	}

	if len(targets) == 0 {
		return nil, false
	}
	return targets, true
}
