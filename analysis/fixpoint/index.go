package fixpoint

import (
	"github.com/cs-au-dk/constprop/analysis/ir"
)

// Index holds scope-wide facts that do not depend on the whole-program
// state. It is computed once per run and shared read-only by all method
// analyses.
type Index struct {
	Scope    *ir.Scope
	Resolver ir.Resolver

	// tracked lists the fields whose value an initializer follows in its
	// environment.
	tracked map[*ir.Method][]*ir.Field
	// trackedBy maps a field to the initializer tracking it.
	trackedBy map[*ir.Field]*ir.Method
	// writtenElsewhere holds fields with write sites outside the
	// initializer tracking them.
	writtenElsewhere map[*ir.Field]bool
	clobbered        map[*ir.Field]bool
}

// NewIndex canonicalizes field references of the scope and collects the
// initializer tracking information.
func NewIndex(scope *ir.Scope, resolver ir.Resolver) *Index {
	scope.IndexFields()

	idx := &Index{
		Scope:            scope,
		Resolver:         resolver,
		tracked:          make(map[*ir.Method][]*ir.Field),
		trackedBy:        make(map[*ir.Field]*ir.Method),
		writtenElsewhere: make(map[*ir.Field]bool),
		clobbered:        make(map[*ir.Field]bool),
	}

	for _, c := range scope.Classes {
		for _, m := range c.Methods {
			if !m.HasBody() {
				continue
			}
			var static bool
			switch {
			case m.IsClassInitializer():
				static = true
			case m.IsConstructor() && stableReceiver(m):
				static = false
			default:
				continue
			}
			for _, f := range c.Fields {
				if f.Static == static && !f.External {
					idx.tracked[m] = append(idx.tracked[m], f)
					idx.trackedBy[f] = m
				}
			}
		}
	}

	for _, m := range scope.Methods() {
		m.Insns(func(_ *ir.Block, insn *ir.Insn) {
			for _, ref := range insn.Clobbers {
				if f := scope.ResolveField(ref); f != nil {
					idx.clobbered[f] = true
				}
			}
			switch insn.Op {
			case ir.OpSPut, ir.OpIPut:
				f := scope.ResolveField(insn.Field)
				if f != nil && !idx.isTrackedAccess(m, insn, f) {
					idx.writtenElsewhere[f] = true
				}
			}
		})
	}

	return idx
}

// stableReceiver holds for constructors that never overwrite the receiver
// register, so every access through it targets the object under
// construction.
func stableReceiver(m *ir.Method) bool {
	if m.Params < 1 {
		return false
	}
	stable := true
	m.Insns(func(_ *ir.Block, insn *ir.Insn) {
		if r, ok := insn.Defines(); ok && r == 0 {
			stable = false
		}
	})
	return stable
}

// Tracked lists the fields m follows as environment slots.
func (idx *Index) Tracked(m *ir.Method) []*ir.Field {
	return idx.tracked[m]
}

// TrackingInitializer returns the initializer following f, if any.
func (idx *Index) TrackingInitializer(f *ir.Field) (*ir.Method, bool) {
	m, ok := idx.trackedBy[f]
	return m, ok
}

// WrittenElsewhere holds for fields written outside their tracking
// initializer, or untracked fields written anywhere.
func (idx *Index) WrittenElsewhere(f *ir.Field) bool {
	return idx.writtenElsewhere[f]
}

// Clobbered holds for fields some unanalyzable instruction may write.
func (idx *Index) Clobbered(f *ir.Field) bool {
	return idx.clobbered[f]
}

// isTrackedAccess determines whether a field instruction of m accesses a
// slot m tracks.
func (idx *Index) isTrackedAccess(m *ir.Method, insn *ir.Insn, f *ir.Field) bool {
	if idx.trackedBy[f] != m {
		return false
	}
	switch insn.Op {
	case ir.OpSGet, ir.OpSPut:
		return f.Static
	case ir.OpIGet:
		return !f.Static && len(insn.Srcs) == 1 && insn.Srcs[0] == 0
	case ir.OpIPut:
		return !f.Static && len(insn.Srcs) == 2 && insn.Srcs[1] == 0
	}
	return false
}
