package wholeprogram

import (
	"github.com/cs-au-dk/constprop/analysis/fixpoint"
	"github.com/cs-au-dk/constprop/analysis/ir"
	L "github.com/cs-au-dk/constprop/analysis/lattice"
)

// Aggregate builds the snapshot described by one round of method analyses.
// Only joins are used to combine the results, so the order of results does
// not matter.
func Aggregate(idx *fixpoint.Index, results []*fixpoint.Result, propagateArguments bool) *State {
	var (
		fields = make(map[*ir.Field]L.Element)
		params = make(map[Param]L.Element)
		join   = func(f *ir.Field, v L.Element) { fields[f] = fields[f].Join(v) }
	)

	s := Seed()
	for _, r := range results {
		if r == nil {
			continue
		}

		for f, v := range r.Writes {
			join(f, v)
		}
		for f, v := range r.ExitSlots {
			join(f, v)
		}
		for f, v := range r.Observations {
			join(f, v)
		}

		// A method that never returns a value leaves its summary at T.
		s = s.withReturn(r.Method, r.Return)

		if !propagateArguments {
			continue
		}
		for _, cs := range r.Calls {
			for _, t := range cs.Targets {
				if !argumentsKnown(t) {
					continue
				}
				for i, arg := range cs.Args {
					p := Param{t, i}
					params[p] = params[p].Join(arg)
				}
			}
		}
	}

	for _, f := range idx.Scope.Fields() {
		if f.External || idx.Clobbered(f) {
			continue
		}
		v := fields[f]
		if _, ok := idx.TrackingInitializer(f); !ok {
			// Every read may precede every write.
			if lit, ok := f.InitialValue(); ok {
				v = v.Join(L.Const(lit))
			} else {
				v = L.Top
			}
		}
		s = s.withField(f, v)
	}

	for p, v := range params {
		s = s.withParam(p, v)
	}

	return s
}

// argumentsKnown holds for methods whose every call site is in the scope.
func argumentsKnown(m *ir.Method) bool {
	return m.HasBody() && !m.Root && !m.Virtual && !m.Class.External
}
