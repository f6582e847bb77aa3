package testutil

import (
	"fmt"
	"go/token"
	"strings"
	"testing"

	"golang.org/x/tools/go/expect"

	"github.com/cs-au-dk/constprop/analysis/ir"
	"github.com/cs-au-dk/constprop/analysis/wholeprogram"
)

type line struct {
	file string
	line int
}

// NotesManager collects the annotations of the focused package of a load
// result and checks them against an analysis outcome.
type NotesManager struct {
	anns    []Annotation
	loadRes LoadResult

	insns   map[line][]*ir.Insn
	methods map[line][]*ir.Method
}

func MakeNotesManager(t *testing.T, loadRes LoadResult) (n NotesManager) {
	t.Helper()
	n.loadRes = loadRes
	fset := loadRes.Prog.Fset

	for _, file := range loadRes.MainPkg.Syntax {
		notes, err := expect.ExtractGo(fset, file)
		if err != nil {
			t.Fatal(err)
		}
		for _, note := range notes {
			ann, err := CreateAnnotation(note)
			if err != nil {
				t.Fatalf("%s: %v", fset.Position(note.Pos), err)
			}
			n.anns = append(n.anns, ann)
		}
	}

	n.insns = make(map[line][]*ir.Insn)
	n.methods = make(map[line][]*ir.Method)
	for fn, m := range loadRes.Lowered.Methods {
		if pos := fset.Position(fn.Pos()); pos.IsValid() {
			l := line{pos.Filename, pos.Line}
			n.methods[l] = append(n.methods[l], m)
		}
		m.Insns(func(_ *ir.Block, insn *ir.Insn) {
			if pos, ok := loadRes.Lowered.Position(insn); ok {
				l := line{pos.Filename, pos.Line}
				n.insns[l] = append(n.insns[l], insn)
			}
		})
	}
	return
}

func (n NotesManager) Annotations() []Annotation { return n.anns }

func (n NotesManager) lineOf(a Annotation) line {
	pos := n.loadRes.Prog.Fset.Position(a.Note().Pos)
	return line{pos.Filename, pos.Line}
}

func (n NotesManager) position(a Annotation) token.Position {
	return n.loadRes.Prog.Fset.Position(a.Note().Pos)
}

// computed holds for instructions computing a value from more than their
// literal operands.
func computed(insn *ir.Insn) bool {
	switch insn.Op {
	case ir.OpSGet, ir.OpIGet, ir.OpInvoke, ir.OpBinOp, ir.OpCmp:
		_, ok := insn.Defines()
		return ok
	}
	return false
}

// Check verifies every annotation against the outcome and reports the
// violations.
func (n NotesManager) Check(t *testing.T, out *wholeprogram.Outcome) {
	t.Helper()
	for _, a := range n.anns {
		if err := n.check(a, out); err != nil {
			t.Errorf("%s: %s: %v", n.position(a), a, err)
		}
	}
}

func (n NotesManager) check(a Annotation, out *wholeprogram.Outcome) error {
	insns := n.insns[n.lineOf(a)]
	var values []string
	for _, insn := range insns {
		if computed(insn) {
			if res := out.Results[insn.Block().Method()]; res != nil {
				values = append(values, fmt.Sprintf("%s = %s", insn, res.Value(insn)))
			}
		}
	}

	switch a := a.(type) {
	case AnnConstant:
		for _, insn := range insns {
			res := out.Results[insn.Block().Method()]
			if computed(insn) && res != nil && res.Value(insn) == a.Value {
				return nil
			}
		}
		return fmt.Errorf("no value is %s among [%s]", a.Value, strings.Join(values, ", "))

	case AnnUnknown:
		found := false
		for _, insn := range insns {
			res := out.Results[insn.Block().Method()]
			if !computed(insn) || res == nil {
				continue
			}
			found = true
			if res.Value(insn).IsConstant() {
				return fmt.Errorf("%s is constant", insn)
			}
		}
		if !found {
			return fmt.Errorf("no values are computed on the line")
		}

	case AnnDead:
		if len(insns) == 0 {
			return fmt.Errorf("no code on the line")
		}
		for _, insn := range insns {
			if res := out.Results[insn.Block().Method()]; res != nil && res.Reachable(insn.Block()) {
				return fmt.Errorf("%s is reachable", insn)
			}
		}

	case AnnReturns:
		methods := n.methods[n.lineOf(a)]
		if len(methods) == 0 {
			return fmt.Errorf("no function is declared on the line")
		}
		for _, m := range methods {
			if v := out.State.ReturnValue(m); v == a.Value {
				return nil
			}
		}
		return fmt.Errorf("returned value is %s", out.State.ReturnValue(methods[0]))
	}
	return nil
}
