package testutil

import (
	"fmt"

	"golang.org/x/tools/go/expect"

	"github.com/cs-au-dk/constprop/analysis/ir"
	L "github.com/cs-au-dk/constprop/analysis/lattice"
)

// Annotation is a claim about the analysis of a source line, written as a
// note comment:
//
//	//@ constant(42)   a value computed on the line is the constant
//	//@ unknown        no value loaded or computed on the line is constant
//	//@ dead           the code of the line is unreachable
//	//@ returns(42)    the function declared on the line returns the constant
type Annotation interface {
	fmt.Stringer
	Note() *expect.Note
}

type base struct {
	note *expect.Note
}

func (a base) Note() *expect.Note { return a.note }

type AnnConstant struct {
	base
	Value L.Element
}

func (a AnnConstant) String() string { return "constant(" + a.Value.String() + ")" }

type AnnUnknown struct{ base }

func (AnnUnknown) String() string { return "unknown" }

type AnnDead struct{ base }

func (AnnDead) String() string { return "dead" }

type AnnReturns struct {
	base
	Value L.Element
}

func (a AnnReturns) String() string { return "returns(" + a.Value.String() + ")" }

// literalArg converts a note argument to a constant.
func literalArg(arg interface{}) (L.Element, error) {
	switch v := arg.(type) {
	case int64:
		return L.ConstInt(v), nil
	case string:
		return L.ConstString(v), nil
	case bool:
		if v {
			return L.ConstInt(1), nil
		}
		return L.ConstInt(0), nil
	case expect.Identifier:
		switch v {
		case "nil":
			return L.Const(ir.Null()), nil
		case "true":
			return L.ConstInt(1), nil
		case "false":
			return L.ConstInt(0), nil
		}
	}
	return L.Element{}, fmt.Errorf("unsupported constant %v (%T)", arg, arg)
}

// CreateAnnotation interprets a note.
func CreateAnnotation(note *expect.Note) (Annotation, error) {
	b := base{note}
	oneArg := func() (L.Element, error) {
		if len(note.Args) != 1 {
			return L.Element{}, fmt.Errorf("%s expects one argument, got %v", note.Name, note.Args)
		}
		return literalArg(note.Args[0])
	}

	switch note.Name {
	case "constant":
		v, err := oneArg()
		return AnnConstant{b, v}, err
	case "returns":
		v, err := oneArg()
		return AnnReturns{b, v}, err
	case "unknown":
		return AnnUnknown{b}, nil
	case "dead":
		return AnnDead{b}, nil
	}
	return nil, fmt.Errorf("unknown annotation %q", note.Name)
}
