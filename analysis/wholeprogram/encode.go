package wholeprogram

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cs-au-dk/constprop/analysis/ir"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wholeprogram: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Summary is the serialized form of one constant summary.
type Summary struct {
	Kind string `cbor:"1,keyasint"`
	Int  int64  `cbor:"2,keyasint,omitempty"`
	Str  string `cbor:"3,keyasint,omitempty"`
}

// Dump is the serialized form of a snapshot, keyed by printed names.
type Dump struct {
	Fields  map[string]Summary `cbor:"1,keyasint,omitempty"`
	Returns map[string]Summary `cbor:"2,keyasint,omitempty"`
	Params  map[string]Summary `cbor:"3,keyasint,omitempty"`
}

func summaryOf(l ir.Literal) Summary {
	switch l.Kind {
	case ir.LitInt:
		return Summary{Kind: "int", Int: l.Int}
	case ir.LitString:
		return Summary{Kind: "string", Str: l.Str}
	default:
		return Summary{Kind: "null"}
	}
}

// Literal converts a serialized summary back to a literal.
func (s Summary) Literal() (ir.Literal, error) {
	switch s.Kind {
	case "int":
		return ir.Int(s.Int), nil
	case "string":
		return ir.String(s.Str), nil
	case "null":
		return ir.Null(), nil
	}
	return ir.Literal{}, fmt.Errorf("unknown summary kind %q", s.Kind)
}

// Dump converts the snapshot to its serializable form.
func (s *State) Dump() Dump {
	conv := func(es []entry) map[string]Summary {
		if len(es) == 0 {
			return nil
		}
		m := make(map[string]Summary, len(es))
		for _, e := range es {
			m[e.key] = summaryOf(e.v.Value())
		}
		return m
	}
	return Dump{
		Fields:  conv(entries(s.fields)),
		Returns: conv(entries(s.returns)),
		Params:  conv(entries(s.params)),
	}
}

// Encode serializes the snapshot as canonical CBOR, so equal snapshots of
// the same scope encode to equal bytes.
func (s *State) Encode() ([]byte, error) {
	return cborEncMode.Marshal(s.Dump())
}

// DecodeDump parses the output of Encode.
func DecodeDump(data []byte) (*Dump, error) {
	var d Dump
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("wholeprogram: unmarshal state: %w", err)
	}
	return &d, nil
}
