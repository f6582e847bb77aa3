package ir

import (
	"fmt"
	"io"
	"strings"
)

var fieldTypeNames = [...]string{"int", "string", "ref", "other"}

func (t FieldType) String() string { return fieldTypeNames[t] }

// Fprint writes a textual listing of the scope. The output only depends on
// declaration order, so it is stable across runs.
func Fprint(w io.Writer, s *Scope) error {
	for i, c := range s.Classes {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := FprintClass(w, c); err != nil {
			return err
		}
	}
	return nil
}

func FprintClass(w io.Writer, c *Class) error {
	var sb strings.Builder

	kind := "class"
	if c.IsInterface {
		kind = "interface"
	}
	sb.WriteString(kind + " " + c.Name)
	if c.Super != nil {
		sb.WriteString(" extends " + c.Super.Name)
	}
	if len(c.Interfaces) > 0 {
		names := make([]string, len(c.Interfaces))
		for i, itf := range c.Interfaces {
			names[i] = itf.Name
		}
		sb.WriteString(" implements " + strings.Join(names, ", "))
	}
	if c.External {
		sb.WriteString(" !external")
	}
	sb.WriteString("\n")

	for _, f := range c.Fields {
		sb.WriteString("  field ")
		if f.Static {
			sb.WriteString("static ")
		}
		sb.WriteString(f.Name + " " + f.Type.String())
		if f.Initial != nil {
			sb.WriteString(" = " + f.Initial.String())
		}
		if f.External {
			sb.WriteString(" !external")
		}
		sb.WriteString("\n")
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}

	for _, m := range c.Methods {
		if err := FprintMethod(w, m); err != nil {
			return err
		}
	}
	return nil
}

func FprintMethod(w io.Writer, m *Method) error {
	var sb strings.Builder

	sb.WriteString("  method ")
	if m.Static {
		sb.WriteString("static ")
	}
	if m.Virtual {
		sb.WriteString("virtual ")
	}
	fmt.Fprintf(&sb, "%s(params=%d, regs=%d)", m.Name, m.Params, m.NumRegs)
	if m.Root {
		sb.WriteString(" !root")
	}
	if !m.HasBody() {
		sb.WriteString(" !external\n")
		_, err := io.WriteString(w, sb.String())
		return err
	}
	sb.WriteString("\n")

	for _, b := range m.Blocks {
		sb.WriteString("    " + b.String() + ":")
		if len(b.Catches) > 0 {
			names := make([]string, len(b.Catches))
			for i, h := range b.Catches {
				names[i] = h.String()
			}
			sb.WriteString(" catch " + strings.Join(names, ", "))
		}
		sb.WriteString("\n")
		for _, insn := range b.Insns {
			sb.WriteString("      " + insn.String() + "\n")
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
