package ir

import (
	"bytes"
	"strings"
	"testing"
)

func TestDot(t *testing.T) {
	_, m := diamond()

	g := m.Dot()
	if len(g.Nodes) != 4 || len(g.Edges) != 4 {
		t.Fatalf("expected 4 nodes and 4 edges, got %d and %d", len(g.Nodes), len(g.Edges))
	}
	if g.Nodes[0].Attrs["fillcolor"] != "lightblue" {
		t.Errorf("expected the entry to be highlighted, got %v", g.Nodes[0].Attrs)
	}

	var buf bytes.Buffer
	if err := g.WriteDot(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "digraph CFG {") {
		t.Errorf("unexpected output:\n%s", out)
	}
	for _, want := range []string{`label="T";`, `label="F";`, "rankdir=\"TB\""} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output:\n%s", want, out)
		}
	}
}
