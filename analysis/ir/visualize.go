package ir

import (
	"fmt"
	"strings"

	"github.com/cs-au-dk/constprop/utils/dot"
)

// Dot builds a graph of the method's control flow, one node per block.
// Exceptional edges are dashed.
func (m *Method) Dot() *dot.DotGraph {
	G := &dot.DotGraph{
		Title: m.String(),
		Options: map[string]string{
			"rankdir": "TB",
		},
	}

	nodes := make(map[*Block]*dot.DotNode, len(m.Blocks))
	for _, b := range m.Blocks {
		lines := make([]string, 0, len(b.Insns)+1)
		lines = append(lines, b.String()+":")
		for _, insn := range b.Insns {
			lines = append(lines, insn.String())
		}

		attrs := dot.DotAttrs{
			// Left-justified lines.
			"label": strings.Join(lines, "\\l") + "\\l",
		}
		if b == m.Blocks[0] {
			attrs["fillcolor"] = "lightblue"
		}
		n := &dot.DotNode{ID: fmt.Sprintf("%s_%s", m.Name, b), Attrs: attrs}
		nodes[b] = n
		G.Nodes = append(G.Nodes, n)
	}

	for _, b := range m.Blocks {
		for i, s := range b.Succs {
			attrs := dot.DotAttrs{}
			if len(b.Succs) == 2 {
				attrs["label"] = map[int]string{0: "T", 1: "F"}[i]
			}
			G.Edges = append(G.Edges, &dot.DotEdge{From: nodes[b], To: nodes[s], Attrs: attrs})
		}
		for _, h := range b.Catches {
			G.Edges = append(G.Edges, &dot.DotEdge{
				From:  nodes[b],
				To:    nodes[h],
				Attrs: dot.DotAttrs{"style": "dashed", "color": "red"},
			})
		}
	}

	return G
}
