package graph

import (
	"strconv"
	"strings"
)

// DOT renders the graph for Graphviz, one edge per line in insertion order.
func DOT(g *DependencyGraph) string {
	var buf strings.Builder
	buf.WriteString("digraph {\n")
	for _, id := range g.order {
		for _, dep := range g.edges[id] {
			buf.WriteString("  ")
			buf.WriteString(quoteID(id))
			buf.WriteString(" -> ")
			buf.WriteString(quoteID(dep))
			buf.WriteString("\n")
		}
	}
	buf.WriteString("}")
	return buf.String()
}

func quoteID(id string) string {
	if !strings.ContainsAny(id, "\"\\") {
		return `"` + id + `"`
	}
	return strconv.Quote(id)
}
