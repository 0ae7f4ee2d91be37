package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildGraph(edges map[string][]string, order ...string) *DependencyGraph {
	g := NewDependencyGraph()
	for _, id := range order {
		g.Ensure(id)
		for _, dep := range edges[id] {
			g.AddEdge(id, dep)
		}
	}
	return g
}

func TestBundleOrderDepthFirst(t *testing.T) {
	g := buildGraph(map[string][]string{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d", "e"},
	}, "a", "b", "c", "d", "e")

	assert.Equal(t, []string{"a", "b", "d", "c", "e"}, BundleOrder(g, []string{"a"}, nil))
}

func TestBundleOrderSkipsIgnored(t *testing.T) {
	g := buildGraph(map[string][]string{
		"a":                        {"require", "text!js-translation.json", "b"},
		"text!js-translation.json": {"hidden"},
	}, "a", "text!js-translation.json", "b", "hidden")

	got := BundleOrder(g, []string{"a", "module"}, DefaultExclusions)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestBundleOrderCycle(t *testing.T) {
	g := buildGraph(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}, "a", "b")

	assert.Equal(t, []string{"a", "b"}, BundleOrder(g, []string{"a"}, nil))
	assert.Equal(t, []string{"b", "a"}, BundleOrder(g, []string{"b"}, nil))
}

func TestBundleOrderMultipleEntries(t *testing.T) {
	g := buildGraph(map[string][]string{
		"x": {"shared"},
		"y": {"shared", "z"},
	}, "x", "y", "shared", "z")

	assert.Equal(t, []string{"x", "shared", "y", "z"}, BundleOrder(g, []string{"x", "y", "x"}, nil))
}

func TestBundleOrderUnknownEntry(t *testing.T) {
	g := NewDependencyGraph()
	assert.Equal(t, []string{"orphan"}, BundleOrder(g, []string{"orphan"}, nil))
}

// A module reachable only through B never precedes B.
func TestBundleOrderRespectsReachability(t *testing.T) {
	g := buildGraph(map[string][]string{
		"root":  {"left", "right"},
		"left":  {"leaf1"},
		"right": {"leaf2"},
		"leaf2": {"deep"},
	}, "root", "left", "right", "leaf1", "leaf2", "deep")

	order := BundleOrder(g, []string{"root"}, nil)
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["left"], pos["leaf1"])
	assert.Less(t, pos["right"], pos["leaf2"])
	assert.Less(t, pos["leaf2"], pos["deep"])
	assert.Len(t, order, 6)
}

func TestDOT(t *testing.T) {
	g := buildGraph(map[string][]string{
		"a": {"b", "c"},
		"b": {"c"},
	}, "a", "b", "c")

	want := "digraph {\n  \"a\" -> \"b\"\n  \"a\" -> \"c\"\n  \"b\" -> \"c\"\n}"
	assert.Equal(t, want, DOT(g))
	assert.Equal(t, "digraph {\n}", DOT(NewDependencyGraph()))
}

func TestDependencyGraphDedupesEdges(t *testing.T) {
	g := NewDependencyGraph()
	assert.True(t, g.Ensure("a"))
	assert.False(t, g.Ensure("a"))
	g.AddEdge("a", "b")
	g.AddEdge("a", "b")
	g.AddEdge("a", "c")

	assert.Equal(t, []string{"b", "c"}, g.Deps("a"))
	assert.Equal(t, 2, g.EdgeCount())

	raw, err := g.MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, `{"a":["b","c"]}`, string(raw))
}
