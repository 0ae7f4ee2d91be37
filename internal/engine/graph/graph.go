// Package graph holds the AMD dependency graph, the breadth-first tracer
// that builds it, and the depth-first bundle ordering computed from it.
package graph

import "encoding/json"

// DependencyGraph maps module IDs to their direct dependency IDs. Entries
// and edges keep discovery order. Not safe for concurrent mutation.
type DependencyGraph struct {
	order []string
	edges map[string][]string
}

func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{edges: make(map[string][]string)}
}

// Ensure creates an empty entry for id and reports whether it was new.
func (g *DependencyGraph) Ensure(id string) bool {
	if _, ok := g.edges[id]; ok {
		return false
	}
	g.edges[id] = []string{}
	g.order = append(g.order, id)
	return true
}

func (g *DependencyGraph) Has(id string) bool {
	_, ok := g.edges[id]
	return ok
}

// AddEdge appends to to from's dependency list unless already present.
func (g *DependencyGraph) AddEdge(from, to string) {
	g.Ensure(from)
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// Deps returns a copy of id's dependency list.
func (g *DependencyGraph) Deps(id string) []string {
	return append([]string(nil), g.edges[id]...)
}

// IDs returns every module ID in insertion order.
func (g *DependencyGraph) IDs() []string {
	return append([]string(nil), g.order...)
}

func (g *DependencyGraph) Len() int {
	return len(g.order)
}

func (g *DependencyGraph) EdgeCount() int {
	n := 0
	for _, deps := range g.edges {
		n += len(deps)
	}
	return n
}

// MarshalJSON encodes the graph as an object keyed in insertion order.
func (g *DependencyGraph) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, id := range g.order {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		deps, err := json.Marshal(g.edges[id])
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, deps...)
	}
	return append(buf, '}'), nil
}
