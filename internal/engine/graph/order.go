package graph

// builtIns are provided by the loader runtime and never read from disk.
var builtIns = map[string]bool{
	"require": true,
	"exports": true,
	"module":  true,
}

// DefaultExclusions are left out of every bundle. Translation dictionaries
// are fetched by the runtime per locale.
var DefaultExclusions = []string{"text!js-translation.json"}

// IsBuiltIn reports whether id is a loader runtime pseudo-module.
func IsBuiltIn(id string) bool {
	return builtIns[id]
}

// BundleOrder linearizes the modules reachable from entries depth-first,
// pre-order, following each dependency list in recorded order. Built-ins
// and excluded IDs are skipped along with everything only they reach.
// Cycles end at the first already-emitted module.
func BundleOrder(g *DependencyGraph, entries []string, exclude []string) []string {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	emitted := make(map[string]bool)
	var out []string
	stack := append([]string(nil), entries...)
	for len(stack) > 0 {
		id := stack[0]
		stack = stack[1:]
		if emitted[id] || IsBuiltIn(id) || excluded[id] {
			continue
		}
		emitted[id] = true
		out = append(out, id)

		if deps := g.edges[id]; len(deps) > 0 {
			next := make([]string, 0, len(deps)+len(stack))
			next = append(next, deps...)
			stack = append(next, stack...)
		}
	}
	return out
}
