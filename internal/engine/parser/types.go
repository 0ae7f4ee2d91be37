// Package parser statically extracts AMD dependency lists from JavaScript
// sources and from markup templates.
package parser

// ParserResult is the common output of every extractor. IncompleteAnalysis
// signals that some dependency could not be read as a literal; the literal
// deps that were found are still valid.
type ParserResult struct {
	Deps               []string
	IncompleteAnalysis bool
}

// Mode selects how tolerant a JavaScript parse is.
type Mode int

const (
	// Strict rejects syntax trees with errors and retries in Loose mode.
	Strict Mode = iota
	// Loose masks template interpolations and extracts from whatever the
	// error-tolerant tree recovered.
	Loose
)

func (m Mode) String() string {
	if m == Loose {
		return "loose"
	}
	return "strict"
}

// depSet collects deps in first-seen order without duplicates.
type depSet struct {
	seen       map[string]bool
	deps       []string
	incomplete bool
}

func newDepSet() *depSet {
	return &depSet{seen: make(map[string]bool)}
}

func (s *depSet) add(deps ...string) {
	for _, dep := range deps {
		if s.seen[dep] {
			continue
		}
		s.seen[dep] = true
		s.deps = append(s.deps, dep)
	}
}

func (s *depSet) merge(r ParserResult) {
	s.add(r.Deps...)
	if r.IncompleteAnalysis {
		s.incomplete = true
	}
}

func (s *depSet) result() ParserResult {
	deps := s.deps
	if deps == nil {
		deps = []string{}
	}
	return ParserResult{Deps: deps, IncompleteAnalysis: s.incomplete}
}
