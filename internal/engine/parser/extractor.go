package parser

import (
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_html "github.com/tree-sitter/tree-sitter-html/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
)

var (
	grammarsOnce sync.Once
	jsLanguage   *sitter.Language
	htmlLanguage *sitter.Language
)

func loadGrammars() {
	grammarsOnce.Do(func() {
		jsLanguage = sitter.NewLanguage(tree_sitter_javascript.Language())
		htmlLanguage = sitter.NewLanguage(tree_sitter_html.Language())
	})
}

// Extractor owns the parser pools for both extractors. It is safe for
// concurrent use and is meant to be shared across themes.
type Extractor struct {
	js   *ParserPool
	html *ParserPool
}

func NewExtractor() *Extractor {
	loadGrammars()
	return &Extractor{
		js:   NewParserPool(jsLanguage),
		html: NewParserPool(htmlLanguage),
	}
}
