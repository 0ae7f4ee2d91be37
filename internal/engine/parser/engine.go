package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeHandler processes a node. Returning true skips the node's children.
type NodeHandler func(ctx *ExtractionContext, node *sitter.Node) bool

// ExtractionContext carries the source and the deps collected so far.
type ExtractionContext struct {
	Source []byte
	Deps   *depSet
	// DefineDepth counts enclosing define(...) calls.
	DefineDepth int
}

// ExtractorEngine walks a syntax tree and dispatches handlers by node kind.
type ExtractorEngine struct {
	handlers map[string]NodeHandler
	// leave runs after a node's children have been walked.
	leave map[string]func(ctx *ExtractionContext, node *sitter.Node)
}

func NewExtractorEngine(handlers map[string]NodeHandler) *ExtractorEngine {
	return &ExtractorEngine{handlers: handlers}
}

func (e *ExtractorEngine) Walk(ctx *ExtractionContext, node *sitter.Node) {
	if node == nil {
		return
	}

	stop := false
	if handler, ok := e.handlers[node.Kind()]; ok {
		stop = handler(ctx, node)
	}
	if !stop {
		for i := uint(0); i < node.ChildCount(); i++ {
			e.Walk(ctx, node.Child(i))
		}
	}
	if fn, ok := e.leave[node.Kind()]; ok {
		fn(ctx, node)
	}
}

func (c *ExtractionContext) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(c.Source[node.StartByte():node.EndByte()])
}

// namedArgs returns the non-comment named children of an arguments or array node.
func namedArgs(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}
