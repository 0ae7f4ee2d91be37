package parser

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"amdpack/internal/shared/observability"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// JavaScriptDeps collects the deps declared by define([...]) and
// define("id", [...]) calls, require([...]) calls, and synchronous
// require("id") calls nested inside a define. A Strict parse that fails falls
// back to Loose.
func (x *Extractor) JavaScriptDeps(source []byte, mode Mode) ParserResult {
	start := time.Now()
	defer func() {
		observability.ParsingDuration.WithLabelValues("javascript").Observe(time.Since(start).Seconds())
	}()

	if mode == Loose {
		source = maskInterpolations(source)
	}
	tree := x.js.Parse(source)
	if tree == nil {
		return ParserResult{Deps: []string{}, IncompleteAnalysis: true}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() && mode == Strict {
		return x.JavaScriptDeps(source, Loose)
	}

	defines := newDepSet()
	asyncs := newDepSet()
	syncs := newDepSet()
	ctx := &ExtractionContext{Source: source, Deps: defines}

	engine := &ExtractorEngine{
		handlers: map[string]NodeHandler{
			"call_expression": func(ctx *ExtractionContext, node *sitter.Node) bool {
				args := callArguments(node)
				switch calleeName(ctx, node) {
				case "define":
					ctx.DefineDepth++
					for i, arg := range args {
						if i > 1 {
							break
						}
						if arg.Kind() == "array" {
							defines.merge(arrayDeps(ctx, arg))
						}
					}
				case "require":
					if len(args) == 0 {
						break
					}
					first := args[0]
					if first.Kind() == "array" {
						asyncs.merge(arrayDeps(ctx, first))
					} else if ctx.DefineDepth > 0 && isLiteral(first) {
						if s, ok := stringLiteral(ctx, first); ok {
							syncs.add(s)
						} else {
							syncs.incomplete = true
						}
					}
				}
				return false
			},
		},
		leave: map[string]func(*ExtractionContext, *sitter.Node){
			"call_expression": func(ctx *ExtractionContext, node *sitter.Node) {
				if calleeName(ctx, node) == "define" {
					ctx.DefineDepth--
				}
			},
		},
	}
	engine.Walk(ctx, root)

	out := newDepSet()
	out.merge(defines.result())
	out.merge(asyncs.result())
	out.merge(syncs.result())
	if root.HasError() {
		out.incomplete = true
	}
	return out.result()
}

func calleeName(ctx *ExtractionContext, call *sitter.Node) string {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "identifier" {
		return ""
	}
	return ctx.Text(fn)
}

func callArguments(call *sitter.Node) []*sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.Kind() != "arguments" {
		return nil
	}
	return namedArgs(args)
}

// arrayDeps reads string elements; any other element marks the result incomplete.
func arrayDeps(ctx *ExtractionContext, array *sitter.Node) ParserResult {
	set := newDepSet()
	for _, el := range namedArgs(array) {
		if s, ok := stringLiteral(ctx, el); ok {
			set.deps = append(set.deps, s)
			continue
		}
		set.incomplete = true
	}
	return set.result()
}

func isLiteral(node *sitter.Node) bool {
	switch node.Kind() {
	case "string", "number", "true", "false", "null", "regex":
		return true
	}
	return false
}

// stringLiteral decodes a string node's value.
func stringLiteral(ctx *ExtractionContext, node *sitter.Node) (string, bool) {
	if node == nil || node.Kind() != "string" {
		return "", false
	}
	var b strings.Builder
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "string_fragment":
			b.WriteString(ctx.Text(child))
		case "escape_sequence":
			b.WriteString(decodeEscape(ctx.Text(child)))
		default:
			b.WriteString(ctx.Text(child))
		}
	}
	return b.String(), true
}

func decodeEscape(seq string) string {
	if len(seq) < 2 || seq[0] != '\\' {
		return seq
	}
	body := seq[1:]
	switch body[0] {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case 'b':
		return "\b"
	case 'f':
		return "\f"
	case 'v':
		return "\v"
	case '0':
		if len(body) == 1 {
			return "\x00"
		}
	case '\n', '\r':
		return ""
	case 'x':
		if v, err := strconv.ParseUint(body[1:], 16, 8); err == nil {
			return string(rune(v))
		}
	case 'u':
		hex := strings.TrimSuffix(strings.TrimPrefix(body[1:], "{"), "}")
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil && utf8.ValidRune(rune(v)) {
			return string(rune(v))
		}
	}
	return body
}
