package parser

import (
	"errors"
	"html"
	"regexp"
	"strings"
	"time"

	"amdpack/internal/shared/observability"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// interpolation matches server-side template tags, which are replaced
// before parsing so they cannot break markup or script syntax.
var interpolation = regexp.MustCompile(`<\?(?:=|php)[\s\S]+?\?>`)

const interpolationPlaceholder = "PHP_DELIM_PLACEHOLDER"

const (
	scriptTypeJavaScript = "text/javascript"
	scriptTypeMageInit   = "text/x-magento-init"
)

var errNoMageInit = errors.New(`could not locate "mageInit" property`)

func maskInterpolations(source []byte) []byte {
	return interpolation.ReplaceAll(source, []byte(interpolationPlaceholder))
}

// TemplateDeps collects deps from a markup template:
//   - data-mage-init attributes (object keys)
//   - mageInit inside data-bind attributes (object keys)
//   - text/x-magento-init script bodies (keys of each selector's object)
//   - inline JavaScript script bodies, parsed in Loose mode
//
// Segments that cannot be analyzed set IncompleteAnalysis.
func (x *Extractor) TemplateDeps(source []byte) ParserResult {
	start := time.Now()
	defer func() {
		observability.ParsingDuration.WithLabelValues("template").Observe(time.Since(start).Seconds())
	}()

	source = maskInterpolations(source)
	set := newDepSet()

	tree := x.html.Parse(source)
	if tree == nil {
		set.incomplete = true
		return set.result()
	}
	defer tree.Close()

	tagHandler := func(ctx *ExtractionContext, node *sitter.Node) bool {
		attrs := tagAttributes(ctx, node)
		if value, ok := attrs["data-mage-init"]; ok && value != "" {
			keys, err := x.ObjectKeys(value)
			if err != nil {
				set.incomplete = true
			}
			set.add(keys...)
		}
		if value, ok := attrs["data-bind"]; ok && strings.Contains(value, "mageInit") {
			keys, err := x.mageInitKeys(value)
			if err != nil {
				set.incomplete = true
			}
			set.add(keys...)
		}
		return true
	}

	engine := NewExtractorEngine(map[string]NodeHandler{
		"start_tag":        tagHandler,
		"self_closing_tag": tagHandler,
		"script_element": func(ctx *ExtractionContext, node *sitter.Node) bool {
			var body string
			scriptType := scriptTypeJavaScript
			for i := uint(0); i < node.NamedChildCount(); i++ {
				child := node.NamedChild(i)
				switch child.Kind() {
				case "start_tag":
					tagHandler(ctx, child)
					if t, ok := tagAttributes(ctx, child)["type"]; ok {
						scriptType = strings.ToLower(strings.TrimSpace(t))
					}
				case "raw_text":
					body = ctx.Text(child)
				}
			}
			if strings.TrimSpace(body) == "" {
				return true
			}
			switch scriptType {
			case scriptTypeJavaScript:
				set.merge(x.JavaScriptDeps([]byte(body), Loose))
			case scriptTypeMageInit:
				keys, err := x.mageInitScriptKeys(body)
				if err != nil {
					set.incomplete = true
				}
				set.add(keys...)
			}
			return true
		},
	})
	engine.Walk(&ExtractionContext{Source: source, Deps: set}, tree.RootNode())
	return set.result()
}

// tagAttributes returns lowercased attribute names mapped to entity-decoded values.
func tagAttributes(ctx *ExtractionContext, tag *sitter.Node) map[string]string {
	attrs := make(map[string]string)
	for i := uint(0); i < tag.NamedChildCount(); i++ {
		attr := tag.NamedChild(i)
		if attr.Kind() != "attribute" {
			continue
		}
		var name, value string
		for j := uint(0); j < attr.NamedChildCount(); j++ {
			part := attr.NamedChild(j)
			switch part.Kind() {
			case "attribute_name":
				name = strings.ToLower(ctx.Text(part))
			case "attribute_value":
				value = ctx.Text(part)
			case "quoted_attribute_value":
				if inner := part.NamedChild(0); inner != nil {
					value = ctx.Text(inner)
				}
			}
		}
		if name == "" {
			continue
		}
		if _, seen := attrs[name]; !seen {
			attrs[name] = html.UnescapeString(value)
		}
	}
	return attrs
}

// mageInitKeys reads the mageInit member of a knockout binding string, which
// is an object literal without its outer braces.
func (x *Extractor) mageInitKeys(binding string) ([]string, error) {
	var keys []string
	err := x.withObjectLiteral("{"+binding+"}", func(ctx *ExtractionContext, obj *sitter.Node) error {
		for _, pair := range objectPairs(ctx, obj) {
			if !pair.keyIsID || pair.key != "mageInit" {
				continue
			}
			if pair.value == nil || pair.value.Kind() != "object" {
				return errNotObject
			}
			keys = propertyNames(ctx, pair.value)
			return nil
		}
		return errNoMageInit
	})
	return keys, err
}

// mageInitScriptKeys reads a text/x-magento-init body: selectors mapped to
// objects whose keys are deps.
func (x *Extractor) mageInitScriptKeys(body string) ([]string, error) {
	var keys []string
	err := x.withObjectLiteral(body, func(ctx *ExtractionContext, obj *sitter.Node) error {
		var failed error
		for _, selector := range objectPairs(ctx, obj) {
			if selector.value == nil || selector.value.Kind() != "object" {
				failed = errNotObject
				continue
			}
			keys = append(keys, propertyNames(ctx, selector.value)...)
		}
		return failed
	})
	return keys, err
}
