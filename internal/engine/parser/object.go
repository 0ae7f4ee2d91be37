package parser

import (
	"errors"
	"regexp"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

var (
	errNotObject = errors.New("unable to parse object expression")
	errPartial   = errors.New("object expression recovered from syntax errors")
)

var openingBrace = regexp.MustCompile(`^\s*\{`)

// withObjectLiteral parses input as a single object literal expression and
// hands the object node to fn while the tree is alive. When the tree holds
// syntax errors the recovered members are still visited and errPartial is
// returned.
func (x *Extractor) withObjectLiteral(input string, fn func(ctx *ExtractionContext, obj *sitter.Node) error) error {
	if openingBrace.MatchString(input) {
		input = "(" + input + ")"
	}
	source := []byte(input)
	tree := x.js.Parse(source)
	if tree == nil {
		return errNotObject
	}
	defer tree.Close()

	root := tree.RootNode()
	obj := firstObjectExpression(root)
	if obj == nil {
		return errNotObject
	}
	if err := fn(&ExtractionContext{Source: source}, obj); err != nil {
		return err
	}
	if root.HasError() {
		return errPartial
	}
	return nil
}

func firstObjectExpression(root *sitter.Node) *sitter.Node {
	for i := uint(0); i < root.NamedChildCount(); i++ {
		stmt := root.NamedChild(i)
		if stmt.Kind() == "comment" {
			continue
		}
		if stmt.Kind() != "expression_statement" {
			return nil
		}
		expr := stmt.NamedChild(0)
		for expr != nil && expr.Kind() == "parenthesized_expression" {
			expr = expr.NamedChild(0)
		}
		if expr != nil && expr.Kind() == "object" {
			return expr
		}
		return nil
	}
	return nil
}

// objectPair is one key/value member of an object literal.
type objectPair struct {
	key     string
	keyIsID bool
	value   *sitter.Node
	hasKey  bool
}

func objectPairs(ctx *ExtractionContext, obj *sitter.Node) []objectPair {
	out := make([]objectPair, 0, obj.NamedChildCount())
	for i := uint(0); i < obj.NamedChildCount(); i++ {
		member := obj.NamedChild(i)
		switch member.Kind() {
		case "pair":
			key := member.ChildByFieldName("key")
			pair := objectPair{value: member.ChildByFieldName("value")}
			if key != nil {
				switch key.Kind() {
				case "string":
					pair.key, pair.hasKey = stringLiteral(ctx, key)
				case "property_identifier":
					pair.key, pair.keyIsID, pair.hasKey = ctx.Text(key), true, true
				}
			}
			out = append(out, pair)
		case "shorthand_property_identifier":
			out = append(out, objectPair{key: ctx.Text(member), keyIsID: true, hasKey: true})
		case "method_definition":
			name := member.ChildByFieldName("name")
			pair := objectPair{}
			if name != nil && name.Kind() == "property_identifier" {
				pair.key, pair.keyIsID, pair.hasKey = ctx.Text(name), true, true
			}
			out = append(out, pair)
		}
	}
	return out
}

// propertyNames returns the statically known keys of an object literal.
func propertyNames(ctx *ExtractionContext, obj *sitter.Node) []string {
	var keys []string
	for _, pair := range objectPairs(ctx, obj) {
		if pair.hasKey {
			keys = append(keys, pair.key)
		}
	}
	return keys
}

// ObjectKeys parses input as an object literal and returns its literal keys.
func (x *Extractor) ObjectKeys(input string) ([]string, error) {
	var keys []string
	err := x.withObjectLiteral(input, func(ctx *ExtractionContext, obj *sitter.Node) error {
		keys = propertyNames(ctx, obj)
		return nil
	})
	return keys, err
}
