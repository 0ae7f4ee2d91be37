package graph

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"amdpack/internal/engine/amdconfig"
	"amdpack/internal/engine/parser"
	"amdpack/internal/engine/resolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "/static/frontend/Vendor/theme/en_US"

type mapReader map[string]string

func (m mapReader) ReadFile(path string) ([]byte, error) {
	if s, ok := m[path]; ok {
		return []byte(s), nil
	}
	return nil, os.ErrNotExist
}

func (m mapReader) Exists(path string) bool {
	_, ok := m[path]
	return ok
}

// listExtractor treats a source as a comma separated dependency list.
type listExtractor struct{}

func (listExtractor) JavaScriptDeps(source []byte, _ parser.Mode) parser.ParserResult {
	deps := []string{}
	for _, dep := range strings.Split(string(source), ",") {
		if dep = strings.TrimSpace(dep); dep != "" {
			deps = append(deps, dep)
		}
	}
	return parser.ParserResult{Deps: deps}
}

func files(sources map[string]string) mapReader {
	out := make(mapReader, len(sources))
	for rel, src := range sources {
		out[filepath.Join(base, rel)] = src
	}
	return out
}

func trace(t *testing.T, cfg *amdconfig.LoaderConfig, reader mapReader, entries ...string) TraceResult {
	t.Helper()
	if cfg == nil {
		cfg = &amdconfig.LoaderConfig{}
	}
	tracer := NewTracer(reader, listExtractor{}, resolver.New(cfg), cfg, TracerOptions{BaseDir: base, ReadConcurrency: 2})
	result, err := tracer.Trace(context.Background(), entries)
	require.NoError(t, err)
	return result
}

func TestTraceBreadthFirst(t *testing.T) {
	result := trace(t, nil, files(map[string]string{
		"a.js": "b, c",
		"b.js": "d",
		"c.js": "d, require, exports",
		"d.js": "",
	}), "a")

	assert.Equal(t, []string{"a"}, result.ResolvedEntryIDs)
	assert.Equal(t, []string{"a", "b", "c", "d"}, result.Graph.IDs())
	assert.Equal(t, []string{"b", "c"}, result.Graph.Deps("a"))
	assert.Equal(t, []string{"d", "require", "exports"}, result.Graph.Deps("c"))
	assert.False(t, result.Graph.Has("require"), "built-ins are never queued")
	assert.Empty(t, result.Warnings)
}

func TestTraceUnreadableDependencies(t *testing.T) {
	result := trace(t, nil, files(map[string]string{
		"a.js": "gone",
	}), "a", "missing")

	require.Len(t, result.Warnings, 2)
	assert.Equal(t, UnreadableDependencyWarning{
		ResolvedID: "missing",
		Path:       filepath.Join(base, "missing.js"),
		Issuer:     EntryIssuer,
	}, result.Warnings[0])
	assert.Equal(t, UnreadableDependencyWarning{
		ResolvedID: "gone",
		Path:       filepath.Join(base, "gone.js"),
		Issuer:     "a",
	}, result.Warnings[1])
	assert.Equal(t, []string{"gone"}, result.Graph.Deps("a"))
}

func TestTracePlugins(t *testing.T) {
	result := trace(t, nil, files(map[string]string{
		"a.js":          "text!tpl/view.html, domReady!",
		"text.js":       "",
		"tpl/view.html": "never read",
	}), "a")

	assert.Equal(t, []string{"text!tpl/view.html", "text", "domReady"}, result.Graph.Deps("a"))
	assert.True(t, result.Graph.Has("text!tpl/view.html"))
	assert.Empty(t, result.Graph.Deps("text!tpl/view.html"))
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "domReady", result.Warnings[0].ResolvedID)
	assert.Equal(t, "a", result.Warnings[0].Issuer)
}

func TestTraceEntryWithPlugin(t *testing.T) {
	result := trace(t, nil, files(map[string]string{
		"text.js": "",
	}), "text!tpl/view.html")

	assert.Equal(t, []string{"text!tpl/view.html"}, result.ResolvedEntryIDs)
	assert.Equal(t, []string{"text!tpl/view.html", "text"}, result.Graph.IDs())
	assert.Empty(t, result.Warnings)
}

func TestTraceCycle(t *testing.T) {
	result := trace(t, nil, files(map[string]string{
		"a.js": "b",
		"b.js": "a",
	}), "a")

	assert.Equal(t, []string{"b"}, result.Graph.Deps("a"))
	assert.Equal(t, []string{"a"}, result.Graph.Deps("b"))
	assert.Equal(t, 2, result.Graph.Len())
}

func TestTraceIsIdempotent(t *testing.T) {
	reader := files(map[string]string{
		"a.js": "e, b, c",
		"b.js": "d, c",
		"c.js": "d, a",
		"d.js": "e",
		"e.js": "",
	})

	first, err := json.Marshal(trace(t, nil, reader, "a", "d").Graph)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(trace(t, nil, reader, "a", "d").Graph)
		require.NoError(t, err)
		assert.JSONEq(t, string(first), string(again))
		assert.Equal(t, string(first), string(again))
	}
}

func TestTraceMixinsComeFirst(t *testing.T) {
	cfg, err := amdconfig.Interpret(`require.config({
    config: { mixins: { "a": { "a-mixin": true, "disabled-mixin": false } } }
});`, amdconfig.Options{})
	require.NoError(t, err)

	result := trace(t, cfg, files(map[string]string{
		"a.js":       "b",
		"b.js":       "",
		"a-mixin.js": "",
	}), "a")

	assert.Equal(t, []string{"a-mixin", "b"}, result.Graph.Deps("a"))
	assert.False(t, result.Graph.Has("disabled-mixin"))
	assert.Empty(t, result.Warnings)
}

func TestTraceUsesPaths(t *testing.T) {
	cfg, err := amdconfig.Interpret(`require.config({ paths: { "jquery": "lib/jquery/jquery" } });`, amdconfig.Options{})
	require.NoError(t, err)

	result := trace(t, cfg, files(map[string]string{
		"a.js":                 "jquery",
		"lib/jquery/jquery.js": "",
	}), "a")

	assert.Equal(t, []string{"jquery"}, result.Graph.Deps("a"))
	assert.Empty(t, result.Warnings)
}

// Every dependency of a readable module ends up as an edge.
func TestTraceKeepsEveryDiscoveredEdge(t *testing.T) {
	reader := files(map[string]string{
		"a.js": "b, c, d",
		"b.js": "c, x",
		"c.js": "y",
	})
	result := trace(t, nil, reader, "a")

	warned := make(map[string]bool)
	for _, w := range result.Warnings {
		warned[w.ResolvedID] = true
	}
	for _, id := range result.Graph.IDs() {
		src, ok := reader[filepath.Join(base, id+".js")]
		if !ok {
			assert.True(t, warned[id], "expected warning for %s", id)
			continue
		}
		deps := listExtractor{}.JavaScriptDeps([]byte(src), parser.Strict).Deps
		assert.Equal(t, deps, result.Graph.Deps(id))
	}
}

func TestTraceWithJavaScriptExtractor(t *testing.T) {
	reader := files(map[string]string{
		"app.js":     `define(["./util", "jquery"], function(util, $) { return {}; });`,
		"util.js":    `define(function(require) { var dom = require("lib/dom"); return dom; });`,
		"jquery.js":  `(function(){ window.jQuery = {}; })();`,
		"lib/dom.js": `define([], function() {});`,
	})
	cfg := &amdconfig.LoaderConfig{}
	tracer := NewTracer(reader, parser.NewExtractor(), resolver.New(cfg), cfg, TracerOptions{BaseDir: base})
	traced, err := tracer.Trace(context.Background(), []string{"app"})
	require.NoError(t, err)

	assert.Equal(t, []string{"util", "jquery"}, traced.Graph.Deps("app"))
	assert.Equal(t, []string{"lib/dom"}, traced.Graph.Deps("util"))
	assert.Empty(t, traced.Warnings)
}

func TestTraceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &amdconfig.LoaderConfig{}
	tracer := NewTracer(files(map[string]string{"a.js": ""}), listExtractor{}, resolver.New(cfg), cfg, TracerOptions{BaseDir: base})
	_, err := tracer.Trace(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}
