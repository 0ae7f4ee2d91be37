package minify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"amdpack/internal/core/ports"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bundleSource = `/* Generated */

define("a", ["require"], function (require) {
    var dep = require("b");
    return   dep;
});`

func TestMinifyKeepsRequire(t *testing.T) {
	out, err := Minify(ports.MinifyRequest{Code: bundleSource, Filename: "core-bundle.js"}, api.ES2015)
	require.NoError(t, err)

	assert.Contains(t, out.Code, `define("a",["require"],function(require){`)
	assert.Contains(t, out.Code, `require("b")`)
	assert.Less(t, len(out.Code), len(bundleSource)+len("\n//# sourceMappingURL=core-bundle.js.map"))
	assert.True(t, strings.HasSuffix(out.Code, "\n//# sourceMappingURL=core-bundle.js.map"))

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Map, &m))
	assert.EqualValues(t, 3, m["version"])
}

func TestMinifyChainsInputMap(t *testing.T) {
	input := `{"version":3,"sources":["../a.js"],"sourcesContent":["define([],function(){})"],"names":[],"mappings":"AAAA"}`
	out, err := Minify(ports.MinifyRequest{
		Code:      `define("a", [], function() {});`,
		Filename:  "core-bundle.js",
		SourceMap: []byte(input),
	}, api.ES2015)
	require.NoError(t, err)

	var m struct {
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(out.Map, &m))
	assert.Contains(t, m.Sources, "../a.js")
	assert.NotContains(t, out.Code, "base64")
}

func TestMinifySyntaxError(t *testing.T) {
	_, err := Minify(ports.MinifyRequest{Code: "define(", Filename: "broken.js"}, api.ES2015)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.js")
}

func TestPoolMinifiesConcurrently(t *testing.T) {
	p := NewPool(3, api.ES2015)
	defer p.Close()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Minify(context.Background(), ports.MinifyRequest{Code: bundleSource, Filename: "b.js"})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestPoolClosed(t *testing.T) {
	p := NewPool(1, api.ES2015)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.Minify(context.Background(), ports.MinifyRequest{Code: "x", Filename: "x.js"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPassthrough(t *testing.T) {
	out, err := Passthrough{}.Minify(context.Background(), ports.MinifyRequest{
		Code:      "define(\"a\", []);\n",
		Filename:  "balerbundles/core-bundle.js",
		SourceMap: []byte(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "define(\"a\", []);\n//# sourceMappingURL=core-bundle.js.map", out.Code)
	assert.Equal(t, []byte(`{}`), out.Map)
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("ES2020")
	require.NoError(t, err)
	assert.Equal(t, api.ES2020, target)

	target, err = ParseTarget("")
	require.NoError(t, err)
	assert.Equal(t, api.ES2015, target)

	_, err = ParseTarget("es1999")
	assert.Error(t, err)
}
