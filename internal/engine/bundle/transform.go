// Package bundle rewrites module sources into uniformly named AMD
// definitions and concatenates them into a bundle with a source map.
package bundle

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"amdpack/internal/engine/amdconfig"
	"amdpack/internal/engine/resolver"
	"amdpack/internal/engine/sourcemap"
)

var (
	defineCall = regexp.MustCompile(`\bdefine\s*\(`)
	namedCall  = regexp.MustCompile(`\bdefine\s*\(\s*['"]`)
)

// Kind is the shape of a module source, which decides its rewrite.
type Kind int

const (
	KindText Kind = iota
	KindNamed
	KindShimmed
	KindNonAMD
	KindAnonymous
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNamed:
		return "named"
	case KindShimmed:
		return "shimmed"
	case KindNonAMD:
		return "non-amd"
	default:
		return "anonymous"
	}
}

// chunk is a piece of transformed output. Mapped chunks are copied from the
// original source starting at line/col.
type chunk struct {
	text   string
	mapped bool
	line   int
	col    int
}

// Transformed is one module rewritten for concatenation.
type Transformed struct {
	ID          string
	Path        string
	Kind        Kind
	Source      string
	InvalidShim bool
	chunks      []chunk
}

// Code returns the rewritten module text.
func (t Transformed) Code() string {
	var sb strings.Builder
	for _, c := range t.chunks {
		sb.WriteString(c.text)
	}
	return sb.String()
}

func (t Transformed) writeTo(b *sourcemap.Builder, source int) {
	for _, c := range t.chunks {
		if c.mapped {
			b.AppendMapped(c.text, source, c.line, c.col)
			continue
		}
		b.Append(c.text)
	}
}

// IsAMDWithDefine reports whether source calls define anywhere.
func IsAMDWithDefine(source string) bool {
	return defineCall.MatchString(source)
}

// IsNamedAMD reports whether a define call passes a string literal ID first.
func IsNamedAMD(source string) bool {
	return namedCall.MatchString(source)
}

// Transform classifies source and rewrites it so that it defines id. A
// module with a define call and a shim is flagged InvalidShim; the shim is
// ignored for it.
func Transform(id string, resolved resolver.ResolvedModule, source string, cfg *amdconfig.LoaderConfig) Transformed {
	shim, hasShim := cfg.ShimFor(id)
	hasDefine := IsAMDWithDefine(source)
	out := Transformed{
		ID:          id,
		Path:        resolved.ModulePath,
		Source:      source,
		InvalidShim: hasDefine && hasShim,
	}

	switch {
	case resolved.PluginID == resolver.PluginText:
		out.Kind = KindText
		out.chunks = wrapText(id, source)
	case IsNamedAMD(source):
		out.Kind = KindNamed
		out.chunks = []chunk{{text: source, mapped: true}}
	case !hasDefine && hasShim:
		out.Kind = KindShimmed
		out.chunks = wrapShimmed(id, source, shim)
	case !hasDefine:
		out.Kind = KindNonAMD
		out.chunks = wrapNonShimmed(id, source)
	default:
		out.Kind = KindAnonymous
		out.chunks = rename(id, source)
	}
	return out
}

// wrapText turns a text resource into a module returning its content.
func wrapText(id, source string) []chunk {
	return []chunk{
		{text: "define(" + quote(id) + ", function() {\n    return "},
		{text: quote(source), mapped: true},
		{text: ";\n});"},
	}
}

// wrapShimmed runs a non-AMD module inside a closure and returns its
// configured export from the global scope.
func wrapShimmed(id, source string, shim amdconfig.Shim) []chunk {
	deps := shim.Deps
	if deps == nil {
		deps = []string{}
	}
	depList, _ := json.Marshal(deps)

	var after strings.Builder
	after.WriteString("\n    })();\n")
	if shim.Exports != "" {
		after.WriteString("    return window[" + quote(shim.Exports) + "];\n")
	}
	after.WriteString("});")

	return []chunk{
		{text: "define(" + quote(id) + ", " + string(depList) + ", function() {\n    // Shimmed by amdpack\n    (function() {\n"},
		{text: source, mapped: true},
		{text: after.String()},
	}
}

// wrapNonShimmed registers an empty module under id so the loader does not
// fetch it, and leaves the original code in the top-level scope it expects.
func wrapNonShimmed(id, source string) []chunk {
	stub := "define(" + quote(id) + ", function() {\n" +
		"    // amdpack stub for non-AMD module (no shim config was found for this module)\n" +
		"});\n" +
		"// Original code for non-AMD module " + id + "\n"
	return []chunk{
		{text: stub},
		{text: source, mapped: true},
	}
}

// rename inserts id as the first argument of the first define call.
func rename(id, source string) []chunk {
	loc := defineCall.FindStringIndex(source)
	if loc == nil {
		return []chunk{{text: source, mapped: true}}
	}
	at := loc[1]
	line, col := sourcemap.Offset(source[:at])
	return []chunk{
		{text: source[:at], mapped: true},
		{text: quote(id) + ", "},
		{text: source[at:], mapped: true, line: line, col: col},
	}
}

// quote renders s as a double-quoted JavaScript string literal.
func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return `""`
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
