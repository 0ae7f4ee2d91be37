package sourcemap

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteVLQ(t *testing.T) {
	tests := []struct {
		value int
		want  string
	}{
		{0, "A"},
		{1, "C"},
		{-1, "D"},
		{15, "e"},
		{16, "gB"},
		{123, "2H"},
		{-17, "jB"},
	}
	for _, tt := range tests {
		var sb strings.Builder
		writeVLQ(&sb, tt.value)
		assert.Equal(t, tt.want, sb.String(), "value %d", tt.value)
	}
}

func TestBuilderMapsEachLine(t *testing.T) {
	b := NewBuilder("bundle.js")
	src := b.AddSource("../a.js", "a\nb")
	b.Append("X\n")
	b.AppendMapped("a\nb", src, 0, 0)

	m := b.Map()
	assert.Equal(t, 3, m.Version)
	assert.Equal(t, "bundle.js", m.File)
	assert.Equal(t, []string{"../a.js"}, m.Sources)
	assert.Equal(t, []string{"a\nb"}, m.SourcesContent)
	assert.Equal(t, ";AAAA;AACA", m.Mappings)
}

func TestBuilderSegmentsAfterInsertedText(t *testing.T) {
	b := NewBuilder("")
	src := b.AddSource("m.js", "define([])")
	b.AppendMapped("define(", src, 0, 0)
	b.Append(`"id", `)
	b.AppendMapped("[])", src, 0, 7)

	// (0,0)->(0,0,0) then genCol 13 -> srcCol 7
	assert.Equal(t, "AAAA,aAAO", b.Map().Mappings)
}

func TestBuilderMultipleSources(t *testing.T) {
	b := NewBuilder("out.js")
	first := b.AddSource("a.js", "a")
	second := b.AddSource("b.js", "b")
	b.AppendMapped("a\n", first, 0, 0)
	b.AppendMapped("b", second, 0, 0)

	raw, err := b.JSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "AAAA;ACAA", decoded["mappings"])
	assert.Equal(t, []interface{}{}, decoded["names"])
}

func TestBuilderSkipsEmptyLines(t *testing.T) {
	b := NewBuilder("")
	src := b.AddSource("a.js", "x\n\ny")
	b.AppendMapped("x\n\ny", src, 0, 0)
	assert.Equal(t, "AAAA;;AAEA", b.Map().Mappings)
}

func TestOffset(t *testing.T) {
	line, col := Offset("ab\ncd")
	assert.Equal(t, 1, line)
	assert.Equal(t, 2, col)

	line, col = Offset("")
	assert.Equal(t, 0, line)
	assert.Equal(t, 0, col)

	// Astral characters take two UTF-16 units.
	_, col = Offset("x😀")
	assert.Equal(t, 3, col)
}
