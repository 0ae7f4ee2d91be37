// Package sourcemap builds version 3 source maps incrementally while a
// generated file is assembled from pieces of original sources.
package sourcemap

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Map is the serialized form of a version 3 source map.
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// Builder tracks the generated position as text is appended. Segments are
// encoded as they are added, so cost grows with the output, not with the
// number of contributing sources. Columns count UTF-16 code units.
type Builder struct {
	file     string
	sources  []string
	contents []string
	mappings strings.Builder

	genCol         int
	lineHasSegment bool

	prevGenCol  int
	prevSource  int
	prevSrcLine int
	prevSrcCol  int
}

func NewBuilder(file string) *Builder {
	return &Builder{file: file}
}

// AddSource registers an original file and returns its index.
func (b *Builder) AddSource(name, content string) int {
	b.sources = append(b.sources, name)
	b.contents = append(b.contents, content)
	return len(b.sources) - 1
}

// Append adds generated text that maps to no original position.
func (b *Builder) Append(text string) {
	b.advance(text)
}

// AppendMapped adds text copied from source, starting at line and col
// (zero-based) of that source. The start of the text and the start of each
// following line get a segment.
func (b *Builder) AppendMapped(text string, source, line, col int) {
	for len(text) > 0 {
		chunk := text
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			chunk = text[:i+1]
		}
		text = text[len(chunk):]
		if chunk != "\n" {
			b.addSegment(source, line, col)
		}
		b.advance(chunk)
		line++
		col = 0
	}
}

func (b *Builder) addSegment(source, line, col int) {
	if b.lineHasSegment {
		b.mappings.WriteByte(',')
	}
	writeVLQ(&b.mappings, b.genCol-b.prevGenCol)
	writeVLQ(&b.mappings, source-b.prevSource)
	writeVLQ(&b.mappings, line-b.prevSrcLine)
	writeVLQ(&b.mappings, col-b.prevSrcCol)

	b.prevGenCol = b.genCol
	b.prevSource = source
	b.prevSrcLine = line
	b.prevSrcCol = col
	b.lineHasSegment = true
}

func (b *Builder) advance(text string) {
	for len(text) > 0 {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			b.genCol += utf16Len(text)
			return
		}
		b.genCol += utf16Len(text[:i])
		b.mappings.WriteByte(';')
		b.genCol = 0
		b.prevGenCol = 0
		b.lineHasSegment = false
		text = text[i+1:]
	}
}

// Map returns the map built so far.
func (b *Builder) Map() Map {
	return Map{
		Version:        3,
		File:           b.file,
		Sources:        append([]string{}, b.sources...),
		SourcesContent: append([]string{}, b.contents...),
		Names:          []string{},
		Mappings:       b.mappings.String(),
	}
}

// JSON returns the encoded map built so far.
func (b *Builder) JSON() ([]byte, error) {
	return json.Marshal(b.Map())
}

// Offset returns the zero-based line and UTF-16 column just past text.
func Offset(text string) (line, col int) {
	last := strings.LastIndexByte(text, '\n')
	line = strings.Count(text, "\n")
	return line, utf16Len(text[last+1:])
}

func utf16Len(s string) int {
	n := 0
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
