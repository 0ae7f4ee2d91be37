package ports

import (
	"context"
	"time"
)

// FileReader is the minimal read interface the pipeline consumes.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
	Exists(path string) bool
}

// FileWriter persists generated artifacts.
type FileWriter interface {
	WriteFile(path string, data []byte) error
}

// MinifyRequest is one independent unit of minification work.
type MinifyRequest struct {
	Code     string
	Filename string
	// SourceMap is the input map to chain, if any.
	SourceMap []byte
}

// MinifyResult carries minified code and its source map.
type MinifyResult struct {
	Code string
	Map  []byte
}

// Minifier minifies a single artifact. Implementations must leave the
// identifier `require` untouched.
type Minifier interface {
	Minify(ctx context.Context, req MinifyRequest) (MinifyResult, error)
	Close() error
}

// TaskEnd finishes a task started with Reporter.Start.
type TaskEnd func(message string)

// Reporter receives progress for long-running, per-theme steps.
type Reporter interface {
	Start(themeID, message string) TaskEnd
	Warn(themeID, message string)
}

// NopReporter discards progress.
type NopReporter struct{}

func (NopReporter) Start(string, string) TaskEnd { return func(string) {} }
func (NopReporter) Warn(string, string)          {}

// Clock returns the current time; injected so generated headers are testable.
type Clock func() time.Time
