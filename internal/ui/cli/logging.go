package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// fanoutHandler hands every record to each handler that accepts its level.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: next}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return fanoutHandler{handlers: next}
}

// configureLogging installs the default logger. The console gets Info, or
// Debug when verbose; a trace file always gets Debug. In UI mode the console
// only shows warnings so log lines do not tear the progress display.
func configureLogging(console io.Writer, verbose, uiMode bool, traceFile string) (func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if uiMode && !verbose {
		level = slog.LevelWarn
	}

	handlers := []slog.Handler{slog.NewTextHandler(console, &slog.HandlerOptions{Level: level})}
	closeFn := func() {}
	if traceFile != "" {
		if err := os.MkdirAll(filepath.Dir(traceFile), 0o755); err != nil {
			return nil, fmt.Errorf("create trace file dir: %w", err)
		}
		f, err := os.OpenFile(traceFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		closeFn = func() { _ = f.Close() }
	}

	slog.SetDefault(slog.New(fanoutHandler{handlers: handlers}))
	return closeFn, nil
}
