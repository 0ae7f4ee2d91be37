package graph

import (
	"context"
	"log/slog"
	"path/filepath"

	"amdpack/internal/core/ports"
	"amdpack/internal/engine/amdconfig"
	"amdpack/internal/engine/parser"
	"amdpack/internal/engine/resolver"
	"amdpack/internal/shared/observability"
)

const (
	// EntryIssuer is the issuer recorded for modules requested by an entry point.
	EntryIssuer = "<entry point>"

	defaultReadConcurrency = 64
)

// UnreadableDependencyWarning records a traced module whose source could
// not be read. The runtime loader fetches such modules over the network.
type UnreadableDependencyWarning struct {
	ResolvedID string `json:"resolvedID"`
	Path       string `json:"path"`
	Issuer     string `json:"issuer"`
}

type TraceResult struct {
	Graph            *DependencyGraph
	Warnings         []UnreadableDependencyWarning
	ResolvedEntryIDs []string
}

// DepsExtractor reads the declared dependencies of a JavaScript source.
type DepsExtractor interface {
	JavaScriptDeps(source []byte, mode parser.Mode) parser.ParserResult
}

type TracerOptions struct {
	// BaseDir is joined with every resolved module path before reading.
	BaseDir string
	// ReadConcurrency bounds in-flight reads. Zero uses 64.
	ReadConcurrency int
	// Label names the trace in metrics and logs.
	Label string
}

// Tracer walks the module graph breadth-first from a set of entry points.
type Tracer struct {
	reader    ports.FileReader
	extractor DepsExtractor
	resolver  *resolver.Resolver
	config    *amdconfig.LoaderConfig
	opts      TracerOptions
}

func NewTracer(reader ports.FileReader, extractor DepsExtractor, res *resolver.Resolver, cfg *amdconfig.LoaderConfig, opts TracerOptions) *Tracer {
	if opts.ReadConcurrency <= 0 {
		opts.ReadConcurrency = defaultReadConcurrency
	}
	return &Tracer{
		reader:    reader,
		extractor: extractor,
		resolver:  res,
		config:    cfg,
		opts:      opts,
	}
}

type pendingRead struct {
	path   string
	issuer string
	done   chan struct{}
	data   []byte
	err    error
}

type traceState struct {
	ctx     context.Context
	t       *Tracer
	graph   *DependencyGraph
	pending map[string]*pendingRead
	queue   []string
	sem     chan struct{}
}

// Trace builds the dependency graph reachable from entryIDs. Reads start as
// soon as a module is queued; the graph is only mutated on this goroutine,
// in queue order, so edge order matches declaration order. Unreadable
// modules become warnings. The only error is ctx's.
func (t *Tracer) Trace(ctx context.Context, entryIDs []string) (TraceResult, error) {
	s := &traceState{
		ctx:     ctx,
		t:       t,
		graph:   NewDependencyGraph(),
		pending: make(map[string]*pendingRead),
		sem:     make(chan struct{}, t.opts.ReadConcurrency),
	}
	result := TraceResult{Graph: s.graph, Warnings: []UnreadableDependencyWarning{}, ResolvedEntryIDs: []string{}}

	for _, entry := range entryIDs {
		resolved := t.resolver.Resolve(entry, "")
		issuer := EntryIssuer
		if !resolved.Empty() {
			result.ResolvedEntryIDs = append(result.ResolvedEntryIDs, resolved.ModuleID)
			s.enqueue(resolved.ModuleID, resolved.ModulePath, EntryIssuer)
			issuer = resolved.ModuleID
		}
		if resolved.PluginID != "" {
			s.enqueue(resolved.PluginID, resolved.PluginPath, issuer)
		}
	}

	for len(s.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return TraceResult{}, err
		}
		id := s.queue[0]
		s.queue = s.queue[1:]
		read := s.pending[id]
		delete(s.pending, id)

		select {
		case <-read.done:
		case <-ctx.Done():
			return TraceResult{}, ctx.Err()
		}
		if read.err != nil {
			if ctx.Err() != nil {
				return TraceResult{}, ctx.Err()
			}
			slog.Debug("unreadable dependency", "id", id, "path", read.path, "issuer", read.issuer, "error", read.err)
			result.Warnings = append(result.Warnings, UnreadableDependencyWarning{
				ResolvedID: id,
				Path:       read.path,
				Issuer:     read.issuer,
			})
			observability.UnreadableDependencies.WithLabelValues(t.opts.Label).Inc()
			continue
		}
		observability.ModulesTraced.WithLabelValues(t.opts.Label).Inc()

		parsed := t.extractor.JavaScriptDeps(read.data, parser.Strict)
		if parsed.IncompleteAnalysis {
			slog.Debug("incomplete dependency analysis", "id", id, "path", read.path)
		}
		if len(parsed.Deps) > 0 {
			slog.Debug("discovered dependencies", "id", id, "deps", parsed.Deps)
		}

		for _, mixin := range t.config.MixinsFor(id) {
			resolved := t.resolver.Resolve(mixin, id)
			if resolved.Empty() {
				continue
			}
			s.graph.AddEdge(id, resolved.ModuleID)
			s.enqueue(resolved.ModuleID, resolved.ModulePath, id)
		}

		for _, dep := range parsed.Deps {
			if IsBuiltIn(dep) {
				s.graph.AddEdge(id, dep)
				continue
			}
			resolved := t.resolver.Resolve(dep, id)
			// A plugin without a resource, like "domReady!", has only a plugin ID.
			if !resolved.Empty() {
				s.graph.AddEdge(id, resolved.ModuleID)
				s.enqueue(resolved.ModuleID, resolved.ModulePath, id)
			}
			if resolved.PluginID != "" {
				s.graph.AddEdge(id, resolved.PluginID)
				issuer := resolved.ModuleID
				if issuer == "" {
					issuer = id
				}
				s.enqueue(resolved.PluginID, resolved.PluginPath, issuer)
			}
		}
	}

	slog.Debug("trace complete", "label", t.opts.Label, "modules", s.graph.Len(), "edges", s.graph.EdgeCount(), "warnings", len(result.Warnings))
	return result, nil
}

// enqueue creates the graph entry for id and, for JavaScript files, starts
// reading it. Already-known IDs are ignored.
func (s *traceState) enqueue(id, modulePath, issuer string) {
	if !s.graph.Ensure(id) {
		return
	}
	full := filepath.Join(s.t.opts.BaseDir, filepath.FromSlash(modulePath))
	if filepath.Ext(full) != ".js" {
		return
	}

	read := &pendingRead{path: full, issuer: issuer, done: make(chan struct{})}
	s.pending[id] = read
	s.queue = append(s.queue, id)
	go s.read(read)
}

func (s *traceState) read(p *pendingRead) {
	defer close(p.done)
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx.Done():
		p.err = s.ctx.Err()
		return
	}
	defer func() { <-s.sem }()
	p.data, p.err = s.t.reader.ReadFile(p.path)
}
