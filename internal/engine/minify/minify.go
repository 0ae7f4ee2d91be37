// Package minify compresses bundles and configuration scripts on a fixed
// pool of workers. Identifiers are never renamed: the loader runtime reads
// the source text of module factories looking for "require".
package minify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"amdpack/internal/core/ports"
	"amdpack/internal/shared/observability"

	"github.com/evanw/esbuild/pkg/api"
)

var ErrClosed = errors.New("minifier pool is closed")

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// ParseTarget maps a target name like "es2015" to its esbuild value.
func ParseTarget(name string) (api.Target, error) {
	if name == "" {
		return api.ES2015, nil
	}
	t, ok := targets[strings.ToLower(name)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown minify target %q", name)
	}
	return t, nil
}

type job struct {
	ctx    context.Context
	req    ports.MinifyRequest
	result chan jobResult
}

type jobResult struct {
	out ports.MinifyResult
	err error
}

// Pool runs minification jobs on a fixed number of goroutines. Jobs share
// no state.
type Pool struct {
	target api.Target
	jobs   chan job
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewPool starts workers goroutines (at least one).
func NewPool(workers int, target api.Target) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		target: target,
		jobs:   make(chan job),
		done:   make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case j := <-p.jobs:
			observability.MinifyQueueDepth.Dec()
			if err := j.ctx.Err(); err != nil {
				j.result <- jobResult{err: err}
				continue
			}
			out, err := Minify(j.req, p.target)
			j.result <- jobResult{out: out, err: err}
		}
	}
}

// Minify queues req and waits for a worker to finish it.
func (p *Pool) Minify(ctx context.Context, req ports.MinifyRequest) (ports.MinifyResult, error) {
	j := job{ctx: ctx, req: req, result: make(chan jobResult, 1)}
	observability.MinifyQueueDepth.Inc()
	select {
	case p.jobs <- j:
	case <-p.done:
		observability.MinifyQueueDepth.Dec()
		return ports.MinifyResult{}, ErrClosed
	case <-ctx.Done():
		observability.MinifyQueueDepth.Dec()
		return ports.MinifyResult{}, ctx.Err()
	}

	select {
	case r := <-j.result:
		return r.out, r.err
	case <-ctx.Done():
		return ports.MinifyResult{}, ctx.Err()
	}
}

// Close stops the workers after their current job. Safe to call twice.
func (p *Pool) Close() error {
	p.once.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
	return nil
}

// Minify compresses one artifact. A non-empty input map is chained so the
// output map points at the original sources.
func Minify(req ports.MinifyRequest, target api.Target) (ports.MinifyResult, error) {
	code := req.Code
	if len(req.SourceMap) > 0 {
		code += "\n//# sourceMappingURL=data:application/json;base64," + base64.StdEncoding.EncodeToString(req.SourceMap)
	}

	result := api.Transform(code, api.TransformOptions{
		Loader:            api.LoaderJS,
		Sourcefile:        req.Filename,
		Sourcemap:         api.SourceMapExternal,
		Target:            target,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: false,
		LogLevel:          api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		errs := make([]error, len(result.Errors))
		for i, message := range result.Errors {
			errs[i] = errors.New(message.Text)
		}
		return ports.MinifyResult{}, fmt.Errorf("minify %s: %w", req.Filename, errors.Join(errs...))
	}

	return ports.MinifyResult{
		Code: withMapComment(string(result.Code), req.Filename),
		Map:  result.Map,
	}, nil
}

// Passthrough satisfies ports.Minifier without compressing anything.
type Passthrough struct{}

func (Passthrough) Minify(_ context.Context, req ports.MinifyRequest) (ports.MinifyResult, error) {
	if len(req.SourceMap) == 0 {
		return ports.MinifyResult{Code: req.Code}, nil
	}
	return ports.MinifyResult{
		Code: withMapComment(req.Code, req.Filename),
		Map:  req.SourceMap,
	}, nil
}

func (Passthrough) Close() error { return nil }

func withMapComment(code, filename string) string {
	return strings.TrimRight(code, "\n") + "\n//# sourceMappingURL=" + path.Base(filename) + ".map"
}
