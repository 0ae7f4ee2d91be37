package bundle

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"amdpack/internal/core/ports"
	"amdpack/internal/engine/amdconfig"
	"amdpack/internal/engine/resolver"
	"amdpack/internal/engine/sourcemap"
)

// DefaultNeverBundle lists modules that break when evaluated from a bundle.
var DefaultNeverBundle = []string{"prototype"}

const readConcurrency = 16

// Manifest is one generated bundle: the modules it defines, in order, and
// its body and source map.
type Manifest struct {
	Name     string
	Filename string
	Modules  []string
	// Skipped are requested modules left out of the body: unreadable ones
	// and those listed as never bundled.
	Skipped []string
	// InvalidShims are modules that call define but also have shim config.
	InvalidShims []string
	Code         string
	Map          []byte
}

type Options struct {
	NeverBundle []string
	Clock       ports.Clock
}

// Assembler reads, rewrites, and concatenates modules for one theme locale.
type Assembler struct {
	reader   ports.FileReader
	resolver *resolver.Resolver
	config   *amdconfig.LoaderConfig
	never    map[string]bool
	clock    ports.Clock
}

func NewAssembler(reader ports.FileReader, res *resolver.Resolver, cfg *amdconfig.LoaderConfig, opts Options) *Assembler {
	never := opts.NeverBundle
	if never == nil {
		never = DefaultNeverBundle
	}
	a := &Assembler{
		reader:   reader,
		resolver: res,
		config:   cfg,
		never:    make(map[string]bool, len(never)),
		clock:    opts.Clock,
	}
	for _, id := range never {
		a.never[id] = true
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	return a
}

type loaded struct {
	id       string
	resolved resolver.ResolvedModule
	source   string
	ok       bool
}

// Create builds the bundle name from ids, in order, reading sources under
// baseDir. Modules that cannot be read are skipped, never emptied.
func (a *Assembler) Create(ctx context.Context, name string, ids []string, baseDir string) (*Manifest, error) {
	filename := strings.TrimSuffix(path.Base(name), ".js") + ".js"
	modules, err := a.load(ctx, ids, baseDir)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Name:         name,
		Filename:     filename,
		Modules:      []string{},
		Skipped:      []string{},
		InvalidShims: []string{},
	}
	maps := sourcemap.NewBuilder(filename)
	var body strings.Builder

	header := "/* Generated by amdpack - " + a.clock().UTC().Format(time.RFC3339) + " */\n\n"
	body.WriteString(header)
	maps.Append(header)

	first := true
	for _, m := range modules {
		if !m.ok {
			manifest.Skipped = append(manifest.Skipped, m.id)
			continue
		}
		t := Transform(m.id, m.resolved, m.source, a.config)
		if t.InvalidShim {
			manifest.InvalidShims = append(manifest.InvalidShims, m.id)
		}
		if !first {
			body.WriteString("\n")
			maps.Append("\n")
		}
		first = false

		source := maps.AddSource("../"+m.resolved.ModulePath, m.source)
		t.writeTo(maps, source)
		body.WriteString(t.Code())
		manifest.Modules = append(manifest.Modules, m.id)
		slog.Debug("bundled module", "bundle", name, "id", m.id, "kind", t.Kind.String())
	}

	raw, err := maps.JSON()
	if err != nil {
		return nil, err
	}
	manifest.Code = body.String()
	manifest.Map = raw
	return manifest, nil
}

// load reads every module concurrently, keeping the order of ids.
func (a *Assembler) load(ctx context.Context, ids []string, baseDir string) ([]loaded, error) {
	out := make([]loaded, len(ids))
	sem := make(chan struct{}, readConcurrency)
	var wg sync.WaitGroup

	for i, id := range ids {
		out[i] = loaded{id: id}
		if a.never[id] {
			slog.Debug("ignoring module listed as never bundled", "id", id)
			continue
		}
		resolved := a.resolver.Resolve(id, "")
		if resolved.Empty() {
			continue
		}
		out[i].resolved = resolved

		wg.Add(1)
		go func(m *loaded) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			data, err := a.reader.ReadFile(filepath.Join(baseDir, filepath.FromSlash(m.resolved.ModulePath)))
			if err != nil {
				slog.Debug("module left out of bundle", "id", m.id, "error", err)
				return
			}
			m.source = string(data)
			m.ok = true
		}(&out[i])
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
