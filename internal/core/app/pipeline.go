package app

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sync"
	"time"

	"amdpack/internal/core/errors"
	"amdpack/internal/core/ports"
	"amdpack/internal/data/history"
	"amdpack/internal/data/store"
	"amdpack/internal/engine/amdconfig"
	"amdpack/internal/engine/bundle"
	"amdpack/internal/engine/graph"
	"amdpack/internal/engine/resolver"
	"amdpack/internal/shared/observability"
	"amdpack/internal/shared/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultHandle = "default"

// SizeStat is an artifact size before and after minification.
type SizeStat struct {
	Before int64 `json:"before"`
	After  int64 `json:"after"`
}

type BundleSummary struct {
	Name         string   `json:"name"`
	Modules      []string `json:"modules"`
	Skipped      []string `json:"skipped"`
	InvalidShims []string `json:"invalidShims"`
	Size         SizeStat `json:"size"`
}

// ThemeOutput describes one successful theme build. Bundles starts with
// the core bundle.
type ThemeOutput struct {
	RunID            string                              `json:"runID"`
	BaseLocale       string                              `json:"baseLocale"`
	Locales          []string                            `json:"locales"`
	ResolvedEntryIDs []string                            `json:"resolvedEntryIDs"`
	Graph            *graph.DependencyGraph              `json:"graph"`
	Warnings         []graph.UnreadableDependencyWarning `json:"warnings"`
	Bundles          []BundleSummary                     `json:"bundles"`
	CoreBundle       SizeStat                            `json:"coreBundle"`
	Config           SizeStat                            `json:"config"`
	Duration         time.Duration                       `json:"duration"`
}

type ThemeResult struct {
	ThemeID string       `json:"themeID"`
	Success bool         `json:"success"`
	Result  *ThemeOutput `json:"result,omitempty"`
	Err     error        `json:"-"`
}

// themeContext is everything derived from a theme before tracing.
type themeContext struct {
	theme    store.Theme
	locales  []string
	baseDir  string
	loaded   *amdconfig.Loaded
	handles  store.HandleDeps
	entries  []string
	resolver *resolver.Resolver
	tracer   *graph.Tracer
}

// OptimizeThemes builds every theme concurrently and returns one result per
// ID in input order. A failing theme never stops the others.
func (o *Optimizer) OptimizeThemes(ctx context.Context, themeIDs []string) []ThemeResult {
	runID := uuid.NewString()
	ctx, span := observability.Tracer.Start(ctx, "OptimizeThemes",
		trace.WithAttributes(attribute.String("run_id", runID), attribute.Int("themes", len(themeIDs))))
	defer span.End()

	results := make([]ThemeResult, len(themeIDs))
	minifier, err := o.minifier()
	if err != nil {
		for i, id := range themeIDs {
			results[i] = ThemeResult{ThemeID: id, Err: err}
		}
		observability.RecordError(ctx, err)
		return results
	}
	defer func() {
		if err := minifier.Close(); err != nil {
			slog.Warn("closing minifier", "error", err)
		}
	}()

	var wg sync.WaitGroup
	for i, id := range themeIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			out, err := o.optimizeTheme(ctx, runID, id, minifier)
			if err != nil {
				observability.ThemeResults.WithLabelValues("failure").Inc()
				results[i] = ThemeResult{ThemeID: id, Err: err}
				return
			}
			observability.ThemeResults.WithLabelValues("success").Inc()
			results[i] = ThemeResult{ThemeID: id, Success: true, Result: out}
		}(i, id)
	}
	wg.Wait()
	return results
}

func (o *Optimizer) optimizeTheme(ctx context.Context, runID, themeID string, minifier ports.Minifier) (out *ThemeOutput, err error) {
	start := time.Now()
	ctx, span := observability.Tracer.Start(ctx, "optimizeTheme", trace.WithAttributes(attribute.String("theme", themeID)))
	defer func() {
		if err != nil {
			observability.RecordError(ctx, err)
			if de, ok := errors.AsDomain(err); ok {
				de.WithContext(errors.CtxTheme, themeID)
			}
		}
		span.End()
	}()

	tc, err := o.prepare(ctx, themeID)
	if err != nil {
		return nil, err
	}

	end := o.reporter.Start(themeID, "Tracing dependencies")
	traced, err := o.trace(ctx, tc, tc.entries)
	if err != nil {
		return nil, err
	}
	end(fmt.Sprintf("Traced %d modules", traced.Graph.Len()))
	for _, w := range traced.Warnings {
		o.reporter.Warn(themeID, fmt.Sprintf("Unable to read %s (requested by %s)", w.Path, w.Issuer))
	}

	assembler := bundle.NewAssembler(o.reader, tc.resolver, tc.loaded.Config, bundle.Options{
		NeverBundle: o.cfg.Bundle.NeverBundle,
		Clock:       o.clock,
	})

	end = o.reporter.Start(themeID, "Creating core bundle")
	coreIDs := graph.BundleOrder(traced.Graph, traced.ResolvedEntryIDs, o.cfg.Bundle.Exclude)
	stageStart := time.Now()
	core, err := assembler.Create(ctx, o.cfg.Bundle.CoreName, coreIDs, tc.baseDir)
	if err != nil {
		return nil, err
	}
	observability.StageDuration.WithLabelValues("bundle").Observe(time.Since(stageStart).Seconds())
	end(fmt.Sprintf("Created core bundle with %d modules", len(core.Modules)))

	manifests := []*bundle.Manifest{core}
	if o.cfg.LayoutBundlesEnabled() {
		layout, err := o.layoutBundles(ctx, tc, assembler, core)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, layout...)
	}

	decls := make([]amdconfig.BundleDecl, 0, len(manifests))
	for _, m := range manifests {
		decls = append(decls, amdconfig.BundleDecl{Name: path.Join(o.cfg.Bundle.MetaDir, m.Name), Modules: m.Modules})
	}
	augmented := amdconfig.AugmentWithBundles(tc.loaded.Raw, decls)

	end = o.reporter.Start(themeID, "Minifying bundles")
	stageStart = time.Now()
	minified, configOut, err := o.minifyAll(ctx, minifier, manifests, augmented)
	if err != nil {
		return nil, err
	}
	observability.StageDuration.WithLabelValues("minify").Observe(time.Since(stageStart).Seconds())
	end("Minified bundles")

	end = o.reporter.Start(themeID, fmt.Sprintf("Writing bundles to %d locale(s)", len(tc.locales)))
	stageStart = time.Now()
	if err := o.writeOutputs(tc, manifests, minified, configOut); err != nil {
		return nil, err
	}
	observability.StageDuration.WithLabelValues("write").Observe(time.Since(stageStart).Seconds())
	end("Wrote bundles")

	out = &ThemeOutput{
		RunID:            runID,
		BaseLocale:       tc.locales[0],
		Locales:          tc.locales,
		ResolvedEntryIDs: traced.ResolvedEntryIDs,
		Graph:            traced.Graph,
		Warnings:         traced.Warnings,
		Config: SizeStat{
			Before: int64(len(augmented)),
			After:  int64(len(configOut.Code)),
		},
	}
	for i, m := range manifests {
		summary := BundleSummary{
			Name:         m.Name,
			Modules:      m.Modules,
			Skipped:      m.Skipped,
			InvalidShims: m.InvalidShims,
			Size: SizeStat{
				Before: int64(len(m.Code)),
				After:  int64(len(minified[i].Code)),
			},
		}
		out.Bundles = append(out.Bundles, summary)
		observability.BundleBytes.WithLabelValues(themeID, m.Name, "before").Set(float64(summary.Size.Before))
		observability.BundleBytes.WithLabelValues(themeID, m.Name, "after").Set(float64(summary.Size.After))
	}
	out.CoreBundle = out.Bundles[0].Size
	observability.BundleBytes.WithLabelValues(themeID, o.cfg.Bundle.ConfigName, "before").Set(float64(out.Config.Before))
	observability.BundleBytes.WithLabelValues(themeID, o.cfg.Bundle.ConfigName, "after").Set(float64(out.Config.After))
	out.Duration = time.Since(start)

	o.record(themeID, out)
	return out, nil
}

// prepare resolves the theme, reads its loader config and collects entry
// points: config deps followed by the default layout handle's deps.
func (o *Optimizer) prepare(ctx context.Context, themeID string) (*themeContext, error) {
	theme, ok := o.store.Components.Themes[themeID]
	if !ok {
		return nil, errors.AddContext(errors.Newf(errors.CodeNotFound, "Theme %q is not registered", themeID), errors.CtxTheme, themeID)
	}
	if !store.IsEligible(theme) {
		err := errors.Newf(errors.CodeNotSupported,
			"Theme %q cannot be optimized: only frontend themes other than Magento/blank are supported", themeID)
		return nil, errors.AddContext(err, errors.CtxTheme, themeID)
	}

	locales, err := store.Locales(o.store.Root, theme)
	if err != nil {
		return nil, err
	}
	if len(locales) == 0 {
		err := errors.Newf(errors.CodeNotFound, "Theme %q has no deployed locales", themeID)
		return nil, errors.AddContext(err, errors.CtxPath, filepath.Join(o.store.Root, store.StaticDir(theme)))
	}
	baseDir := filepath.Join(o.store.Root, store.StaticDir(theme), locales[0])

	end := o.reporter.Start(themeID, "Reading RequireJS config")
	stageStart := time.Now()
	loaded, err := amdconfig.LoadFromDir(o.reader, baseDir, amdconfig.Options{Timeout: o.cfg.Interpreter.Timeout})
	if err != nil {
		return nil, err
	}
	observability.StageDuration.WithLabelValues("config").Observe(time.Since(stageStart).Seconds())
	entries := loaded.Config.EntryPoints()
	if len(entries) == 0 {
		return nil, (&errors.DomainError{
			Code:    errors.CodeValidationError,
			Message: "No entry points found in RequireJS config",
		}).WithContext(errors.CtxPath, loaded.Path)
	}
	end(fmt.Sprintf("Read RequireJS config with %d entry point(s)", len(entries)))

	end = o.reporter.Start(themeID, "Collecting layout dependencies")
	stageStart = time.Now()
	hierarchy := store.ThemeHierarchy(theme, o.store.Components.Themes)
	handles := store.LayoutDeps(hierarchy, o.store.EnabledModules, o.store.Components.Modules, o.extractor)
	observability.StageDuration.WithLabelValues("layout").Observe(time.Since(stageStart).Seconds())
	entries = util.UniqueStrings(append(entries, handles.For(defaultHandle)...))
	end(fmt.Sprintf("Found %d layout handle(s)", len(handles.Handles)))

	res := resolver.New(loaded.Config)
	tracer := graph.NewTracer(o.reader, o.extractor, res, loaded.Config, graph.TracerOptions{
		BaseDir:         baseDir,
		ReadConcurrency: o.cfg.Trace.ReadConcurrency,
		Label:           themeID,
	})

	return &themeContext{
		theme:    theme,
		locales:  locales,
		baseDir:  baseDir,
		loaded:   loaded,
		handles:  handles,
		entries:  entries,
		resolver: res,
		tracer:   tracer,
	}, nil
}

func (o *Optimizer) trace(ctx context.Context, tc *themeContext, entries []string) (graph.TraceResult, error) {
	start := time.Now()
	defer func() {
		observability.StageDuration.WithLabelValues("trace").Observe(time.Since(start).Seconds())
	}()
	return tc.tracer.Trace(ctx, entries)
}

// layoutBundles creates one core-<handle> bundle per non-default layout
// handle, leaving out everything the core bundle already defines.
func (o *Optimizer) layoutBundles(ctx context.Context, tc *themeContext, assembler *bundle.Assembler, core *bundle.Manifest) ([]*bundle.Manifest, error) {
	inCore := make(map[string]bool, len(core.Modules)+len(core.Skipped))
	for _, id := range core.Modules {
		inCore[id] = true
	}
	for _, id := range core.Skipped {
		inCore[id] = true
	}

	var manifests []*bundle.Manifest
	for _, handle := range tc.handles.Handles {
		deps := tc.handles.For(handle)
		if handle == defaultHandle || len(deps) == 0 {
			continue
		}
		traced, err := o.trace(ctx, tc, deps)
		if err != nil {
			return nil, err
		}
		var ids []string
		for _, id := range graph.BundleOrder(traced.Graph, traced.ResolvedEntryIDs, o.cfg.Bundle.Exclude) {
			if !inCore[id] {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}

		end := o.reporter.Start(tc.theme.ID, "Creating bundle for: "+handle)
		m, err := assembler.Create(ctx, "core-"+handle, ids, tc.baseDir)
		if err != nil {
			return nil, err
		}
		end(fmt.Sprintf("Created bundle for %s with %d modules", handle, len(m.Modules)))
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// minifyAll submits every bundle and the augmented config at once so the
// shared pool can interleave them with other themes.
func (o *Optimizer) minifyAll(ctx context.Context, minifier ports.Minifier, manifests []*bundle.Manifest, augmented string) ([]ports.MinifyResult, ports.MinifyResult, error) {
	reqs := make([]ports.MinifyRequest, 0, len(manifests)+1)
	for _, m := range manifests {
		reqs = append(reqs, ports.MinifyRequest{Code: m.Code, Filename: m.Filename, SourceMap: m.Map})
	}
	reqs = append(reqs, ports.MinifyRequest{Code: augmented, Filename: o.cfg.Bundle.ConfigName})

	results := make([]ports.MinifyResult, len(reqs))
	errs := make([]error, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req ports.MinifyRequest) {
			defer wg.Done()
			results[i], errs[i] = minifier.Minify(ctx, req)
		}(i, req)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, ports.MinifyResult{}, fmt.Errorf("minify %s: %w", reqs[i].Filename, err)
		}
	}
	last := len(results) - 1
	return results[:last], results[last], nil
}

// writeOutputs copies every artifact into each locale of the theme.
func (o *Optimizer) writeOutputs(tc *themeContext, manifests []*bundle.Manifest, minified []ports.MinifyResult, configOut ports.MinifyResult) error {
	themeDir := filepath.Join(o.store.Root, store.StaticDir(tc.theme))
	for _, locale := range tc.locales {
		localeDir := filepath.Join(themeDir, locale)
		metaDir := filepath.Join(localeDir, filepath.FromSlash(o.cfg.Bundle.MetaDir))
		for i, m := range manifests {
			if err := o.write(filepath.Join(metaDir, m.Filename), minified[i]); err != nil {
				return err
			}
		}
		if err := o.write(filepath.Join(localeDir, o.cfg.Bundle.ConfigName), configOut); err != nil {
			return err
		}
	}
	return nil
}

func (o *Optimizer) write(target string, result ports.MinifyResult) error {
	if err := o.writer.WriteFile(target, []byte(result.Code)); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	if len(result.Map) > 0 {
		if err := o.writer.WriteFile(target+".map", result.Map); err != nil {
			return fmt.Errorf("write %s.map: %w", target, err)
		}
	}
	return nil
}

func (o *Optimizer) record(themeID string, out *ThemeOutput) {
	if o.history == nil {
		return
	}
	invalid := 0
	for _, b := range out.Bundles {
		invalid += len(b.InvalidShims)
	}
	rec := history.Record{
		RunID:             out.RunID,
		ThemeID:           themeID,
		Locale:            out.BaseLocale,
		ModuleCount:       out.Graph.Len(),
		WarningCount:      len(out.Warnings),
		BundleCount:       len(out.Bundles),
		InvalidShimCount:  invalid,
		CoreBytesBefore:   out.CoreBundle.Before,
		CoreBytesAfter:    out.CoreBundle.After,
		ConfigBytesBefore: out.Config.Before,
		ConfigBytesAfter:  out.Config.After,
	}
	if o.clock != nil {
		rec.Timestamp = o.clock()
	}
	if _, err := o.history.Save(rec); err != nil {
		slog.Warn("failed to record theme history", "theme", themeID, "error", err)
	}
}

// ThemeGraph traces a theme's entry points without writing anything.
func (o *Optimizer) ThemeGraph(ctx context.Context, themeID string) (*graph.DependencyGraph, error) {
	ctx, span := observability.Tracer.Start(ctx, "ThemeGraph", trace.WithAttributes(attribute.String("theme", themeID)))
	defer span.End()

	tc, err := o.prepare(ctx, themeID)
	if err != nil {
		observability.RecordError(ctx, err)
		return nil, err
	}
	traced, err := o.trace(ctx, tc, tc.entries)
	if err != nil {
		observability.RecordError(ctx, err)
		return nil, err
	}
	return traced.Graph, nil
}
