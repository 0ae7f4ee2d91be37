package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"amdpack/internal/core/watcher"
	"amdpack/internal/data/store"
	"amdpack/internal/shared/util"
)

// Watch rebuilds themes whose static files change until ctx is done.
// Generated output is ignored. Rebuilds of one theme are spaced by
// watch.rebuild_interval; changes that arrive while a rebuild is waiting
// join it.
func (o *Optimizer) Watch(ctx context.Context, themeIDs []string, onResults func([]ThemeResult)) error {
	roots := make(map[string]string, len(themeIDs))
	paths := make([]string, 0, len(themeIDs))
	for _, id := range themeIDs {
		theme, ok := o.store.Components.Themes[id]
		if !ok {
			continue
		}
		dir := filepath.Join(o.store.Root, store.StaticDir(theme))
		roots[id] = dir
		paths = append(paths, dir)
	}

	q := &rebuildQueue{
		optimizer: o,
		onResults: onResults,
		queued:    make(map[string]bool),
		limiters:  make(map[string]*util.Limiter),
	}
	excludeDirs := append([]string{filepath.Base(o.cfg.Bundle.MetaDir)}, o.cfg.Watch.ExcludeDirs...)
	excludeFiles := append([]string{o.cfg.Bundle.ConfigName}, o.cfg.Watch.ExcludeFiles...)
	w, err := watcher.NewWatcher(o.cfg.Watch.Debounce, excludeDirs, excludeFiles, func(changed []string) {
		for _, id := range AffectedThemes(roots, changed) {
			q.schedule(ctx, id)
		}
	})
	if err != nil {
		return err
	}
	if err := w.Watch(paths); err != nil {
		_ = w.Close()
		return err
	}
	slog.Info("watching for changes", "themes", len(paths))
	<-ctx.Done()

	// No schedule calls happen once Close returns.
	err = w.Close()
	q.wg.Wait()
	return err
}

// AffectedThemes maps changed paths to the themes whose root contains them.
func AffectedThemes(roots map[string]string, changed []string) []string {
	hit := make(map[string]bool)
	for _, p := range changed {
		for id, root := range roots {
			if util.HasPathPrefix(p, root) {
				hit[id] = true
			}
		}
	}
	ids := make([]string, 0, len(hit))
	for id := range hit {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type rebuildQueue struct {
	optimizer *Optimizer
	onResults func([]ThemeResult)

	mu       sync.Mutex
	queued   map[string]bool
	limiters map[string]*util.Limiter
	wg       sync.WaitGroup
}

func (q *rebuildQueue) schedule(ctx context.Context, themeID string) {
	q.mu.Lock()
	if q.queued[themeID] {
		q.mu.Unlock()
		return
	}
	q.queued[themeID] = true
	limiter, ok := q.limiters[themeID]
	if !ok {
		limiter = util.NewLimiter(q.optimizer.cfg.Watch.RebuildInterval, 1)
		q.limiters[themeID] = limiter
	}
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		err := limiter.Wait(ctx)

		q.mu.Lock()
		q.queued[themeID] = false
		q.mu.Unlock()
		if err != nil {
			return
		}

		slog.Info("rebuilding theme", "theme", themeID)
		results := q.optimizer.OptimizeThemes(ctx, []string{themeID})
		if q.onResults != nil {
			q.onResults(results)
		}
	}()
}
