package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"amdpack/internal/core/config"
	"amdpack/internal/core/errors"
	"amdpack/internal/core/ports"
	"amdpack/internal/data/history"
	"amdpack/internal/data/store"
	"amdpack/internal/engine/minify"
	"amdpack/internal/engine/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedClock = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

type fakeHistory struct {
	mu      sync.Mutex
	records []history.Record
}

func (f *fakeHistory) Save(rec history.Record) (history.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return rec, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

var shopSources = map[string]string{
	"requirejs-config.js": `require.config({ deps: ["main"] });`,
	"main.js":             `define(["lib"], function(lib) { return lib; });`,
	"lib.js":              `define(function() { return {}; });`,
	"promo.js":            `define(["lib"], function(lib) {});`,
	"product.js":          `define(["main", "gallery"], function() {});`,
	"gallery.js":          `define(function() {});`,
}

// fixtureStore lays out one buildable theme with two locales and a couple of
// themes that must be rejected.
func fixtureStore(t *testing.T) *store.Store {
	t.Helper()
	root := t.TempDir()

	shopStatic := filepath.Join(root, "pub", "static", "frontend", "Acme", "shop")
	for _, locale := range []string{"de_DE", "en_US"} {
		for name, content := range shopSources {
			writeFile(t, filepath.Join(shopStatic, locale, name), content)
		}
	}
	shopDir := filepath.Join(root, "app", "design", "frontend", "Acme", "shop")
	writeFile(t, filepath.Join(shopDir, "Magento_Theme", "layout", "default.xml"),
		`<page><body><block template="Magento_Theme::promo.phtml"/></body></page>`)
	writeFile(t, filepath.Join(shopDir, "Magento_Theme", "templates", "promo.phtml"),
		`<div data-mage-init='{"promo": {}}'></div>`)
	writeFile(t, filepath.Join(shopDir, "Magento_Catalog", "layout", "catalog_product_view.xml"),
		`<page><body><block template="Magento_Catalog::product.phtml"/></body></page>`)
	writeFile(t, filepath.Join(shopDir, "Magento_Catalog", "templates", "product.phtml"),
		`<div data-mage-init='{"product": {}}'></div>`)

	emptyDir := filepath.Join(root, "app", "design", "frontend", "Acme", "empty")
	require.NoError(t, os.MkdirAll(emptyDir, 0o755))
	writeFile(t, filepath.Join(root, "pub", "static", "frontend", "Acme", "empty", "en_US", "requirejs-config.js"),
		`require.config({ paths: { a: "b" } });`)

	return &store.Store{
		Root: root,
		Components: store.Components{
			Themes: map[string]store.Theme{
				"Acme/shop":     {ID: "Acme/shop", Vendor: "Acme", Name: "shop", Area: store.AreaFrontend, Path: shopDir},
				"Acme/empty":    {ID: "Acme/empty", Vendor: "Acme", Name: "empty", Area: store.AreaFrontend, Path: emptyDir},
				"Acme/admin":    {ID: "Acme/admin", Vendor: "Acme", Name: "admin", Area: store.AreaAdminhtml, Path: emptyDir},
				"Magento/blank": {ID: "Magento/blank", Vendor: "Magento", Name: "blank", Area: store.AreaFrontend, Path: emptyDir},
				"Acme/hidden":   {ID: "Acme/hidden", Vendor: "Acme", Name: "hidden", Area: store.AreaFrontend, Path: emptyDir},
			},
			Modules: map[string]store.Module{},
		},
		DeployedThemes: []string{"Acme/shop", "Acme/empty", "Acme/admin", "Magento/blank"},
	}
}

func newOptimizer(t *testing.T, s *store.Store, rec HistoryRecorder) *Optimizer {
	t.Helper()
	o, err := New(Options{
		Config:    config.Default(),
		Store:     s,
		Extractor: parser.NewExtractor(),
		History:   rec,
		Minifier:  func() (ports.Minifier, error) { return minify.Passthrough{}, nil },
		Clock:     fixedClock,
	})
	require.NoError(t, err)
	return o
}

func TestNewRequiresStoreAndExtractor(t *testing.T) {
	_, err := New(Options{Extractor: parser.NewExtractor()})
	assert.Error(t, err)
	_, err = New(Options{Store: &store.Store{}})
	assert.Error(t, err)
}

func TestDefaultMinifier(t *testing.T) {
	cfg := config.Default()
	disabled := false
	cfg.Minify.Enabled = &disabled
	factory, err := DefaultMinifier(cfg)
	require.NoError(t, err)
	m, err := factory()
	require.NoError(t, err)
	assert.IsType(t, minify.Passthrough{}, m)

	cfg = config.Default()
	cfg.Minify.Target = "es1999"
	_, err = DefaultMinifier(cfg)
	assert.True(t, errors.IsCode(err, errors.CodeConfig))
}

func TestEligibleAndValidateThemes(t *testing.T) {
	o := newOptimizer(t, fixtureStore(t), nil)
	assert.Equal(t, []string{"Acme/empty", "Acme/shop"}, o.EligibleThemes())

	assert.NoError(t, o.ValidateThemes([]string{"Acme/shop"}))

	err := o.ValidateThemes([]string{"Magento/blank", "Acme/shop", "Acme/admin", "Nope/x"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotSupported))
	assert.Contains(t, err.Error(), "Cannot optimize 3 theme(s): Acme/admin, Magento/blank, Nope/x")
	assert.Contains(t, err.Error(), "Eligible themes: Acme/empty, Acme/shop")
}

func TestOptimizeThemesWritesEveryLocale(t *testing.T) {
	s := fixtureStore(t)
	rec := &fakeHistory{}
	o := newOptimizer(t, s, rec)

	results := o.OptimizeThemes(context.Background(), []string{"Acme/shop"})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.True(t, results[0].Success)

	out := results[0].Result
	assert.Equal(t, "de_DE", out.BaseLocale)
	assert.Equal(t, []string{"de_DE", "en_US"}, out.Locales)
	assert.Equal(t, []string{"main", "promo"}, out.ResolvedEntryIDs)
	assert.Empty(t, out.Warnings)

	require.Len(t, out.Bundles, 2)
	core := out.Bundles[0]
	assert.Equal(t, "core-bundle", core.Name)
	assert.ElementsMatch(t, []string{"main", "lib", "promo"}, core.Modules)
	assert.Equal(t, core.Size, out.CoreBundle)

	layout := out.Bundles[1]
	assert.Equal(t, "core-catalog_product_view", layout.Name)
	assert.ElementsMatch(t, []string{"product", "gallery"}, layout.Modules)

	static := filepath.Join(s.Root, "pub", "static", "frontend", "Acme", "shop")
	for _, locale := range out.Locales {
		assert.FileExists(t, filepath.Join(static, locale, "balerbundles", "core-bundle.js"))
		assert.FileExists(t, filepath.Join(static, locale, "balerbundles", "core-bundle.js.map"))
		assert.FileExists(t, filepath.Join(static, locale, "balerbundles", "core-catalog_product_view.js"))

		cfgOut, err := os.ReadFile(filepath.Join(static, locale, "requirejs-bundle-config.js"))
		require.NoError(t, err)
		assert.Contains(t, string(cfgOut), `"balerbundles/core-bundle": [`)
		assert.Contains(t, string(cfgOut), `"balerbundles/core-catalog_product_view": [`)
		assert.Contains(t, string(cfgOut), `require.config({ deps: ["main"] });`)
	}

	coreJS, err := os.ReadFile(filepath.Join(static, "en_US", "balerbundles", "core-bundle.js"))
	require.NoError(t, err)
	assert.Contains(t, string(coreJS), "/* Generated by amdpack - 2024-05-01T12:00:00Z */")
	assert.Contains(t, string(coreJS), `define("lib", function() { return {}; });`)
	assert.Contains(t, string(coreJS), "//# sourceMappingURL=core-bundle.js.map")

	require.Len(t, rec.records, 1)
	saved := rec.records[0]
	assert.Equal(t, "Acme/shop", saved.ThemeID)
	assert.Equal(t, out.RunID, saved.RunID)
	assert.Equal(t, "de_DE", saved.Locale)
	assert.Equal(t, 2, saved.BundleCount)
	assert.Equal(t, fixedClock(), saved.Timestamp)
}

func TestOptimizeThemesWithoutLayoutBundles(t *testing.T) {
	o := newOptimizer(t, fixtureStore(t), nil)
	disabled := false
	o.cfg.Bundle.LayoutBundles = &disabled

	results := o.OptimizeThemes(context.Background(), []string{"Acme/shop"})
	require.NoError(t, results[0].Err)
	require.Len(t, results[0].Result.Bundles, 1)
}

func TestOptimizeThemesReportsFailuresPerTheme(t *testing.T) {
	o := newOptimizer(t, fixtureStore(t), nil)

	results := o.OptimizeThemes(context.Background(), []string{"Nope/x", "Acme/admin", "Acme/empty", "Acme/hidden", "Acme/shop"})
	require.Len(t, results, 5)

	cases := []struct {
		id   string
		code errors.ErrorCode
	}{
		{"Nope/x", errors.CodeNotFound},
		{"Acme/admin", errors.CodeNotSupported},
		{"Acme/empty", errors.CodeValidationError},
		{"Acme/hidden", errors.CodeNotFound},
	}
	for i, tc := range cases {
		assert.Equal(t, tc.id, results[i].ThemeID)
		assert.False(t, results[i].Success, tc.id)
		assert.True(t, errors.IsCode(results[i].Err, tc.code), "%s: %v", tc.id, results[i].Err)
	}
	assert.True(t, results[4].Success)
	assert.Contains(t, results[0].Err.Error(), `Theme "Nope/x" is not registered`)

	de, ok := errors.AsDomain(results[2].Err)
	require.True(t, ok)
	assert.Equal(t, "Acme/empty", de.Context[errors.CtxTheme])
}

func TestOptimizeThemesMinifierFactoryError(t *testing.T) {
	o := newOptimizer(t, fixtureStore(t), nil)
	o.minifier = func() (ports.Minifier, error) { return nil, errors.New(errors.CodeConfig, "no minifier") }

	results := o.OptimizeThemes(context.Background(), []string{"Acme/shop", "Acme/empty"})
	for _, r := range results {
		assert.False(t, r.Success)
		assert.True(t, errors.IsCode(r.Err, errors.CodeConfig))
	}
}

func TestThemeGraph(t *testing.T) {
	s := fixtureStore(t)
	o := newOptimizer(t, s, nil)

	g, err := o.ThemeGraph(context.Background(), "Acme/shop")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main", "lib", "promo"}, g.IDs())
	assert.Equal(t, []string{"lib"}, g.Deps("main"))

	_, err = os.Stat(filepath.Join(s.Root, "pub", "static", "frontend", "Acme", "shop", "en_US", "balerbundles"))
	assert.True(t, os.IsNotExist(err))
}

func TestAffectedThemes(t *testing.T) {
	roots := map[string]string{
		"Acme/shop": "/srv/pub/static/frontend/Acme/shop",
		"Acme/sale": "/srv/pub/static/frontend/Acme/sale",
	}
	got := AffectedThemes(roots, []string{
		"/srv/pub/static/frontend/Acme/shop/en_US/main.js",
		"/srv/pub/static/frontend/Acme/shopping/en_US/x.js",
		"/srv/pub/static/frontend/Acme/shop/de_DE/lib.js",
	})
	assert.Equal(t, []string{"Acme/shop"}, got)
	assert.Empty(t, AffectedThemes(roots, []string{"/elsewhere/a.js"}))
}

func TestWatchRebuildsChangedTheme(t *testing.T) {
	s := fixtureStore(t)
	o := newOptimizer(t, s, nil)
	o.cfg.Watch.Debounce = 20 * time.Millisecond
	o.cfg.Watch.RebuildInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan []ThemeResult, 4)
	done := make(chan error, 1)
	go func() {
		done <- o.Watch(ctx, []string{"Acme/shop"}, func(results []ThemeResult) { got <- results })
	}()

	// fsnotify needs the watches registered before the write below.
	time.Sleep(200 * time.Millisecond)
	lib := filepath.Join(s.Root, "pub", "static", "frontend", "Acme", "shop", "en_US", "lib.js")
	require.NoError(t, os.WriteFile(lib, []byte(`define(function() { return { v: 2 }; });`), 0o644))

	select {
	case results := <-got:
		require.Len(t, results, 1)
		assert.Equal(t, "Acme/shop", results[0].ThemeID)
		assert.NoError(t, results[0].Err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rebuild")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
