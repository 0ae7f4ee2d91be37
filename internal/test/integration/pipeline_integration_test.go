package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"amdpack/internal/core/app"
	"amdpack/internal/core/config"
	"amdpack/internal/data/history"
	"amdpack/internal/data/store"
	"amdpack/internal/engine/amdconfig"
	"amdpack/internal/engine/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// createInstall lays out a small install: one vendor module contributing a
// layout handle, a parent and child theme, and deployed static files.
func createInstall(t *testing.T, root string) {
	writeFile(t, filepath.Join(root, "app", "etc", "config.php"), `<?php
return array (
  'modules' => array (
    'Acme_Catalog' => 1,
    'Acme_Disabled' => 0,
  ),
);`)

	module := filepath.Join(root, "vendor", "acme", "module-catalog")
	writeFile(t, filepath.Join(module, "registration.php"), `<?php
\Magento\Framework\Component\ComponentRegistrar::register(
    \Magento\Framework\Component\ComponentRegistrar::MODULE,
    'Acme_Catalog',
    __DIR__
);`)
	writeFile(t, filepath.Join(module, "view", "frontend", "layout", "catalog_product_view.xml"), `<?xml version="1.0"?>
<page>
    <body>
        <referenceContainer name="content">
            <block class="Magento\Framework\View\Element\Template" template="Acme_Catalog::gallery.phtml"/>
        </referenceContainer>
    </body>
</page>`)
	writeFile(t, filepath.Join(module, "view", "frontend", "templates", "gallery.phtml"), `<div data-mage-init='{"Acme_Catalog/js/gallery": {"loop": true}}'></div>`)

	parent := filepath.Join(root, "app", "design", "frontend", "Acme", "base")
	writeFile(t, filepath.Join(parent, "registration.php"), `<?php
use Magento\Framework\Component\ComponentRegistrar;
ComponentRegistrar::register(ComponentRegistrar::THEME, 'frontend/Acme/base', __DIR__);`)
	writeFile(t, filepath.Join(parent, "theme.xml"), `<theme><title>Base</title></theme>`)
	writeFile(t, filepath.Join(parent, "Magento_Theme", "layout", "default.xml"), `<page><body><block template="Magento_Theme::header.phtml"/></body></page>`)
	writeFile(t, filepath.Join(parent, "Magento_Theme", "templates", "header.phtml"), `<script type="text/x-magento-init">{"*": {"Acme_Theme/js/header": {}}}</script>`)

	child := filepath.Join(root, "app", "design", "frontend", "Acme", "shop")
	writeFile(t, filepath.Join(child, "registration.php"), `<?php
use Magento\Framework\Component\ComponentRegistrar;
ComponentRegistrar::register(ComponentRegistrar::THEME, 'frontend/Acme/shop', __DIR__);`)
	writeFile(t, filepath.Join(child, "theme.xml"), `<theme><title>Shop</title><parent>Acme/base</parent></theme>`)

	locale := filepath.Join(root, "pub", "static", "frontend", "Acme", "shop", "en_US")
	writeFile(t, filepath.Join(locale, "requirejs-config.js"), `(function() {
    var config = {
        deps: ["app"],
        paths: { "jquery": "lib/jquery" },
        shim: { "lib/legacy": { deps: ["jquery"], exports: "Legacy" } },
        config: { mixins: { "app": { "Acme_Theme/js/app-mixin": true } } }
    };
    require.config(config);
})();`)
	writeFile(t, filepath.Join(locale, "app.js"), `define(["jquery", "lib/legacy", "text!Acme_Theme/template/banner.html"], function ($, Legacy, banner) {
    return { start: function () { $(banner); } };
});`)
	writeFile(t, filepath.Join(locale, "lib", "jquery.js"), `define("jquery", [], function () { return function () {}; });`)
	writeFile(t, filepath.Join(locale, "lib", "legacy.js"), `window.Legacy = { version: 1 };`)
	writeFile(t, filepath.Join(locale, "Acme_Theme", "template", "banner.html"), `<div class="banner">Sale</div>`)
	writeFile(t, filepath.Join(locale, "Acme_Theme", "js", "app-mixin.js"), `define(function () { return function (target) { return target; }; });`)
	writeFile(t, filepath.Join(locale, "Acme_Theme", "js", "header.js"), `define(["jquery"], function ($) {});`)
	writeFile(t, filepath.Join(locale, "Acme_Catalog", "js", "gallery.js"), `define(["jquery", "Acme_Catalog/js/zoom"], function () {});`)
	writeFile(t, filepath.Join(locale, "Acme_Catalog", "js", "zoom.js"), `define(function () {});`)
}

func TestFullPipelineIntegration(t *testing.T) {
	root := t.TempDir()
	createInstall(t, root)

	found, err := store.FindRoot(filepath.Join(root, "app", "design"))
	require.NoError(t, err)
	s, err := store.Load(found, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme_Catalog"}, s.EnabledModules)

	cfg := config.Default()
	cfg.Minify.Workers = 2
	cfg.History.Enabled = true

	hs, err := history.Open(cfg.HistoryPath(s.Root))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hs.Close() })

	o, err := app.New(app.Options{
		Config:    cfg,
		Store:     s,
		Extractor: parser.NewExtractor(),
		History:   hs,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Acme/shop"}, o.EligibleThemes())

	results := o.OptimizeThemes(context.Background(), []string{"Acme/shop"})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	out := results[0].Result

	assert.Equal(t, []string{"app", "Acme_Theme/js/header"}, out.ResolvedEntryIDs)
	require.Len(t, out.Bundles, 2)
	core := out.Bundles[0]
	assert.Subset(t, core.Modules, []string{"app", "jquery", "lib/legacy", "Acme_Theme/js/app-mixin", "Acme_Theme/js/header", "text!Acme_Theme/template/banner.html"})
	assert.Less(t, core.Size.After, core.Size.Before)

	layout := out.Bundles[1]
	assert.Equal(t, "core-catalog_product_view", layout.Name)
	assert.ElementsMatch(t, []string{"Acme_Catalog/js/gallery", "Acme_Catalog/js/zoom"}, layout.Modules)

	locale := filepath.Join(s.Root, "pub", "static", "frontend", "Acme", "shop", "en_US")
	coreJS, err := os.ReadFile(filepath.Join(locale, "balerbundles", "core-bundle.js"))
	require.NoError(t, err)
	assert.Contains(t, string(coreJS), `define("lib/legacy"`)
	assert.Contains(t, string(coreJS), "//# sourceMappingURL=core-bundle.js.map")

	rawMap, err := os.ReadFile(filepath.Join(locale, "balerbundles", "core-bundle.js.map"))
	require.NoError(t, err)
	var sm struct {
		Version int      `json:"version"`
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rawMap, &sm))
	assert.Equal(t, 3, sm.Version)
	assert.NotEmpty(t, sm.Sources)

	configJS, err := os.ReadFile(filepath.Join(locale, "requirejs-bundle-config.js"))
	require.NoError(t, err)
	reparsed, err := amdconfig.Interpret(string(configJS), amdconfig.Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, core.Modules, reparsed.Bundles["balerbundles/core-bundle"])
	assert.ElementsMatch(t, layout.Modules, reparsed.Bundles["balerbundles/core-catalog_product_view"])
	assert.Equal(t, []string{"app"}, reparsed.Deps)

	records, err := hs.Load("Acme/shop", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, out.RunID, records[0].RunID)
	assert.Equal(t, 2, records[0].BundleCount)
}
