package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplateDeps(t *testing.T) {
	x := NewExtractor()

	tests := []struct {
		name       string
		source     string
		want       []string
		incomplete bool
	}{
		{
			name:   "data-mage-init",
			source: `<div data-mage-init='{"Magento_Ui/js/modal": {"x": 1}, "collapsible": {}}'></div>`,
			want:   []string{"Magento_Ui/js/modal", "collapsible"},
		},
		{
			name:   "entity encoded data-mage-init",
			source: `<ul data-mage-init="{&quot;menu&quot;: {&quot;responsive&quot;: true}}"></ul>`,
			want:   []string{"menu"},
		},
		{
			name:   "knockout mageInit binding",
			source: `<div data-bind="scope: 'x', mageInit: {'Vendor_Mod/js/widget': {}, other: {}}"></div>`,
			want:   []string{"Vendor_Mod/js/widget", "other"},
		},
		{
			name:       "binding mentions mageInit without the property",
			source:     `<span data-bind="text: 'mageInit'"></span>`,
			want:       []string{},
			incomplete: true,
		},
		{
			name: "x-magento-init script",
			source: `<script type="text/x-magento-init">
{
    "*": { "Magento_Ui/js/core/app": { "components": {} } },
    "#block": { "Vendor_A/js/a": {} }
}
</script>`,
			want: []string{"Magento_Ui/js/core/app", "Vendor_A/js/a"},
		},
		{
			name:   "x-magento-init with interpolation",
			source: `<script type="text/x-magento-init">{"*": {"Vendor_B/js/b": <?= $block->getJsonConfig() ?>}}</script>`,
			want:   []string{"Vendor_B/js/b"},
		},
		{
			name:   "inline script",
			source: `<p>hi</p><script>require(["jquery", "domReady!"], function($) {});</script>`,
			want:   []string{"jquery", "domReady!"},
		},
		{
			name:   "explicit javascript type",
			source: `<script type="text/javascript">define(["a"], function() {});</script>`,
			want:   []string{"a"},
		},
		{
			name:   "other script types ignored",
			source: `<script type="text/x-magento-template">require(["never"]);</script>`,
			want:   []string{},
		},
		{
			name: "deduplicated across sources",
			source: `<div data-mage-init='{"a": {}}'></div>
<script>require(["a", "b"]);</script>`,
			want: []string{"a", "b"},
		},
		{
			name:   "interpolated attribute elsewhere",
			source: `<div class="<?= $escaper->escapeHtmlAttr($cls) ?>" data-mage-init='{"c": {}}'></div>`,
			want:   []string{"c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := x.TemplateDeps([]byte(tt.source))
			assert.Equal(t, tt.want, got.Deps)
			assert.Equal(t, tt.incomplete, got.IncompleteAnalysis)
		})
	}
}

func TestObjectKeys(t *testing.T) {
	x := NewExtractor()

	keys, err := x.ObjectKeys(`{"a": 1, b: 2, 3: 4, [computed]: 5, short}`)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "short"}, keys)

	_, err = x.ObjectKeys(`[1, 2]`)
	assert.Error(t, err)
}

