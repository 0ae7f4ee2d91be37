// Package amdconfig interprets loader configuration scripts into a
// normalized LoaderConfig and augments them with bundle declarations.
package amdconfig

// FileName is the well-known loader configuration file inside a locale root.
const FileName = "requirejs-config.js"

// Shim describes a non-AMD module's dependencies and global export.
type Shim struct {
	Deps    []string
	Exports string
}

// Mixin is one entry of config.mixins for a target module. Entries keep the
// order in which the configuration declared them.
type Mixin struct {
	ID      string
	Enabled bool
}

// LoaderConfig is the merged result of every configuration call in a script.
// It is treated as read-only once Interpret returns.
type LoaderConfig struct {
	BaseURL string
	// Paths maps an alias prefix to its candidate locations; the first wins.
	Paths map[string][]string
	// Map holds per-issuer overrides; the "*" key applies to every issuer.
	Map     map[string]map[string]string
	Shim    map[string]Shim
	Bundles map[string][]string
	Mixins  map[string][]Mixin
	// Deps accumulates across calls in call order.
	Deps []string
}

func newLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		Paths:   make(map[string][]string),
		Map:     make(map[string]map[string]string),
		Shim:    make(map[string]Shim),
		Bundles: make(map[string][]string),
		Mixins:  make(map[string][]Mixin),
	}
}

// ShimFor returns the shim configured for a module ID.
func (c *LoaderConfig) ShimFor(moduleID string) (Shim, bool) {
	if c == nil {
		return Shim{}, false
	}
	shim, ok := c.Shim[moduleID]
	return shim, ok
}

// MixinsFor returns the enabled mixin IDs configured for a module ID, in
// declaration order.
func (c *LoaderConfig) MixinsFor(moduleID string) []string {
	if c == nil {
		return nil
	}
	entries := c.Mixins[moduleID]
	out := make([]string, 0, len(entries))
	for _, m := range entries {
		if m.Enabled {
			out = append(out, m.ID)
		}
	}
	return out
}

// EntryPoints returns a copy of the accumulated deps.
func (c *LoaderConfig) EntryPoints() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.Deps...)
}

func (c *LoaderConfig) setMixin(target, id string, enabled bool) {
	entries := c.Mixins[target]
	for i := range entries {
		if entries[i].ID == id {
			entries[i].Enabled = enabled
			return
		}
	}
	c.Mixins[target] = append(entries, Mixin{ID: id, Enabled: enabled})
}
