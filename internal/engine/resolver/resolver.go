// Package resolver maps module requests to canonical module IDs and file
// paths under a loader configuration's map, paths, and baseUrl rules.
package resolver

import (
	"log/slog"
	"path"
	"regexp"
	"strings"

	"amdpack/internal/engine/amdconfig"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 4096

// urlLike matches names the loader treats as literal URLs rather than IDs.
var urlLike = regexp.MustCompile(`^/|:|\?|\.js$`)

var absoluteURL = regexp.MustCompile(`^[\w+.\-]+:`)

// ResolvedModule is the identity and on-disk location of a module request.
// Paths are relative to the resolution base.
type ResolvedModule struct {
	ModuleID   string
	ModulePath string
	PluginID   string
	PluginPath string
}

// Empty reports whether the request resolved to nothing and must be skipped.
func (r ResolvedModule) Empty() bool {
	return r.ModuleID == ""
}

// Resolver is built once per LoaderConfig and is safe for concurrent use.
type Resolver struct {
	baseURL string
	paths   map[string]string
	mapping map[string]map[string]string
	starMap map[string]string
	cache   *lru.Cache[string, ResolvedModule]
}

// New precomputes the resolution tables for cfg.
func New(cfg *amdconfig.LoaderConfig) *Resolver {
	r := &Resolver{
		paths:   make(map[string]string),
		mapping: make(map[string]map[string]string),
	}
	if cfg != nil {
		r.baseURL = normalizeBaseURL(cfg.BaseURL)
		for alias, candidates := range cfg.Paths {
			if len(candidates) > 0 {
				r.paths[alias] = candidates[0]
			}
		}
		for issuer, entries := range cfg.Map {
			copied := make(map[string]string, len(entries))
			for from, to := range entries {
				copied[from] = to
			}
			if issuer == "*" {
				r.starMap = copied
				continue
			}
			r.mapping[issuer] = copied
		}
	}
	cache, err := lru.New[string, ResolvedModule](defaultCacheSize)
	if err == nil {
		r.cache = cache
	}
	return r
}

// Resolve maps request, as issued by the module issuer (empty for entry
// points), to its resolved identity. The result depends only on its inputs.
func (r *Resolver) Resolve(request, issuer string) ResolvedModule {
	key := issuer + "\x00" + request
	if r.cache != nil {
		if hit, ok := r.cache.Get(key); ok {
			return hit
		}
	}
	resolved := r.resolve(request, issuer)
	if r.cache != nil {
		r.cache.Add(key, resolved)
	}
	return resolved
}

func (r *Resolver) resolve(request, issuer string) ResolvedModule {
	parsed := ParseModuleID(request)
	var out ResolvedModule

	if parsed.Plugin != "" {
		plugin := r.Resolve(parsed.Plugin, "")
		out.PluginID = plugin.ModuleID
		out.PluginPath = plugin.ModulePath
	}
	if parsed.ID == "" {
		return out
	}

	id := r.normalize(parsed.ID, issuer)
	if out.PluginID != "" {
		out.ModuleID = out.PluginID + "!" + id
	} else {
		out.ModuleID = id
	}

	modulePath := r.toURL(id)
	if out.PluginID != PluginText {
		modulePath = withJSExtension(modulePath)
	}
	out.ModulePath = modulePath

	slog.Debug("resolved module", "request", request, "issuer", issuer, "id", out.ModuleID, "path", out.ModulePath)
	return out
}

// normalize resolves relative segments against the issuer and applies map
// overrides, most specific issuer prefix first, then the "*" map.
func (r *Resolver) normalize(name, issuer string) string {
	var baseParts []string
	if issuer != "" {
		if i := strings.LastIndex(issuer, "!"); i >= 0 {
			issuer = issuer[i+1:]
		}
		baseParts = strings.Split(issuer, "/")
	}

	parts := strings.Split(name, "/")
	if strings.HasPrefix(parts[0], ".") && len(baseParts) > 0 {
		parts = append(append([]string{}, baseParts[:len(baseParts)-1]...), parts...)
	}
	parts = trimDots(parts)

	if len(r.mapping) == 0 && len(r.starMap) == 0 {
		return strings.Join(parts, "/")
	}

	var found string
	foundAt := 0
	var star string
	starAt := 0
outer:
	for i := len(parts); i > 0; i-- {
		segment := strings.Join(parts[:i], "/")
		for j := len(baseParts); j > 0; j-- {
			if entries, ok := r.mapping[strings.Join(baseParts[:j], "/")]; ok {
				if to, ok := entries[segment]; ok {
					found, foundAt = to, i
					break outer
				}
			}
		}
		if star == "" {
			if to, ok := r.starMap[segment]; ok {
				star, starAt = to, i
			}
		}
	}
	if found == "" && star != "" {
		found, foundAt = star, starAt
	}
	if found != "" {
		parts = append([]string{found}, parts[foundAt:]...)
	}
	return strings.Join(parts, "/")
}

// toURL applies paths aliasing (longest prefix first) and baseUrl. The
// extension of the last segment is kept and excluded from alias lookup.
func (r *Resolver) toURL(id string) string {
	if urlLike.MatchString(id) {
		return id
	}
	name, ext := splitExt(id)

	syms := strings.Split(name, "/")
	for i := len(syms); i > 0; i-- {
		if target, ok := r.paths[strings.Join(syms[:i], "/")]; ok {
			syms = append([]string{target}, syms[i:]...)
			break
		}
	}
	url := strings.Join(syms, "/") + ext
	if r.baseURL != "" && !strings.HasPrefix(url, "/") && !absoluteURL.MatchString(url) {
		url = r.baseURL + url
	}
	return url
}

func splitExt(id string) (string, string) {
	slash := strings.LastIndex(id, "/")
	dot := strings.LastIndex(id, ".")
	if dot <= slash+1 {
		return id, ""
	}
	return id[:dot], id[dot:]
}

// trimDots removes "." segments and folds ".." into its parent, keeping
// leading ".." segments that have nothing to fold into.
func trimDots(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
				continue
			}
		}
		out = append(out, part)
	}
	return out
}

// normalizeBaseURL keeps only relative base URLs; absolute URLs and rooted
// paths point outside the resolution base.
func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" || strings.HasPrefix(baseURL, "/") || absoluteURL.MatchString(baseURL) {
		return ""
	}
	baseURL = strings.TrimPrefix(path.Clean(baseURL), "./")
	if baseURL == "." || baseURL == "" {
		return ""
	}
	return baseURL + "/"
}

func withJSExtension(p string) string {
	switch path.Ext(p) {
	case ".js", ".html":
		return p
	}
	return p + ".js"
}
