package store

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"amdpack/internal/engine/parser"

	"github.com/beevik/etree"
)

// TemplateExtractor reads AMD deps out of a markup template.
type TemplateExtractor interface {
	TemplateDeps(source []byte) parser.ParserResult
}

// HandleDeps maps layout handles to the deps their templates request.
// Handles keeps first-seen order.
type HandleDeps struct {
	Handles []string
	Deps    map[string][]string
}

// For returns the deps of one handle, nil when the handle is unknown.
func (h HandleDeps) For(handle string) []string {
	return h.Deps[handle]
}

// LayoutFiles lists every layout XML file eligible for the theme at the
// head of hierarchy, module files first.
func LayoutFiles(hierarchy []Theme, enabled []string, modules map[string]Module) []string {
	if len(hierarchy) == 0 {
		return nil
	}
	area := hierarchy[0].Area
	var files []string
	for _, name := range enabled {
		mod, ok := modules[name]
		if !ok {
			continue
		}
		files = append(files, xmlFiles(filepath.Join(mod.Path, "view", area, "layout"))...)
		files = append(files, xmlFiles(filepath.Join(mod.Path, "view", "base", "layout"))...)
	}
	for _, theme := range hierarchy {
		entries, err := os.ReadDir(theme.Path)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				files = append(files, xmlFiles(filepath.Join(theme.Path, entry.Name(), "layout"))...)
			}
		}
	}
	return files
}

func xmlFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".xml") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files
}

var templateAttrRe = regexp.MustCompile(`template="(.*?)"`)

// templateAttributes collects template attribute values in document order.
// Files that are not well-formed XML are scanned textually.
func templateAttributes(raw []byte) []string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil || doc.Root() == nil {
		var values []string
		for _, m := range templateAttrRe.FindAllSubmatch(raw, -1) {
			values = append(values, string(m[1]))
		}
		return values
	}
	var values []string
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		if attr := el.SelectAttr("template"); attr != nil {
			values = append(values, attr.Value)
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	walk(doc.Root())
	return values
}

// TemplatesForLayout resolves the fully qualified Module::file templates a
// layout file references. Lookup order is the theme hierarchy, then the
// module's area templates, then its base templates. Templates that do not
// resolve are dropped.
func TemplatesForLayout(layoutFile string, hierarchy []Theme, modules map[string]Module) []string {
	if len(hierarchy) == 0 {
		return nil
	}
	raw, err := os.ReadFile(layoutFile)
	if err != nil {
		return nil
	}
	var templates []string
	for _, value := range templateAttributes(raw) {
		moduleName, file, ok := strings.Cut(value, "::")
		if !ok || moduleName == "" || file == "" {
			continue
		}
		candidates := make([]string, 0, len(hierarchy)+2)
		for _, theme := range hierarchy {
			candidates = append(candidates, filepath.Join(theme.Path, moduleName, "templates", file))
		}
		if mod, ok := modules[moduleName]; ok {
			candidates = append(candidates,
				filepath.Join(mod.Path, "view", hierarchy[0].Area, "templates", file),
				filepath.Join(mod.Path, "view", "base", "templates", file))
		}
		for _, candidate := range candidates {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				templates = append(templates, candidate)
				break
			}
		}
	}
	return templates
}

// LayoutDeps groups template deps by layout handle, the layout file name
// without its .xml extension.
func LayoutDeps(hierarchy []Theme, enabled []string, modules map[string]Module, extractor TemplateExtractor) HandleDeps {
	result := HandleDeps{Deps: make(map[string][]string)}
	seenTemplates := make(map[string]map[string]bool)
	seenDeps := make(map[string]map[string]bool)

	for _, layoutFile := range LayoutFiles(hierarchy, enabled, modules) {
		handle := strings.TrimSuffix(filepath.Base(layoutFile), ".xml")
		if _, ok := seenTemplates[handle]; !ok {
			seenTemplates[handle] = make(map[string]bool)
			seenDeps[handle] = make(map[string]bool)
			result.Handles = append(result.Handles, handle)
			result.Deps[handle] = []string{}
		}
		for _, template := range TemplatesForLayout(layoutFile, hierarchy, modules) {
			if seenTemplates[handle][template] {
				continue
			}
			seenTemplates[handle][template] = true

			source, err := os.ReadFile(template)
			if err != nil {
				slog.Debug("skipping unreadable template", "path", template, "error", err)
				continue
			}
			parsed := extractor.TemplateDeps(source)
			if parsed.IncompleteAnalysis {
				slog.Debug("template deps may be incomplete", "path", template)
			}
			for _, dep := range parsed.Deps {
				if seenDeps[handle][dep] {
					continue
				}
				seenDeps[handle][dep] = true
				result.Deps[handle] = append(result.Deps[handle], dep)
			}
		}
	}
	return result
}
