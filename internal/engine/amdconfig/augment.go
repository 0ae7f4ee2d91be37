package amdconfig

import (
	"encoding/json"
	"strings"
)

// BundleDecl names a bundle (as the loader will request it) and the module
// IDs it defines.
type BundleDecl struct {
	Name    string
	Modules []string
}

// AugmentWithBundles prepends a bundles registration to the raw config so the
// loader satisfies bundled module IDs from their bundle instead of fetching
// each one.
func AugmentWithBundles(raw string, decls []BundleDecl) string {
	var b strings.Builder
	b.WriteString("(function() {\n")
	b.WriteString("    // Injected by amdpack: maps each bundle to the modules it defines.\n")
	b.WriteString("    require.config({\n")
	b.WriteString("        bundles: {\n")
	for i, decl := range decls {
		name, _ := json.Marshal(decl.Name)
		modules := decl.Modules
		if modules == nil {
			modules = []string{}
		}
		list, _ := json.MarshalIndent(modules, "            ", "    ")
		b.WriteString("            ")
		b.Write(name)
		b.WriteString(": ")
		b.Write(list)
		if i < len(decls)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("        }\n")
	b.WriteString("    });\n")
	b.WriteString("})();\n")
	b.WriteString(raw)
	return b.String()
}
