package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"amdpack/internal/core/errors"

	"github.com/beevik/etree"
	"github.com/gobwas/glob"
)

// DefaultExcludeDirs are directory names skipped while scanning for
// registration.php files.
var DefaultExcludeDirs = []string{"_files", "tests", "node_modules", ".git"}

const (
	AreaFrontend  = "frontend"
	AreaAdminhtml = "adminhtml"
)

// Theme is a registered theme component.
type Theme struct {
	ID       string `json:"id"`
	Vendor   string `json:"vendor"`
	Name     string `json:"name"`
	Area     string `json:"area"`
	Path     string `json:"path"`
	ParentID string `json:"parentID,omitempty"`
}

// Module is a registered module component.
type Module struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Components holds every registered theme and module keyed by ID.
type Components struct {
	Themes  map[string]Theme
	Modules map[string]Module
}

// Store is the discovered state of one host application install.
type Store struct {
	Root           string
	EnabledModules []string
	Components     Components
	DeployedThemes []string
}

// Load discovers everything under root the pipeline needs.
func Load(root string, excludeDirs []string) (*Store, error) {
	enabled, err := EnabledModules(root)
	if err != nil {
		return nil, err
	}
	components, err := FindComponents(root, excludeDirs)
	if err != nil {
		return nil, err
	}
	deployed, err := DeployedThemes(root)
	if err != nil {
		return nil, err
	}
	return &Store{
		Root:           root,
		EnabledModules: enabled,
		Components:     components,
		DeployedThemes: deployed,
	}, nil
}

// FindRoot walks upward from dir until it finds the install root.
func FindRoot(dir string) (string, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	for {
		if isRoot(current) {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", (&errors.DomainError{
				Code:    errors.CodeNotFound,
				Message: "could not find an application root (a directory containing app, vendor and pub)",
			}).WithContext(errors.CtxPath, dir)
		}
		current = parent
	}
}

func isRoot(dir string) bool {
	for _, name := range []string{"app", "vendor", "pub"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

var (
	modulesShortRe = regexp.MustCompile(`(?s)'modules'\s*=>\s*\[(.+)\]`)
	modulesLongRe  = regexp.MustCompile(`(?s)'modules'\s*=>\s*array\s*\((.+)\)`)
	moduleEntryRe  = regexp.MustCompile(`'(\w+)'\s*=>\s*([01])`)
)

// EnabledModules lists the modules flagged 1 in app/etc/config.php, in
// file order.
func EnabledModules(root string) ([]string, error) {
	configPath := filepath.Join(root, "app", "etc", "config.php")
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, (&errors.DomainError{
			Code:    errors.CodeNotFound,
			Message: "failed to read the list of enabled modules",
			Err:     err,
		}).WithContext(errors.CtxPath, configPath)
	}

	text := string(raw)
	body := ""
	if m := modulesShortRe.FindStringSubmatch(text); m != nil {
		body = m[1]
	} else if m := modulesLongRe.FindStringSubmatch(text); m != nil {
		body = m[1]
	}

	var enabled []string
	for _, m := range moduleEntryRe.FindAllStringSubmatch(body, -1) {
		if m[2] == "1" {
			enabled = append(enabled, m[1])
		}
	}
	return enabled, nil
}

var registerRe = regexp.MustCompile(`::register\((.*?)\);`)

// FindComponents scans app/ and vendor/ for registration.php files and
// collects every registered module and theme.
func FindComponents(root string, excludeDirs []string) (Components, error) {
	if excludeDirs == nil {
		excludeDirs = DefaultExcludeDirs
	}
	excludes := make([]glob.Glob, 0, len(excludeDirs))
	for _, pattern := range excludeDirs {
		g, err := glob.Compile(pattern)
		if err != nil {
			return Components{}, errors.Wrap(err, errors.CodeConfig, "invalid store exclude pattern "+pattern)
		}
		excludes = append(excludes, g)
	}

	components := Components{
		Themes:  make(map[string]Theme),
		Modules: make(map[string]Module),
	}
	for _, top := range []string{"app", "vendor"} {
		dir := filepath.Join(root, top)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		files, err := scanRegistrations(dir, excludes)
		if err != nil {
			return Components{}, err
		}
		for _, file := range files {
			if err := registerFile(root, file, excludes, &components); err != nil {
				return Components{}, err
			}
		}
	}
	return components, nil
}

func scanRegistrations(dir string, excludes []glob.Glob) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && matchesAny(excludes, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == "registration.php" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func matchesAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func registerFile(root, file string, excludes []glob.Glob, components *Components) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil
	}
	compact := strings.Join(strings.Fields(string(raw)), "")
	m := registerRe.FindStringSubmatch(compact)
	if m == nil {
		return nil
	}
	args := strings.Split(m[1], ",")
	if len(args) < 3 {
		return nil
	}

	kind := args[0]
	if i := strings.LastIndex(kind, "::"); i >= 0 {
		kind = kind[i+2:]
	}
	name := strings.Trim(args[1], `'"`)
	location := registrationLocation(args[2], filepath.Dir(file))

	if hasExcludedSegment(root, location, excludes) {
		return nil
	}
	if info, err := os.Stat(location); err != nil || !info.IsDir() {
		return nil
	}

	switch kind {
	case "MODULE":
		components.Modules[name] = Module{ID: name, Path: location}
	case "THEME":
		theme, err := themeFromRegistration(name, location)
		if err != nil {
			return err
		}
		components.Themes[theme.ID] = theme
	}
	return nil
}

// registrationLocation evaluates concatenations of __DIR__ and quoted
// strings, such as __DIR__ . '/sub'.
func registrationLocation(expr, dir string) string {
	var sb strings.Builder
	for i := 0; i < len(expr); {
		switch c := expr[i]; {
		case c == '\'' || c == '"':
			end := strings.IndexByte(expr[i+1:], c)
			if end < 0 {
				sb.WriteString(expr[i+1:])
				i = len(expr)
				continue
			}
			sb.WriteString(expr[i+1 : i+1+end])
			i += end + 2
		case strings.HasPrefix(expr[i:], "__DIR__"):
			sb.WriteString(dir)
			i += len("__DIR__")
		default:
			i++
		}
	}
	return filepath.Clean(sb.String())
}

func hasExcludedSegment(root, location string, excludes []glob.Glob) bool {
	if rel, err := filepath.Rel(root, location); err == nil {
		location = rel
	}
	for _, segment := range strings.Split(filepath.ToSlash(location), "/") {
		if segment != "" && matchesAny(excludes, segment) {
			return true
		}
	}
	return false
}

func themeFromRegistration(fullID, location string) (Theme, error) {
	parts := strings.SplitN(fullID, "/", 3)
	if len(parts) != 3 {
		return Theme{}, (&errors.DomainError{
			Code:    errors.CodeValidationError,
			Message: fmt.Sprintf("malformed theme registration %q", fullID),
		}).WithContext(errors.CtxPath, location)
	}
	theme := Theme{
		ID:     parts[1] + "/" + parts[2],
		Area:   parts[0],
		Vendor: parts[1],
		Name:   parts[2],
		Path:   location,
	}
	parent, err := themeParent(location)
	if err != nil {
		return Theme{}, err
	}
	theme.ParentID = parent
	return theme, nil
}

func themeParent(themeDir string) (string, error) {
	xmlPath := filepath.Join(themeDir, "theme.xml")
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(xmlPath); err != nil {
		return "", (&errors.DomainError{
			Code:    errors.CodeNotFound,
			Message: "failed to read theme.xml",
			Err:     err,
		}).WithContext(errors.CtxPath, xmlPath)
	}
	root := doc.Root()
	if root == nil {
		return "", nil
	}
	parent := root.SelectElement("parent")
	if parent == nil {
		return "", nil
	}
	return strings.TrimSpace(parent.Text()), nil
}

var themeNameRe = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)

// DeployedThemes lists Vendor/name IDs with a directory under pub/static.
func DeployedThemes(root string) ([]string, error) {
	var ids []string
	for _, area := range []string{AreaFrontend, AreaAdminhtml} {
		areaDir := filepath.Join(root, "pub", "static", area)
		vendors, err := os.ReadDir(areaDir)
		if err != nil {
			continue
		}
		for _, vendor := range vendors {
			if !vendor.IsDir() {
				continue
			}
			names, err := os.ReadDir(filepath.Join(areaDir, vendor.Name()))
			if err != nil {
				continue
			}
			for _, name := range names {
				if name.IsDir() && themeNameRe.MatchString(name.Name()) {
					ids = append(ids, vendor.Name()+"/"+name.Name())
				}
			}
		}
	}
	return ids, nil
}

var localeRe = regexp.MustCompile(`(?i)^[a-z]{2}(?:_[a-z]{2})?$`)

// Locales lists the deployed locale directories for a theme.
func Locales(root string, theme Theme) ([]string, error) {
	dir := filepath.Join(root, StaticDir(theme))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, (&errors.DomainError{
			Code:    errors.CodeNotFound,
			Message: "theme has no deployed static files",
			Err:     err,
		}).WithContext(errors.CtxTheme, theme.ID)
	}
	var locales []string
	for _, entry := range entries {
		if entry.IsDir() && localeRe.MatchString(entry.Name()) {
			locales = append(locales, entry.Name())
		}
	}
	return locales, nil
}

// StaticDir is the theme's deployed static directory relative to root.
func StaticDir(theme Theme) string {
	return filepath.Join("pub", "static", theme.Area, theme.Vendor, theme.Name)
}

// ThemeHierarchy returns theme followed by its ancestors. A parent that is
// not registered ends the chain.
func ThemeHierarchy(theme Theme, themes map[string]Theme) []Theme {
	hierarchy := []Theme{theme}
	seen := map[string]bool{theme.ID: true}
	current := theme
	for current.ParentID != "" {
		parent, ok := themes[current.ParentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		hierarchy = append(hierarchy, parent)
		current = parent
	}
	return hierarchy
}

// EligibleThemes lists deployed frontend themes other than Magento/blank.
func EligibleThemes(s *Store) []string {
	deployed := make(map[string]bool, len(s.DeployedThemes))
	for _, id := range s.DeployedThemes {
		deployed[id] = true
	}
	var ids []string
	for id, theme := range s.Components.Themes {
		if IsEligible(theme) && deployed[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// IsEligible reports the theme-level rules; deployment is checked separately.
func IsEligible(theme Theme) bool {
	return theme.Area == AreaFrontend && theme.ID != "Magento/blank"
}
