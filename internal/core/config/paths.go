package config

import (
	"path/filepath"
	"strings"
)

// ResolveRelative joins path onto base unless path is already absolute.
func ResolveRelative(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, path))
}

// HistoryPath places a relative history database under the store root.
func (c *Config) HistoryPath(storeRoot string) string {
	return ResolveRelative(storeRoot, c.History.Path)
}
