package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

var (
	themeIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+/[A-Za-z0-9_-]+$`)
	targetRe  = regexp.MustCompile(`^(es5|es20[0-9]{2}|esnext)$`)
)

// Validate reports every problem in cfg rather than stopping at the first.
func Validate(cfg *Config) []error {
	var errs []error

	seen := make(map[string]bool, len(cfg.Themes))
	for i, id := range cfg.Themes {
		if !themeIDRe.MatchString(id) {
			errs = append(errs, fmt.Errorf("themes[%d] %q must look like Vendor/name", i, id))
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("themes[%d] %q is listed twice", i, id))
		}
		seen[id] = true
	}

	if cfg.Bundle.MetaDir == "" || filepath.IsAbs(cfg.Bundle.MetaDir) || strings.Contains(cfg.Bundle.MetaDir, "..") {
		errs = append(errs, fmt.Errorf("bundle.meta_dir %q must be a relative directory inside the locale root", cfg.Bundle.MetaDir))
	}
	if cfg.Bundle.CoreName == "" || strings.Contains(cfg.Bundle.CoreName, "/") {
		errs = append(errs, fmt.Errorf("bundle.core_name %q must be a plain file name", cfg.Bundle.CoreName))
	}
	if !strings.HasSuffix(cfg.Bundle.ConfigName, ".js") || strings.Contains(cfg.Bundle.ConfigName, "/") {
		errs = append(errs, fmt.Errorf("bundle.config_name %q must be a plain .js file name", cfg.Bundle.ConfigName))
	}
	if cfg.Bundle.ConfigName == "requirejs-config.js" {
		errs = append(errs, fmt.Errorf("bundle.config_name must not overwrite requirejs-config.js"))
	}

	if !targetRe.MatchString(cfg.Minify.Target) {
		errs = append(errs, fmt.Errorf("minify.target %q must be es5, es20XX or esnext", cfg.Minify.Target))
	}

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("observability.metrics_addr %q: %w", addr, err))
		}
	}

	errs = append(errs, validatePatterns("watch.exclude_dirs", cfg.Watch.ExcludeDirs)...)
	errs = append(errs, validatePatterns("watch.exclude_files", cfg.Watch.ExcludeFiles)...)
	errs = append(errs, validatePatterns("store.exclude_dirs", cfg.Store.ExcludeDirs)...)

	if cfg.Watch.RebuildInterval < cfg.Watch.Debounce {
		errs = append(errs, fmt.Errorf("watch.rebuild_interval %s must not be shorter than watch.debounce %s",
			cfg.Watch.RebuildInterval, cfg.Watch.Debounce))
	}

	return errs
}

func validatePatterns(field string, patterns []string) []error {
	var errs []error
	for i, pattern := range patterns {
		if _, err := glob.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("%s[%d] %q is not a valid pattern: %w", field, i, pattern, err))
		}
	}
	return errs
}

func validate(cfg *Config) error {
	return errors.Join(Validate(cfg)...)
}
