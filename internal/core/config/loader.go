package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	domainerrors "amdpack/internal/core/errors"

	"github.com/BurntSushi/toml"
)

// Load reads a config file. A missing file at the default location yields
// the built-in defaults; any other missing path is an error.
func Load(path string) (*Config, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultFile
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, (&domainerrors.DomainError{
				Code:    domainerrors.CodeConfig,
				Message: "failed to parse " + path,
				Err:     err,
			}).WithContext(domainerrors.CtxPath, path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return nil, (&domainerrors.DomainError{
				Code:    domainerrors.CodeConfig,
				Message: fmt.Sprintf("unknown keys in %s: %s", path, strings.Join(keys, ", ")),
			}).WithContext(domainerrors.CtxPath, path)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, (&domainerrors.DomainError{
			Code:    domainerrors.CodeConfig,
			Message: "failed to read " + path,
			Err:     err,
		}).WithContext(domainerrors.CtxPath, path)
	}

	ApplyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, (&domainerrors.DomainError{
			Code:    domainerrors.CodeConfig,
			Message: "invalid configuration",
			Err:     err,
		}).WithContext(domainerrors.CtxPath, path)
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	normalize(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Bundle.MetaDir) == "" {
		cfg.Bundle.MetaDir = "balerbundles"
	}
	if strings.TrimSpace(cfg.Bundle.CoreName) == "" {
		cfg.Bundle.CoreName = "core-bundle"
	}
	if strings.TrimSpace(cfg.Bundle.ConfigName) == "" {
		cfg.Bundle.ConfigName = "requirejs-bundle-config.js"
	}
	if cfg.Bundle.Exclude == nil {
		cfg.Bundle.Exclude = []string{"text!js-translation.json"}
	}
	if cfg.Bundle.NeverBundle == nil {
		cfg.Bundle.NeverBundle = []string{"prototype"}
	}
	if cfg.Bundle.LayoutBundles == nil {
		enabled := true
		cfg.Bundle.LayoutBundles = &enabled
	}

	if cfg.Trace.ReadConcurrency <= 0 {
		cfg.Trace.ReadConcurrency = 64
	}

	if cfg.Minify.Enabled == nil {
		enabled := true
		cfg.Minify.Enabled = &enabled
	}
	if cfg.Minify.Workers <= 0 {
		cfg.Minify.Workers = runtime.NumCPU()
	}
	if strings.TrimSpace(cfg.Minify.Target) == "" {
		cfg.Minify.Target = "es2015"
	}

	if cfg.Interpreter.Timeout <= 0 {
		cfg.Interpreter.Timeout = 10 * time.Second
	}

	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = ".amdpack/history.db"
	}

	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Watch.RebuildInterval <= 0 {
		cfg.Watch.RebuildInterval = 2 * time.Second
	}
	if cfg.Watch.ExcludeFiles == nil {
		cfg.Watch.ExcludeFiles = []string{"*.map", "*.swp", "*~"}
	}

	if cfg.Store.ExcludeDirs == nil {
		cfg.Store.ExcludeDirs = []string{"_files", "tests", "node_modules", ".git"}
	}
}

func normalize(cfg *Config) {
	cfg.StoreRoot = strings.TrimSpace(cfg.StoreRoot)
	cfg.Themes = trimAll(cfg.Themes)
	cfg.Bundle.MetaDir = strings.Trim(strings.TrimSpace(cfg.Bundle.MetaDir), "/")
	cfg.Bundle.CoreName = strings.TrimSuffix(strings.TrimSpace(cfg.Bundle.CoreName), ".js")
	cfg.Bundle.ConfigName = strings.TrimSpace(cfg.Bundle.ConfigName)
	cfg.Minify.Target = strings.ToLower(strings.TrimSpace(cfg.Minify.Target))
	cfg.History.Path = strings.TrimSpace(cfg.History.Path)
	cfg.Observability.MetricsAddr = strings.TrimSpace(cfg.Observability.MetricsAddr)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)
	cfg.Watch.ExcludeDirs = trimAll(cfg.Watch.ExcludeDirs)
	cfg.Watch.ExcludeFiles = trimAll(cfg.Watch.ExcludeFiles)
	cfg.Store.ExcludeDirs = trimAll(cfg.Store.ExcludeDirs)
}

func trimAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
