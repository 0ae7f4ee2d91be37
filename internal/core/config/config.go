// Package config loads amdpack.toml.
package config

import "time"

// DefaultFile is looked up in the working directory when no -config is given.
const DefaultFile = "amdpack.toml"

type Config struct {
	StoreRoot     string        `toml:"store_root"`
	Themes        []string      `toml:"themes"`
	Bundle        Bundle        `toml:"bundle"`
	Trace         Trace         `toml:"trace"`
	Minify        Minify        `toml:"minify"`
	Interpreter   Interpreter   `toml:"interpreter"`
	History       History       `toml:"history"`
	Observability Observability `toml:"observability"`
	Watch         Watch         `toml:"watch"`
	Store         Store         `toml:"store"`
}

type Bundle struct {
	MetaDir       string   `toml:"meta_dir"`
	CoreName      string   `toml:"core_name"`
	ConfigName    string   `toml:"config_name"`
	Exclude       []string `toml:"exclude"`
	NeverBundle   []string `toml:"never_bundle"`
	LayoutBundles *bool    `toml:"layout_bundles"`
}

type Trace struct {
	ReadConcurrency int `toml:"read_concurrency"`
}

type Minify struct {
	Enabled *bool `toml:"enabled"`
	// Workers is the pool size; zero means one per CPU.
	Workers int    `toml:"workers"`
	Target  string `toml:"target"`
}

type Interpreter struct {
	Timeout time.Duration `toml:"timeout"`
}

type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Observability struct {
	MetricsAddr  string `toml:"metrics_addr"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

type Watch struct {
	Debounce        time.Duration `toml:"debounce"`
	RebuildInterval time.Duration `toml:"rebuild_interval"`
	ExcludeDirs     []string      `toml:"exclude_dirs"`
	ExcludeFiles    []string      `toml:"exclude_files"`
}

type Store struct {
	ExcludeDirs []string `toml:"exclude_dirs"`
}

// LayoutBundlesEnabled reports bundle.layout_bundles after defaults.
func (c *Config) LayoutBundlesEnabled() bool {
	return c.Bundle.LayoutBundles == nil || *c.Bundle.LayoutBundles
}

// MinifyEnabled reports minify.enabled after defaults.
func (c *Config) MinifyEnabled() bool {
	return c.Minify.Enabled == nil || *c.Minify.Enabled
}
