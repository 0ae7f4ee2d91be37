// Package app runs the per-theme bundling pipeline over a discovered store.
package app

import (
	"fmt"
	"sort"
	"strings"

	"amdpack/internal/core/config"
	"amdpack/internal/core/errors"
	"amdpack/internal/core/ports"
	"amdpack/internal/data/history"
	"amdpack/internal/data/store"
	"amdpack/internal/engine/graph"
	"amdpack/internal/engine/minify"
	"amdpack/internal/shared/util"
)

// Extractor reads AMD deps out of scripts and templates.
type Extractor interface {
	graph.DepsExtractor
	store.TemplateExtractor
}

// HistoryRecorder persists one row per successful theme build.
type HistoryRecorder interface {
	Save(rec history.Record) (history.Record, error)
}

// MinifierFactory builds the minifier shared by one batch of themes.
type MinifierFactory func() (ports.Minifier, error)

type Options struct {
	Config    *config.Config
	Store     *store.Store
	Extractor Extractor
	Reader    ports.FileReader
	Writer    ports.FileWriter
	Reporter  ports.Reporter
	History   HistoryRecorder
	Minifier  MinifierFactory
	Clock     ports.Clock
}

// Optimizer owns everything a theme build needs. It is safe for
// concurrent use.
type Optimizer struct {
	cfg       *config.Config
	store     *store.Store
	extractor Extractor
	reader    ports.FileReader
	writer    ports.FileWriter
	reporter  ports.Reporter
	history   HistoryRecorder
	minifier  MinifierFactory
	clock     ports.Clock
}

func New(opts Options) (*Optimizer, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("app: store is required")
	}
	if opts.Extractor == nil {
		return nil, fmt.Errorf("app: extractor is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	o := &Optimizer{
		cfg:       cfg,
		store:     opts.Store,
		extractor: opts.Extractor,
		reader:    opts.Reader,
		writer:    opts.Writer,
		reporter:  opts.Reporter,
		history:   opts.History,
		minifier:  opts.Minifier,
		clock:     opts.Clock,
	}
	if o.reader == nil {
		o.reader = util.OSFileSystem{}
	}
	if o.writer == nil {
		o.writer = util.OSFileSystem{}
	}
	if o.reporter == nil {
		o.reporter = ports.NopReporter{}
	}
	if o.minifier == nil {
		factory, err := DefaultMinifier(cfg)
		if err != nil {
			return nil, err
		}
		o.minifier = factory
	}
	return o, nil
}

// DefaultMinifier returns an esbuild pool factory, or a passthrough when
// minification is disabled.
func DefaultMinifier(cfg *config.Config) (MinifierFactory, error) {
	if !cfg.MinifyEnabled() {
		return func() (ports.Minifier, error) { return minify.Passthrough{}, nil }, nil
	}
	target, err := minify.ParseTarget(cfg.Minify.Target)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfig, "invalid minify target")
	}
	workers := cfg.Minify.Workers
	return func() (ports.Minifier, error) {
		return minify.NewPool(workers, target), nil
	}, nil
}

func (o *Optimizer) Config() *config.Config { return o.cfg }

func (o *Optimizer) Store() *store.Store { return o.store }

// EligibleThemes lists the themes that can be optimized.
func (o *Optimizer) EligibleThemes() []string {
	return store.EligibleThemes(o.store)
}

// ValidateThemes checks every requested ID at once and reports all the
// invalid ones in a single error.
func (o *Optimizer) ValidateThemes(ids []string) error {
	eligible := make(map[string]bool)
	for _, id := range o.EligibleThemes() {
		eligible[id] = true
	}
	var invalid []string
	for _, id := range ids {
		if !eligible[id] {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	sort.Strings(invalid)

	var msg strings.Builder
	fmt.Fprintf(&msg, "Cannot optimize %d theme(s): %s\n", len(invalid), strings.Join(invalid, ", "))
	msg.WriteString("A theme is eligible when it is registered, belongs to the frontend area, ")
	msg.WriteString("is not Magento/blank, and has been deployed under pub/static.")
	if all := o.EligibleThemes(); len(all) > 0 {
		fmt.Fprintf(&msg, "\nEligible themes: %s", strings.Join(all, ", "))
	}
	return errors.New(errors.CodeNotSupported, msg.String())
}
