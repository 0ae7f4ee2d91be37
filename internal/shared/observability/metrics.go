package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "amdpack_parsing_seconds",
		Help:    "Time spent extracting dependencies from one source.",
		Buckets: prometheus.DefBuckets,
	}, []string{"extractor"})

	ModulesTraced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amdpack_modules_traced_total",
		Help: "Total number of modules read and expanded by the dependency tracer.",
	}, []string{"theme"})

	UnreadableDependencies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amdpack_unreadable_dependencies_total",
		Help: "Total number of dependencies that could not be read during tracing.",
	}, []string{"theme"})

	BundleBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "amdpack_bundle_bytes",
		Help: "Size of the last written artifact, before and after minification.",
	}, []string{"theme", "artifact", "stage"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "amdpack_stage_seconds",
		Help:    "Time spent in each stage of the theme pipeline.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	ThemeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amdpack_theme_results_total",
		Help: "Total number of optimized themes by outcome.",
	}, []string{"outcome"})

	MinifyQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amdpack_minify_queue_depth",
		Help: "Current number of minification jobs waiting for a worker.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amdpack_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)
