package cli

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"amdpack/internal/core/app"
	"amdpack/internal/core/config"
	"amdpack/internal/core/ports"
	"amdpack/internal/data/history"
	"amdpack/internal/data/store"
	"amdpack/internal/engine/parser"
	"amdpack/internal/shared/observability"
	"amdpack/internal/ui/report"
)

// Run executes the CLI and returns the process exit code.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdout, os.Stderr)
}

type runtimeEnv struct {
	opts   globalOptions
	cfg    *config.Config
	store  *store.Store
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseGlobal(args, stderr)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if opts.version {
		fmt.Fprintf(stdout, "amdpack v%s\n", versionString)
		return 0
	}

	cleanupLogs, err := configureLogging(stderr, opts.verbose, opts.ui, opts.traceFile)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	defer cleanupLogs()

	env, err := newRuntimeEnv(opts, stdout, stderr)
	if err != nil {
		printError(stderr, err)
		return 1
	}

	shutdownTracing, err := observability.InitTracing(ctx, env.cfg.Observability.OTLPEndpoint, versionString)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				slog.Warn("flushing traces", "error", err)
			}
		}()
	}

	if addr := env.cfg.Observability.MetricsAddr; addr != "" {
		server := NewMetricsServer(addr)
		if err := server.Start(); err != nil {
			printError(stderr, fmt.Errorf("start metrics server: %w", err))
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(shutdownCtx)
		}()
	}

	switch opts.command {
	case "build":
		return env.runBuild(ctx)
	case "graph":
		return env.runGraph(ctx)
	case "history":
		return env.runHistory()
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", opts.command)
		fmt.Fprint(stderr, usage)
		return 2
	}
}

// newRuntimeEnv loads config and discovers the store. Without store_root the
// store is found by walking upward from the working directory.
func newRuntimeEnv(opts globalOptions, stdout, stderr io.Writer) (*runtimeEnv, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("detect working directory: %w", err)
	}
	start := cwd
	if cfg.StoreRoot != "" {
		start = config.ResolveRelative(cwd, cfg.StoreRoot)
	}
	root, err := store.FindRoot(start)
	if err != nil {
		return nil, err
	}
	slog.Debug("using store root", "root", root)

	s, err := store.Load(root, cfg.Store.ExcludeDirs)
	if err != nil {
		return nil, err
	}
	return &runtimeEnv{opts: opts, cfg: cfg, store: s, stdout: stdout, stderr: stderr}, nil
}

func (e *runtimeEnv) newOptimizer(reporter ports.Reporter, rec app.HistoryRecorder) (*app.Optimizer, error) {
	return app.New(app.Options{
		Config:    e.cfg,
		Store:     e.store,
		Extractor: parser.NewExtractor(),
		Reporter:  reporter,
		History:   rec,
	})
}

func (e *runtimeEnv) openHistory() (*history.Store, error) {
	return history.Open(e.cfg.HistoryPath(e.store.Root))
}

func (e *runtimeEnv) runBuild(ctx context.Context) int {
	opts, err := parseBuild(e.opts.args, e.stderr)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(e.stderr, err)
		return 2
	}

	var rec app.HistoryRecorder
	if e.cfg.History.Enabled {
		hs, err := e.openHistory()
		if err != nil {
			slog.Warn("history disabled", "error", err)
		} else {
			defer hs.Close()
			rec = hs
		}
	}

	var reporter ports.Reporter = newLineReporter(e.stdout)
	stopReporter := func() {}
	if e.opts.ui {
		sr := startSpinnerReporter(e.stderr)
		reporter = sr
		stopReporter = sr.Stop
	}

	o, err := e.newOptimizer(reporter, rec)
	if err != nil {
		stopReporter()
		printError(e.stderr, err)
		return 1
	}

	themes := []string(opts.themes)
	if len(themes) == 0 {
		themes = e.cfg.Themes
	}
	if len(themes) == 0 {
		themes = o.EligibleThemes()
	}
	if len(themes) == 0 {
		stopReporter()
		fmt.Fprintln(e.stderr, warnStyle.Render("No eligible themes found"))
		return 1
	}
	if err := o.ValidateThemes(themes); err != nil {
		stopReporter()
		printError(e.stderr, err)
		return 1
	}

	results := o.OptimizeThemes(ctx, themes)
	stopReporter()
	code := 0
	if !printResults(e.stdout, results) {
		code = 1
	}
	if !opts.watch {
		return code
	}

	fmt.Fprintln(e.stdout, statusStyle.Render("Watching for changes, press Ctrl+C to stop"))
	if err := o.Watch(ctx, themes, func(results []app.ThemeResult) {
		printResults(e.stdout, results)
	}); err != nil {
		printError(e.stderr, err)
		return 1
	}
	return code
}

func (e *runtimeEnv) runGraph(ctx context.Context) int {
	opts, err := parseThemeCommand("graph", e.opts.args, e.stderr, []string{report.FormatDOT, report.FormatJSON}, false)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(e.stderr, err)
		return 2
	}
	o, err := e.newOptimizer(nil, nil)
	if err != nil {
		printError(e.stderr, err)
		return 1
	}
	g, err := o.ThemeGraph(ctx, opts.theme)
	if err != nil {
		printError(e.stderr, err)
		return 1
	}
	if err := report.RenderGraph(e.stdout, opts.format, g); err != nil {
		printError(e.stderr, err)
		return 1
	}
	return 0
}

func (e *runtimeEnv) runHistory() int {
	opts, err := parseThemeCommand("history", e.opts.args, e.stderr, []string{report.FormatTable, report.FormatTSV, report.FormatJSON}, true)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(e.stderr, err)
		return 2
	}
	hs, err := e.openHistory()
	if err != nil {
		printError(e.stderr, err)
		return 1
	}
	defer hs.Close()

	records, err := hs.Load(opts.theme, opts.limit)
	if err != nil {
		printError(e.stderr, err)
		return 1
	}
	if len(records) == 0 && opts.format == report.FormatTable {
		fmt.Fprintf(e.stdout, "No recorded builds for %s\n", opts.theme)
		return 0
	}
	if err := report.RenderHistory(e.stdout, opts.format, records); err != nil {
		printError(e.stderr, err)
		return 1
	}
	return 0
}
