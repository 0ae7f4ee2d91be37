package cli

import (
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"
)

const versionString = "1.0.0"

const usage = `Usage: amdpack [global flags] <command> [flags]

Commands:
  build     bundle themes (default)
  graph     print a theme's dependency graph (DOT or JSON)
  history   print recorded bundle sizes for a theme

Global flags:
`

type globalOptions struct {
	configPath string
	verbose    bool
	traceFile  string
	ui         bool
	version    bool
	command    string
	args       []string
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("empty value")
	}
	*s = append(*s, value)
	return nil
}

func parseGlobal(args []string, stderr io.Writer) (globalOptions, error) {
	var opts globalOptions
	fs := flag.NewFlagSet("amdpack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.configPath, "config", "", "Path to config file (default ./amdpack.toml)")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.StringVar(&opts.traceFile, "trace-file", "", "Also write debug logs to this file")
	fs.BoolVar(&opts.ui, "ui", false, "Show animated progress")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return globalOptions{}, err
	}

	rest := fs.Args()
	opts.command = "build"
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		opts.command = rest[0]
		rest = rest[1:]
	}
	opts.args = rest
	return opts, nil
}

type buildOptions struct {
	themes stringList
	watch  bool
}

func parseBuild(args []string, stderr io.Writer) (buildOptions, error) {
	var opts buildOptions
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Var(&opts.themes, "theme", "Theme to bundle as Vendor/name (repeatable, default all eligible)")
	fs.BoolVar(&opts.watch, "watch", false, "Rebuild themes when their static files change")
	if err := fs.Parse(args); err != nil {
		return buildOptions{}, err
	}
	if fs.NArg() > 0 {
		return buildOptions{}, fmt.Errorf("build: unexpected arguments %v", fs.Args())
	}
	return opts, nil
}

type themeOptions struct {
	theme  string
	format string
	limit  int
}

// parseThemeCommand parses the flags shared by graph and history. formats
// lists the accepted -format values, the first being the default.
func parseThemeCommand(name string, args []string, stderr io.Writer, formats []string, withLimit bool) (themeOptions, error) {
	var opts themeOptions
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.theme, "theme", "", "Theme as Vendor/name")
	fs.StringVar(&opts.format, "format", formats[0], "Output format: "+strings.Join(formats, ", "))
	if withLimit {
		fs.IntVar(&opts.limit, "limit", 10, "Number of most recent builds to show (0 for all)")
	}
	if err := fs.Parse(args); err != nil {
		return themeOptions{}, err
	}
	if strings.TrimSpace(opts.theme) == "" {
		return themeOptions{}, fmt.Errorf("%s requires -theme Vendor/name", name)
	}
	if fs.NArg() > 0 {
		return themeOptions{}, fmt.Errorf("%s: unexpected arguments %v", name, fs.Args())
	}
	if !slices.Contains(formats, opts.format) {
		return themeOptions{}, fmt.Errorf("%s: unsupported format %q", name, opts.format)
	}
	return opts, nil
}
