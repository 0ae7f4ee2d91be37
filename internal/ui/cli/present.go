package cli

import (
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"time"

	"amdpack/internal/core/app"
	"amdpack/internal/core/errors"
	"amdpack/internal/ui/report"
)

// printError shows known failures as a plain message and anything else
// with full detail and a stack.
func printError(w io.Writer, err error) {
	if de, ok := errors.AsDomain(err); ok {
		fmt.Fprintln(w, errorStyle.Render(de.Summary()))
		return
	}
	fmt.Fprintf(w, "%s\n%+v\n%s", errorStyle.Render("Unexpected error"), err, debug.Stack())
}

func formatSize(s app.SizeStat) string {
	if s.Before == s.After {
		return report.FormatBytes(s.After)
	}
	return fmt.Sprintf("%s -> %s", report.FormatBytes(s.Before), report.FormatBytes(s.After))
}

// printResults writes a per-theme summary and reports whether every theme
// succeeded.
func printResults(w io.Writer, results []app.ThemeResult) bool {
	ok := true
	for _, r := range results {
		if !r.Success {
			ok = false
			fmt.Fprintf(w, "%s %s\n", themeStyle.Render(r.ThemeID), errorStyle.Render("failed"))
			printError(w, r.Err)
			continue
		}
		out := r.Result
		fmt.Fprintf(w, "%s %s %s\n", themeStyle.Render(r.ThemeID), successStyle.Render("bundled"),
			statusStyle.Render(fmt.Sprintf("(%d modules, %s)", out.Graph.Len(), out.Duration.Round(time.Millisecond))))
		for _, b := range out.Bundles {
			fmt.Fprintf(w, "  %s: %d modules, %s\n", b.Name, len(b.Modules), formatSize(b.Size))
			if len(b.Skipped) > 0 {
				fmt.Fprintf(w, "    skipped: %s\n", strings.Join(b.Skipped, ", "))
			}
			if len(b.InvalidShims) > 0 {
				fmt.Fprintf(w, "    %s\n", warnStyle.Render("shim config ignored for AMD modules: "+strings.Join(b.InvalidShims, ", ")))
			}
		}
		fmt.Fprintf(w, "  config: %s\n", formatSize(out.Config))
		if len(out.Warnings) > 0 {
			fmt.Fprintf(w, "  %s\n", warnStyle.Render(fmt.Sprintf("%d unreadable dependencies", len(out.Warnings))))
		}
	}
	return ok
}
