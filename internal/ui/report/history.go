// Package report renders build telemetry and graphs for the terminal and
// for other tools.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"amdpack/internal/data/history"
	"amdpack/internal/engine/graph"
)

const (
	FormatTable = "table"
	FormatTSV   = "tsv"
	FormatJSON  = "json"
	FormatDOT   = "dot"
)

// RenderHistory writes records, oldest first, in the requested format.
func RenderHistory(w io.Writer, format string, records []history.Record) error {
	deltas := history.Trend(records)
	switch format {
	case "", FormatTable:
		return renderHistoryTable(w, deltas)
	case FormatTSV:
		_, err := io.WriteString(w, RenderHistoryTSV(deltas))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(historyJSON(deltas))
	default:
		return fmt.Errorf("unsupported history format %q", format)
	}
}

func renderHistoryTable(w io.Writer, deltas []history.Delta) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tLOCALE\tMODULES\tΔ\tBUNDLES\tCORE\tΔ CORE\tSAVED\tWARNINGS")
	for _, d := range deltas {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%+d\t%d\t%s\t%+d\t%.1f%%\t%d\n",
			d.Timestamp.Local().Format(time.DateTime),
			d.Locale,
			d.ModuleCount,
			d.ModuleDelta,
			d.BundleCount,
			FormatBytes(d.CoreBytesAfter),
			d.CoreBytesDelta,
			d.Savings()*100,
			d.WarningCount,
		)
	}
	return tw.Flush()
}

func RenderHistoryTSV(deltas []history.Delta) string {
	var buf strings.Builder
	buf.WriteString("Timestamp\tRunID\tLocale\tModules\tWarnings\tBundles\tInvalidShims\tCoreBefore\tCoreAfter\tConfigBefore\tConfigAfter\tDeltaModules\tDeltaCoreBytes\n")
	for _, d := range deltas {
		buf.WriteString(fmt.Sprintf(
			"%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			d.Timestamp.UTC().Format(time.RFC3339),
			d.RunID,
			d.Locale,
			d.ModuleCount,
			d.WarningCount,
			d.BundleCount,
			d.InvalidShimCount,
			d.CoreBytesBefore,
			d.CoreBytesAfter,
			d.ConfigBytesBefore,
			d.ConfigBytesAfter,
			d.ModuleDelta,
			d.CoreBytesDelta,
		))
	}
	return buf.String()
}

type historyPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	RunID          string    `json:"runID"`
	ThemeID        string    `json:"themeID"`
	Locale         string    `json:"locale"`
	Modules        int       `json:"modules"`
	Warnings       int       `json:"warnings"`
	Bundles        int       `json:"bundles"`
	InvalidShims   int       `json:"invalidShims"`
	CoreBefore     int64     `json:"coreBytesBefore"`
	CoreAfter      int64     `json:"coreBytesAfter"`
	ConfigBefore   int64     `json:"configBytesBefore"`
	ConfigAfter    int64     `json:"configBytesAfter"`
	Savings        float64   `json:"savings"`
	DeltaModules   int       `json:"deltaModules"`
	DeltaCoreBytes int64     `json:"deltaCoreBytes"`
}

func historyJSON(deltas []history.Delta) []historyPoint {
	points := make([]historyPoint, 0, len(deltas))
	for _, d := range deltas {
		points = append(points, historyPoint{
			Timestamp:      d.Timestamp.UTC(),
			RunID:          d.RunID,
			ThemeID:        d.ThemeID,
			Locale:         d.Locale,
			Modules:        d.ModuleCount,
			Warnings:       d.WarningCount,
			Bundles:        d.BundleCount,
			InvalidShims:   d.InvalidShimCount,
			CoreBefore:     d.CoreBytesBefore,
			CoreAfter:      d.CoreBytesAfter,
			ConfigBefore:   d.ConfigBytesBefore,
			ConfigAfter:    d.ConfigBytesAfter,
			Savings:        d.Savings(),
			DeltaModules:   d.ModuleDelta,
			DeltaCoreBytes: d.CoreBytesDelta,
		})
	}
	return points
}

// RenderGraph writes g as Graphviz DOT or as JSON adjacency.
func RenderGraph(w io.Writer, format string, g *graph.DependencyGraph) error {
	switch format {
	case "", FormatDOT:
		_, err := fmt.Fprintln(w, graph.DOT(g))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	default:
		return fmt.Errorf("unsupported graph format %q", format)
	}
}

func FormatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f kB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
