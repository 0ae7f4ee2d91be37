// Package history persists per-theme bundle size telemetry across runs.
package history

import "time"

// Record is one successful theme build.
type Record struct {
	RunID             string
	ThemeID           string
	Timestamp         time.Time
	Locale            string
	ModuleCount       int
	WarningCount      int
	BundleCount       int
	InvalidShimCount  int
	CoreBytesBefore   int64
	CoreBytesAfter    int64
	ConfigBytesBefore int64
	ConfigBytesAfter  int64
}

// Savings is the fraction of core bundle bytes removed by minification.
func (r Record) Savings() float64 {
	if r.CoreBytesBefore == 0 {
		return 0
	}
	return 1 - float64(r.CoreBytesAfter)/float64(r.CoreBytesBefore)
}

// Delta compares a record with the build before it.
type Delta struct {
	Record
	ModuleDelta    int
	CoreBytesDelta int64
}

// Trend pairs each record with its change from the previous one. Input
// must be oldest first; the first record has zero deltas.
func Trend(records []Record) []Delta {
	out := make([]Delta, 0, len(records))
	for i, rec := range records {
		d := Delta{Record: rec}
		if i > 0 {
			prev := records[i-1]
			d.ModuleDelta = rec.ModuleCount - prev.ModuleCount
			d.CoreBytesDelta = rec.CoreBytesAfter - prev.CoreBytesAfter
		}
		out = append(out, d)
	}
	return out
}
