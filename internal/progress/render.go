// Package progress turns byte counters into the status block shown to the
// operator and pushes it to a status surface without ever failing a transfer.
package progress

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	BarCells = 20
	mib      = 1024 * 1024
)

// Sample is one observation of a running phase. It is never stored.
type Sample struct {
	Bytes   int64
	Total   int64 // 0 when unknown
	Elapsed time.Duration
}

// Stats are the derived numbers behind a rendered block.
type Stats struct {
	Percent    float64
	Filled     int
	DoneMiB    float64
	TotalMiB   float64
	SpeedMiB   float64
	ElapsedSec int64
	ETASec     int64
}

// Compute derives Stats from s. Elapsed below one second counts as one
// second; an unknown total renders as 0% with no ETA.
func Compute(s Sample) Stats {
	elapsed := s.Elapsed.Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	st := Stats{
		DoneMiB:    float64(s.Bytes) / mib,
		TotalMiB:   float64(s.Total) / mib,
		SpeedMiB:   float64(s.Bytes) / elapsed / mib,
		ElapsedSec: int64(elapsed),
	}
	if s.Total > 0 {
		st.Percent = float64(s.Bytes) * 100 / float64(s.Total)
	}
	st.Filled = int(math.Floor(st.Percent / 5))
	st.Filled = max(0, min(st.Filled, BarCells))
	if s.Bytes > 0 && s.Total > s.Bytes {
		rate := float64(s.Bytes) / elapsed
		st.ETASec = int64(float64(s.Total-s.Bytes) / rate)
	}
	return st
}

// Bar renders the 20-cell bar for st.
func (st Stats) Bar() string {
	return strings.Repeat("█", st.Filled) + strings.Repeat("░", BarCells-st.Filled)
}

// Render formats the status block for one sample. label names the phase,
// e.g. "Downloading".
func Render(s Sample, label string) string {
	st := Compute(s)
	var b strings.Builder
	fmt.Fprintf(&b, "%s...\n", label)
	fmt.Fprintf(&b, "[%s] %.2f%%\n", st.Bar(), st.Percent)
	fmt.Fprintf(&b, "%.2f MiB of %.2f MiB\n", st.DoneMiB, st.TotalMiB)
	fmt.Fprintf(&b, "Speed: %.2f MiB/s\n", st.SpeedMiB)
	fmt.Fprintf(&b, "Elapsed: %ds | ETA: %ds\n\n", st.ElapsedSec, st.ETASec)
	b.WriteString("Press the button below to cancel.")
	return b.String()
}
