package progress

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type edit struct {
	text    string
	buttons []Button
}

type recordingSurface struct {
	edits []edit
	err   error
}

func (s *recordingSurface) Edit(text string, buttons []Button) error {
	s.edits = append(s.edits, edit{text: text, buttons: buttons})
	return s.err
}

func TestComputeHalfway(t *testing.T) {
	st := Compute(Sample{Bytes: 50 * mib, Total: 100 * mib, Elapsed: 10 * time.Second})

	assert.InDelta(t, 50.0, st.Percent, 1e-9)
	assert.Equal(t, 10, st.Filled)
	assert.InDelta(t, 5.0, st.SpeedMiB, 1e-9)
	assert.Equal(t, int64(10), st.ETASec)
	assert.Equal(t, int64(10), st.ElapsedSec)
}

func TestRenderHalfway(t *testing.T) {
	out := Render(Sample{Bytes: 50 * mib, Total: 100 * mib, Elapsed: 10 * time.Second}, "Downloading")

	assert.Contains(t, out, "Downloading...\n")
	assert.Contains(t, out, "["+strings.Repeat("█", 10)+strings.Repeat("░", 10)+"] 50.00%")
	assert.Contains(t, out, "50.00 MiB of 100.00 MiB")
	assert.Contains(t, out, "Speed: 5.00 MiB/s")
	assert.Contains(t, out, "Elapsed: 10s | ETA: 10s")
}

func TestComputeEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		sample  Sample
		percent float64
		filled  int
		eta     int64
	}{
		{"unknown total", Sample{Bytes: 10 * mib, Elapsed: 5 * time.Second}, 0, 0, 0},
		{"nothing yet", Sample{Total: 100 * mib}, 0, 0, 0},
		{"complete", Sample{Bytes: 100 * mib, Total: 100 * mib, Elapsed: 20 * time.Second}, 100, 20, 0},
		{"overshoot clamps bar", Sample{Bytes: 150, Total: 100, Elapsed: time.Second}, 150, 20, 0},
		{"just under a cell", Sample{Bytes: 49, Total: 1000, Elapsed: time.Second}, 4.9, 0, 19},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Compute(tt.sample)
			assert.InDelta(t, tt.percent, st.Percent, 1e-9)
			assert.Equal(t, tt.filled, st.Filled)
			assert.Equal(t, tt.eta, st.ETASec)
			assert.Len(t, []rune(st.Bar()), BarCells)
		})
	}
}

func TestComputeFloorsElapsed(t *testing.T) {
	st := Compute(Sample{Bytes: 3 * mib, Total: 6 * mib, Elapsed: 0})
	assert.InDelta(t, 3.0, st.SpeedMiB, 1e-9)
	assert.Equal(t, int64(1), st.ElapsedSec)
	assert.Equal(t, int64(1), st.ETASec)
}

func TestReporterThrottles(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	surface := &recordingSurface{}
	r := NewReporter(surface, "Uploading", time.Second, WithClock(clock))

	r.Report(1, 10)
	r.Report(2, 10)
	r.Report(3, 10)
	require.Len(t, surface.edits, 1, "burst of one within the interval")

	clock.Advance(time.Second)
	r.Report(4, 10)
	require.Len(t, surface.edits, 2)
	assert.Equal(t, []Button{CancelButton}, surface.edits[1].buttons)
	assert.Contains(t, surface.edits[1].text, "Uploading...")
}

func TestReporterIgnoresSurfaceErrors(t *testing.T) {
	surface := &recordingSurface{err: errors.New("429 Too Many Requests")}
	r := NewReporter(surface, "Downloading", 0)

	assert.NotPanics(t, func() {
		r.Report(1, 2)
		r.Report(2, 2)
		r.Notify("done")
	})
	assert.Len(t, surface.edits, 3)
}

func TestReporterPhaseRestartsClock(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	surface := &recordingSurface{}
	r := NewReporter(surface, "Downloading", 0, WithClock(clock))

	clock.Advance(30 * time.Second)
	r.Phase("Uploading")
	clock.Advance(2 * time.Second)
	r.Report(2*mib, 4*mib)

	require.Len(t, surface.edits, 1)
	assert.Contains(t, surface.edits[0].text, "Uploading...")
	assert.Contains(t, surface.edits[0].text, "Elapsed: 2s | ETA: 2s")
}

func TestNilReporterIsSafe(t *testing.T) {
	var r *Reporter
	assert.NotPanics(t, func() { r.Report(1, 1) })
}
