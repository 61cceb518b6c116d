package progress

import (
	"sync"
	"time"

	"github.com/The-Promised-Neverland/relay/pkg/logger"
	"golang.org/x/time/rate"
)

// Button is an inline action attached to a status message.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// CancelData is the action payload of the cancel affordance.
const CancelData = "cancel_task"

// CancelButton is attached to every progress render.
var CancelButton = Button{Text: "Cancel ❌", Data: CancelData}

// StatusSurface is one editable status message on the operator's channel.
type StatusSurface interface {
	Edit(text string, buttons []Button) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Reporter renders byte counts onto a StatusSurface at most once per
// interval. It satisfies copier.Reporter.
type Reporter struct {
	surface StatusSurface
	clock   Clock
	limiter *rate.Limiter

	mu    sync.Mutex
	label string
	start time.Time
}

type ReporterOption func(*Reporter)

func WithClock(c Clock) ReporterOption {
	return func(r *Reporter) { r.clock = c }
}

// NewReporter returns a reporter for the given phase label. An interval of
// zero disables throttling.
func NewReporter(surface StatusSurface, label string, interval time.Duration, opts ...ReporterOption) *Reporter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	r := &Reporter{
		surface: surface,
		clock:   systemClock{},
		limiter: rate.NewLimiter(limit, 1),
		label:   label,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.start = r.clock.Now()
	return r
}

// Phase switches the label and restarts the elapsed clock.
func (r *Reporter) Phase(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.label = label
	r.start = r.clock.Now()
}

// Report renders a sample if the limiter allows it. Surface errors are
// dropped.
func (r *Reporter) Report(written, total int64) {
	if r == nil || r.surface == nil {
		return
	}
	now := r.clock.Now()
	if !r.limiter.AllowN(now, 1) {
		return
	}
	r.mu.Lock()
	text := Render(Sample{Bytes: written, Total: total, Elapsed: now.Sub(r.start)}, r.label)
	r.mu.Unlock()
	if err := r.surface.Edit(text, []Button{CancelButton}); err != nil {
		logger.Log.Debug("Status edit failed, ignoring", "err", err)
	}
}

// Notify posts text with the cancel affordance, bypassing the limiter.
// Used for phase banners such as "Download complete, uploading...".
func (r *Reporter) Notify(text string) {
	if r == nil || r.surface == nil {
		return
	}
	if err := r.surface.Edit(text, []Button{CancelButton}); err != nil {
		logger.Log.Debug("Status edit failed, ignoring", "err", err)
	}
}
