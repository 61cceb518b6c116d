// Package transfer runs one relay task end to end: fetch into scratch, derive
// a preview for videos, deliver, and clean up whatever happens.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/The-Promised-Neverland/relay/internal/config"
	"github.com/The-Promised-Neverland/relay/internal/copier"
	"github.com/The-Promised-Neverland/relay/internal/destination"
	"github.com/The-Promised-Neverland/relay/internal/metrics"
	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/internal/progress"
	"github.com/The-Promised-Neverland/relay/internal/registry"
	"github.com/The-Promised-Neverland/relay/internal/resolver"
	"github.com/The-Promised-Neverland/relay/pkg/logger"
	"github.com/The-Promised-Neverland/relay/pkg/utils"
)

// Deriver writes a preview frame of video to out.
type Deriver interface {
	Derive(ctx context.Context, video, out string) bool
}

// Prober reports the whole-second duration of a media file, 0 if unknown.
type Prober interface {
	Duration(ctx context.Context, path string) int
}

// Previews returns an operator-supplied preview image.
type Previews interface {
	Get(identity string) (string, bool)
}

// SpaceChecker fails when the scratch volume cannot hold need bytes.
type SpaceChecker interface {
	EnsureSpace(need int64) error
}

// Deps are the collaborators of an Orchestrator. Deriver, Prober, Previews,
// Space and Metrics are optional.
type Deps struct {
	Registry    *registry.Registry
	Resolver    resolver.Resolver
	Destination destination.Destination
	Deriver     Deriver
	Prober      Prober
	Previews    Previews
	Space       SpaceChecker
	Metrics     *metrics.Metrics
}

// Request asks for one transfer on behalf of identity. Name overrides the
// derived filename when set. Surface receives every status update.
type Request struct {
	Identity  string
	Reference models.Reference
	Name      string
	Surface   progress.StatusSurface
}

// Result is the terminal state of a Run.
type Result struct {
	Phase   models.Phase
	Err     error
	Message string
	Receipt destination.Receipt
}

type Orchestrator struct {
	deps      Deps
	scratch   string
	maxSize   int64
	chunkSize int
	interval  time.Duration
	clock     progress.Clock

	mu    sync.Mutex
	tasks map[string]*Task
}

type Option func(*Orchestrator)

// WithClock replaces the wall clock used for naming and progress.
func WithClock(c progress.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func New(cfg *config.Config, deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:      deps,
		scratch:   cfg.ScratchDir(),
		maxSize:   cfg.MaxSize(),
		chunkSize: cfg.ChunkSize(),
		interval:  cfg.ProgressInterval(),
		clock:     wallClock{},
		tasks:     make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Cancel signals the running task of identity.
func (o *Orchestrator) Cancel(identity string) bool {
	return o.deps.Registry.Cancel(identity)
}

// Task returns a snapshot of the running task of identity.
func (o *Orchestrator) Task(identity string) (TaskInfo, bool) {
	o.mu.Lock()
	t, ok := o.tasks[identity]
	o.mu.Unlock()
	if !ok {
		return TaskInfo{}, false
	}
	return t.Info(), true
}

// Run executes req to completion. Whatever the outcome, the registry entry is
// released, every scratch artifact of the task is removed and the surface
// receives exactly one final message without buttons.
func (o *Orchestrator) Run(ctx context.Context, req Request) (res Result) {
	surface := req.Surface
	if surface == nil {
		surface = discardSurface{}
	}

	tok, ok := o.deps.Registry.TryAcquire(req.Identity)
	if !ok {
		o.deps.Metrics.Rejected()
		finalEdit(surface, MsgRejected)
		return Result{Phase: models.PhaseIdle, Err: ErrRejectedConcurrent, Message: MsgRejected}
	}

	task := newTask(req.Identity, req.Reference, tok, o.clock.Now())
	o.track(task)
	o.deps.Metrics.Started()
	logger.Log.Info("Transfer started", "identity", req.Identity, "reference", req.Reference.String())

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Transfer panicked", "identity", req.Identity, "panic", r, "stack", string(debug.Stack()))
			res = Result{
				Phase:   models.PhaseFailed,
				Err:     fmt.Errorf("panic: %v", r),
				Message: fmt.Sprintf("%s%v", msgUnexpected, r),
			}
		}
		task.setPhase(res.Phase)
		removeAll(task.ownedArtifacts())
		o.deps.Registry.ReleaseToken(req.Identity, tok)
		o.untrack(task)
		o.deps.Metrics.Finished(string(res.Phase), o.clock.Now().Sub(task.StartedAt).Seconds())
		finalEdit(surface, res.Message)
		logger.Log.Info("Transfer finished",
			"identity", req.Identity,
			"phase", res.Phase,
			"error", res.Err,
		)
	}()

	return o.run(ctx, req, task, surface)
}

func (o *Orchestrator) run(ctx context.Context, req Request, task *Task, surface progress.StatusSurface) Result {
	rep := progress.NewReporter(surface, "Downloading", o.interval, progress.WithClock(o.clock))
	rep.Notify(MsgDownloading)

	task.setPhase(models.PhaseDownloading)
	path, name, err := o.fetch(ctx, req, task, rep)
	if err != nil {
		return terminal(err, downloadMessage(err))
	}
	task.setName(name)

	video := destination.IsVideo(name, path)
	var thumb string
	var duration int
	if video {
		task.setPhase(models.PhaseDeriving)
		thumb, duration = o.derive(ctx, req.Identity, task, path)
	}
	if task.Token.Cancelled() {
		return terminal(ErrUserCancelled, MsgCancelled)
	}

	task.setPhase(models.PhaseUploading)
	rep.Phase("Uploading")
	rep.Notify(MsgUploading)

	up := destination.Upload{
		Path:      path,
		Name:      name,
		Caption:   name,
		Size:      fileSize(path),
		ChunkSize: o.chunkSize,
		Reporter:  task.counting(rep),
		Token:     task.Token,
	}
	var receipt destination.Receipt
	if video {
		receipt, err = o.deps.Destination.SendVideo(ctx, destination.VideoUpload{Upload: up, Thumb: thumb, Duration: duration})
	} else {
		receipt, err = o.deps.Destination.SendDocument(ctx, destination.DocumentUpload{Upload: up})
	}
	if err != nil {
		if task.Token.Cancelled() || errors.Is(err, copier.ErrCancelled) {
			return terminal(ErrUserCancelled, MsgCancelled)
		}
		if !errors.Is(err, ErrDestinationRejected) {
			err = fmt.Errorf("%w: %w", ErrDestinationRejected, err)
		}
		return terminal(err, uploadMessage(err))
	}
	o.deps.Metrics.AddBytes(metrics.Uploaded, receipt.Size)
	logger.Log.Info("Delivered", "identity", req.Identity, "name", receipt.Name, "location", receipt.Location)
	return Result{Phase: models.PhaseCompleted, Message: MsgCompleted, Receipt: receipt}
}

func terminal(err error, msg string) Result {
	if errors.Is(err, ErrUserCancelled) {
		return Result{Phase: models.PhaseCancelled, Err: err, Message: MsgCancelled}
	}
	return Result{Phase: models.PhaseFailed, Err: err, Message: msg}
}

// source is an opened reference ready to be copied.
type source struct {
	body  io.ReadCloser
	total int64
	name  string
}

func (o *Orchestrator) open(ctx context.Context, req Request) (*source, error) {
	now := o.clock.Now()
	ref := req.Reference
	switch ref.Kind {
	case models.RefURL:
		src, err := o.deps.Resolver.Open(ctx, ref.URL)
		if err != nil {
			return nil, err
		}
		name := req.Name
		switch {
		case name != "":
			name = models.NormalizeName(name, now)
		case src.Name != "" && resolver.IsDriveURL(ref.URL):
			name = models.NormalizeName(src.Name, now)
		default:
			name = models.NameFromURL(ref.URL, now)
		}
		return &source{body: src.Body, total: src.Size, name: name}, nil
	case models.RefFile:
		if ref.File.Open == nil {
			return nil, fmt.Errorf("%w: inbound file has no content", ErrSourceUnreachable)
		}
		body, err := ref.File.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
		}
		name := utils.SanitizeFileName(req.Name)
		if name == "" {
			name = utils.SanitizeFileName(ref.File.Name)
		}
		if name == "" {
			name = fmt.Sprintf("download_%d", now.Unix())
		}
		return &source{body: body, total: ref.File.Size, name: name}, nil
	default:
		return nil, fmt.Errorf("%w: unknown reference kind %d", ErrSourceUnreachable, ref.Kind)
	}
}

// fetch copies the reference into a scratch artifact and returns its path
// and final name.
func (o *Orchestrator) fetch(ctx context.Context, req Request, task *Task, rep *progress.Reporter) (string, string, error) {
	if task.Token.Cancelled() {
		return "", "", ErrUserCancelled
	}
	src, err := o.open(ctx, req)
	if err != nil {
		return "", "", err
	}
	defer src.body.Close()
	task.setName(src.name)

	if src.total > 0 {
		if o.maxSize > 0 && src.total > o.maxSize {
			return "", "", fmt.Errorf("%w: %d bytes declared, limit is %d", ErrSizeExceeded, src.total, o.maxSize)
		}
		if o.deps.Space != nil {
			if err := o.deps.Space.EnsureSpace(src.total); err != nil {
				return "", "", fmt.Errorf("%w: %w", ErrSinkWrite, err)
			}
		}
	}

	path := filepath.Join(o.scratch, fmt.Sprintf("dl_%s_%d_%s",
		utils.SanitizeFileName(req.Identity), o.clock.Now().UnixNano(), src.name))
	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	task.own(path)

	res := copier.Copy(f, src.body, copier.Options{
		ChunkSize: o.chunkSize,
		Limit:     o.maxSize,
		Total:     src.total,
		Token:     task.Token,
		Reporter:  task.counting(rep),
	})
	if cerr := f.Close(); cerr != nil && res.OK() {
		res = copier.Result{Outcome: copier.IOError, Written: res.Written, Err: fmt.Errorf("%w: %w", copier.ErrWrite, cerr)}
	}
	o.deps.Metrics.AddBytes(metrics.Downloaded, res.Written)

	switch res.Outcome {
	case copier.Success:
		logger.Log.Info("Download complete", "identity", req.Identity, "path", path, "bytes", res.Written)
		return path, src.name, nil
	case copier.Cancelled:
		return "", "", ErrUserCancelled
	case copier.TooLarge:
		return "", "", fmt.Errorf("%w: more than %d bytes", ErrSizeExceeded, o.maxSize)
	default:
		if errors.Is(res.Err, copier.ErrWrite) {
			return "", "", res.Err
		}
		return "", "", fmt.Errorf("%w: %w", ErrSourceUnreachable, res.Err)
	}
}

// derive picks the thumbnail and duration hints for a video. Failures only
// drop the hint.
func (o *Orchestrator) derive(ctx context.Context, identity string, task *Task, video string) (string, int) {
	toolCtx := context.WithoutCancel(ctx)
	var thumb string
	if o.deps.Previews != nil {
		if p, ok := o.deps.Previews.Get(identity); ok {
			thumb = p
		}
	}
	if thumb == "" && o.deps.Deriver != nil {
		out := filepath.Join(o.scratch, fmt.Sprintf("thumb_%s_%d.jpg",
			utils.SanitizeFileName(identity), o.clock.Now().UnixNano()))
		task.own(out)
		if o.deps.Deriver.Derive(toolCtx, video, out) {
			thumb = out
		}
	}
	duration := 0
	if o.deps.Prober != nil {
		duration = o.deps.Prober.Duration(toolCtx, video)
	}
	return thumb, duration
}

func (o *Orchestrator) track(t *Task) {
	o.mu.Lock()
	o.tasks[t.Identity] = t
	o.mu.Unlock()
}

func (o *Orchestrator) untrack(t *Task) {
	o.mu.Lock()
	if o.tasks[t.Identity] == t {
		delete(o.tasks, t.Identity)
	}
	o.mu.Unlock()
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func removeAll(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Log.Warn("Failed to remove artifact", "path", p, "err", err)
		}
	}
}

// finalEdit posts the terminal message. A failing or panicking surface must
// not turn a finished task into a crash.
func finalEdit(s progress.StatusSurface, text string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Warn("Final status edit panicked", "panic", r)
		}
	}()
	if err := s.Edit(text, nil); err != nil {
		logger.Log.Debug("Final status edit failed", "err", err)
	}
}

type discardSurface struct{}

func (discardSurface) Edit(string, []progress.Button) error { return nil }
