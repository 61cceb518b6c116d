package watcher

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/internal/transfer"
	"github.com/The-Promised-Neverland/relay/pkg/logger"
)

const (
	DefaultSettle     = 2 * time.Second
	DefaultRetryEvery = 10 * time.Second
)

// Runner relays one inbound file and reports the outcome.
type Runner func(ref models.Reference) transfer.Result

// Inbox turns files dropped into a directory into inbound-file transfers.
// Files are handled one at a time and only once their size and modification
// time held still for the settle interval. A delivered file is removed from
// the inbox unless it changed while being relayed; anything else stays for
// the operator to inspect. Files turned away because another task was
// running are retried periodically.
type Inbox struct {
	watcher    *Watcher
	dir        string
	filter     FilterConfig
	run        Runner
	settle     time.Duration
	retryEvery time.Duration
	watchOpts  []Option
	pending    map[string]struct{}
	done       chan struct{}
}

type InboxOption func(*Inbox)

// WithSettle sets how long a file must stay unchanged before it is relayed.
func WithSettle(d time.Duration) InboxOption {
	return func(in *Inbox) {
		if d > 0 {
			in.settle = d
		}
	}
}

// WithRetryEvery sets how often files rejected as busy are tried again.
func WithRetryEvery(d time.Duration) InboxOption {
	return func(in *Inbox) {
		if d > 0 {
			in.retryEvery = d
		}
	}
}

// WithWatcherOptions passes opts to the underlying Watcher.
func WithWatcherOptions(opts ...Option) InboxOption {
	return func(in *Inbox) { in.watchOpts = append(in.watchOpts, opts...) }
}

func NewInbox(ctx context.Context, dir string, run Runner, opts ...InboxOption) (*Inbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	in := &Inbox{
		dir:        dir,
		filter:     InboxFilterConfig(),
		run:        run,
		settle:     DefaultSettle,
		retryEvery: DefaultRetryEvery,
		pending:    make(map[string]struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(in)
	}
	w, err := NewWatcher(ctx, dir, in.filter, in.watchOpts...)
	if err != nil {
		return nil, err
	}
	in.watcher = w
	return in, nil
}

func (in *Inbox) Start() error {
	if err := in.watcher.Start(); err != nil {
		return err
	}
	go in.loop()
	return nil
}

func (in *Inbox) Stop() {
	in.watcher.Stop()
	<-in.done
}

func (in *Inbox) loop() {
	defer close(in.done)
	in.scan()
	retry := time.NewTicker(in.retryEvery)
	defer retry.Stop()
	for {
		select {
		case <-in.watcher.Done():
			return
		case err := <-in.watcher.Errors():
			logger.Log.Warn("Inbox watcher error", "err", err)
		case ev := <-in.watcher.Events():
			if ev.Type == EventCreate || ev.Type == EventWrite {
				in.handle(ev.Path)
			}
		case <-retry.C:
			for path := range in.pending {
				in.handle(path)
			}
		}
	}
}

// scan picks up files that were already waiting when the inbox started.
func (in *Inbox) scan() {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		logger.Log.Warn("Failed to scan inbox", "path", in.dir, "err", err)
		return
	}
	for _, e := range entries {
		path := filepath.Join(in.dir, e.Name())
		if e.Type().IsRegular() && in.filter.ShouldProcess(path) {
			in.handle(path)
		}
	}
}

// settled waits until path keeps the same size and modification time for a
// whole settle interval.
func (in *Inbox) settled(path string) (os.FileInfo, bool) {
	prev, err := os.Stat(path)
	if err != nil || !prev.Mode().IsRegular() {
		return nil, false
	}
	for {
		select {
		case <-in.watcher.Done():
			return nil, false
		case <-time.After(in.settle):
		}
		cur, err := os.Stat(path)
		if err != nil || !cur.Mode().IsRegular() {
			return nil, false
		}
		if cur.Size() == prev.Size() && cur.ModTime().Equal(prev.ModTime()) {
			return cur, true
		}
		prev = cur
	}
}

type sizedFile struct {
	io.Reader
	io.Closer
}

func (in *Inbox) handle(path string) {
	info, ok := in.settled(path)
	if !ok {
		delete(in.pending, path)
		return
	}
	size := info.Size()
	ref := models.FileRef(models.InboundFile{
		Name: filepath.Base(path),
		Size: size,
		Open: func() (io.ReadCloser, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			return sizedFile{Reader: io.LimitReader(f, size), Closer: f}, nil
		},
	})
	logger.Log.Info("Inbox file picked up", "path", path, "bytes", size)
	res := in.run(ref)
	if errors.Is(res.Err, transfer.ErrRejectedConcurrent) {
		logger.Log.Info("Inbox file waiting for the running task", "path", path)
		in.pending[path] = struct{}{}
		return
	}
	delete(in.pending, path)
	if res.Err != nil {
		logger.Log.Warn("Inbox file not relayed", "path", path, "phase", res.Phase, "err", res.Err)
		return
	}
	after, err := os.Stat(path)
	if err == nil && (after.Size() != size || !after.ModTime().Equal(info.ModTime())) {
		logger.Log.Warn("Inbox file changed while being relayed, keeping it", "path", path,
			"relayed", size, "now", after.Size())
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Log.Warn("Failed to clear inbox file", "path", path, "err", err)
	}
}
