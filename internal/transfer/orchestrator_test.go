package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Promised-Neverland/relay/internal/config"
	"github.com/The-Promised-Neverland/relay/internal/copier"
	"github.com/The-Promised-Neverland/relay/internal/destination"
	"github.com/The-Promised-Neverland/relay/internal/metrics"
	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/internal/progress"
	"github.com/The-Promised-Neverland/relay/internal/registry"
	"github.com/The-Promised-Neverland/relay/internal/resolver"
)

const operator = "42"

type edit struct {
	text    string
	buttons []progress.Button
}

type recordingSurface struct {
	mu    sync.Mutex
	edits []edit
}

func (s *recordingSurface) Edit(text string, buttons []progress.Button) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, edit{text: text, buttons: buttons})
	return nil
}

// finals returns the edits posted without buttons.
func (s *recordingSurface) finals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.edits {
		if len(e.buttons) == 0 {
			out = append(out, e.text)
		}
	}
	return out
}

type fakeDestination struct {
	mu        sync.Mutex
	videos    []destination.VideoUpload
	documents []destination.DocumentUpload
	received  []byte
	thumbSeen bool
	onSend    func(up destination.Upload) error
}

func (d *fakeDestination) receive(up destination.Upload) error {
	if d.onSend != nil {
		if err := d.onSend(up); err != nil {
			return err
		}
	}
	b, err := os.ReadFile(up.Path)
	if err != nil {
		return err
	}
	d.received = b
	return nil
}

func (d *fakeDestination) SendVideo(_ context.Context, up destination.VideoUpload) (destination.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.videos = append(d.videos, up)
	if up.Thumb != "" {
		_, err := os.Stat(up.Thumb)
		d.thumbSeen = err == nil
	}
	if err := d.receive(up.Upload); err != nil {
		return destination.Receipt{}, err
	}
	return destination.Receipt{Name: up.Name, Location: "fake://" + up.Name, Size: int64(len(d.received)), Video: true}, nil
}

func (d *fakeDestination) SendDocument(_ context.Context, up destination.DocumentUpload) (destination.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.documents = append(d.documents, up)
	if err := d.receive(up.Upload); err != nil {
		return destination.Receipt{}, err
	}
	return destination.Receipt{Name: up.Name, Location: "fake://" + up.Name, Size: int64(len(d.received))}, nil
}

type fakeDeriver struct {
	ok    bool
	calls int
}

func (d *fakeDeriver) Derive(_ context.Context, _, out string) bool {
	d.calls++
	if !d.ok {
		return false
	}
	return os.WriteFile(out, []byte("jpeg"), 0o644) == nil
}

type fixedProbe int

func (p fixedProbe) Duration(context.Context, string) int { return int(p) }

type fakePreviews map[string]string

func (p fakePreviews) Get(identity string) (string, bool) {
	v, ok := p[identity]
	return v, ok
}

type harness struct {
	orch    *Orchestrator
	reg     *registry.Registry
	dest    *fakeDestination
	deriver *fakeDeriver
	scratch string
}

func newHarness(t *testing.T, opts ...config.Option) *harness {
	t.Helper()
	scratch := t.TempDir()
	cfg := config.New().Apply(append([]config.Option{
		config.WithScratchDir(scratch),
		config.WithProgressInterval(0),
	}, opts...)...)
	h := &harness{
		reg:     registry.New(),
		dest:    &fakeDestination{},
		deriver: &fakeDeriver{ok: true},
		scratch: scratch,
	}
	h.orch = New(cfg, Deps{
		Registry:    h.reg,
		Resolver:    resolver.NewSet(),
		Destination: h.dest,
		Deriver:     h.deriver,
		Prober:      fixedProbe(7),
		Metrics:     metrics.New(),
	})
	return h
}

func (h *harness) assertClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch artifacts must be removed")
	assert.False(t, h.reg.Active(operator), "registry entry must be released")
	_, tracked := h.orch.Task(operator)
	assert.False(t, tracked)
}

func serve(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fileRef(name string, data []byte) models.Reference {
	return models.FileRef(models.InboundFile{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	})
}

func TestRunURLVideoCompletes(t *testing.T) {
	h := newHarness(t)
	payload := bytes.Repeat([]byte("v"), 700_000)
	srv := serve(t, payload)
	surface := &recordingSurface{}

	res := h.orch.Run(context.Background(), Request{
		Identity:  operator,
		Reference: models.URLRef(srv.URL + "/media/clip.mkv?sig=1"),
		Surface:   surface,
	})

	require.NoError(t, res.Err)
	assert.Equal(t, models.PhaseCompleted, res.Phase)
	assert.Equal(t, []string{MsgCompleted}, surface.finals())
	require.Len(t, h.dest.videos, 1)
	up := h.dest.videos[0]
	assert.Equal(t, "clip.mkv", up.Name)
	assert.Equal(t, 7, up.Duration)
	assert.True(t, h.dest.thumbSeen, "derived thumbnail exists while uploading")
	assert.Equal(t, payload, h.dest.received)
	assert.Equal(t, int64(len(payload)), res.Receipt.Size)
	h.assertClean(t)
}

func TestRunAppendsVideoExtension(t *testing.T) {
	h := newHarness(t)
	srv := serve(t, []byte("data"))

	res := h.orch.Run(context.Background(), Request{Identity: operator, Reference: models.URLRef(srv.URL + "/get")})

	require.NoError(t, res.Err)
	require.Len(t, h.dest.videos, 1)
	assert.Equal(t, "get.mp4", h.dest.videos[0].Name)
}

func TestRunConnectionRefused(t *testing.T) {
	h := newHarness(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	surface := &recordingSurface{}

	res := h.orch.Run(context.Background(), Request{
		Identity:  operator,
		Reference: models.URLRef("http://" + addr + "/x.mp4"),
		Surface:   surface,
	})

	assert.Equal(t, models.PhaseFailed, res.Phase)
	assert.ErrorIs(t, res.Err, ErrSourceUnreachable)
	finals := surface.finals()
	require.Len(t, finals, 1)
	assert.True(t, strings.HasPrefix(finals[0], "Download failed: "), finals[0])
	assert.Empty(t, h.dest.videos)
	h.assertClean(t)
}

func TestRunHTTPErrorStatus(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	res := h.orch.Run(context.Background(), Request{Identity: operator, Reference: models.URLRef(srv.URL + "/a.mp4")})

	assert.ErrorIs(t, res.Err, ErrSourceUnreachable)
	assert.Contains(t, res.Message, "HTTP 403")
	h.assertClean(t)
}

func TestRunDriveWithoutID(t *testing.T) {
	h := newHarness(t)
	surface := &recordingSurface{}

	res := h.orch.Run(context.Background(), Request{
		Identity:  operator,
		Reference: models.URLRef("https://drive.google.com/drive/u/0/my-drive"),
		Surface:   surface,
	})

	assert.ErrorIs(t, res.Err, ErrSourceUnreachable)
	assert.Equal(t, []string{MsgNoDriveID}, surface.finals())
	h.assertClean(t)
}

func TestRunRejectsConcurrentTask(t *testing.T) {
	h := newHarness(t)
	running, ok := h.reg.TryAcquire(operator)
	require.True(t, ok)
	surface := &recordingSurface{}

	res := h.orch.Run(context.Background(), Request{
		Identity:  operator,
		Reference: fileRef("a.txt", []byte("x")),
		Surface:   surface,
	})

	assert.ErrorIs(t, res.Err, ErrRejectedConcurrent)
	assert.Equal(t, []string{MsgRejected}, surface.finals())
	require.Len(t, surface.edits, 1)
	assert.False(t, running.Cancelled())
	assert.True(t, h.reg.Active(operator), "the running task keeps its slot")
	assert.Empty(t, h.dest.documents)
}

func TestRunDocumentKeepsName(t *testing.T) {
	h := newHarness(t)
	data := []byte("plain text document\n")

	res := h.orch.Run(context.Background(), Request{Identity: operator, Reference: fileRef("notes.txt", data)})

	require.NoError(t, res.Err)
	require.Len(t, h.dest.documents, 1)
	assert.Equal(t, "notes.txt", h.dest.documents[0].Name)
	assert.Equal(t, data, h.dest.received)
	assert.Zero(t, h.deriver.calls, "documents get no thumbnail")
	h.assertClean(t)
}

func TestRunForwardedRename(t *testing.T) {
	h := newHarness(t)

	res := h.orch.Run(context.Background(), Request{
		Identity:  operator,
		Reference: fileRef("IMG_0001.MOV", []byte("frames")),
		Name:      models.ForwardedVideoName,
	})

	require.NoError(t, res.Err)
	require.Len(t, h.dest.videos, 1)
	assert.Equal(t, models.ForwardedVideoName, h.dest.videos[0].Name)
}

func TestRunThumbnailFailureStillDelivers(t *testing.T) {
	h := newHarness(t)
	h.deriver.ok = false
	surface := &recordingSurface{}

	res := h.orch.Run(context.Background(), Request{
		Identity:  operator,
		Reference: fileRef("clip.mp4", []byte("frames")),
		Surface:   surface,
	})

	require.NoError(t, res.Err)
	assert.Equal(t, 1, h.deriver.calls)
	require.Len(t, h.dest.videos, 1)
	assert.Empty(t, h.dest.videos[0].Thumb)
	assert.Equal(t, []string{MsgCompleted}, surface.finals())
	h.assertClean(t)
}

func TestRunUsesSavedPreview(t *testing.T) {
	h := newHarness(t)
	saved := filepath.Join(t.TempDir(), "thumb_42.jpg")
	require.NoError(t, os.WriteFile(saved, []byte("jpeg"), 0o644))
	h.orch.deps.Previews = fakePreviews{operator: saved}

	res := h.orch.Run(context.Background(), Request{Identity: operator, Reference: fileRef("clip.mp4", []byte("frames"))})

	require.NoError(t, res.Err)
	assert.Zero(t, h.deriver.calls)
	require.Len(t, h.dest.videos, 1)
	assert.Equal(t, saved, h.dest.videos[0].Thumb)
	assert.FileExists(t, saved, "the saved preview outlives the task")
}

// cancellingReader cancels the task of identity on its first read.
type cancellingReader struct {
	orch *Orchestrator
	src  io.Reader
	once sync.Once
}

func (r *cancellingReader) Read(p []byte) (int, error) {
	r.once.Do(func() { r.orch.Cancel(operator) })
	return r.src.Read(p)
}

func TestRunCancelDuringDownload(t *testing.T) {
	h := newHarness(t)
	surface := &recordingSurface{}
	data := bytes.Repeat([]byte("z"), 1<<20)
	ref := models.FileRef(models.InboundFile{
		Name: "big.bin",
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(&cancellingReader{orch: h.orch, src: bytes.NewReader(data)}), nil
		},
	})

	res := h.orch.Run(context.Background(), Request{Identity: operator, Reference: ref, Surface: surface})

	assert.Equal(t, models.PhaseCancelled, res.Phase)
	assert.ErrorIs(t, res.Err, ErrUserCancelled)
	assert.Equal(t, []string{MsgCancelled}, surface.finals())
	assert.Empty(t, h.dest.documents)
	h.assertClean(t)
}

func TestRunCancelDuringUpload(t *testing.T) {
	h := newHarness(t)
	h.dest.onSend = func(up destination.Upload) error {
		h.orch.Cancel(operator)
		if up.Token.Cancelled() {
			return copier.ErrCancelled
		}
		return nil
	}
	surface := &recordingSurface{}

	res := h.orch.Run(context.Background(), Request{Identity: operator, Reference: fileRef("a.txt", []byte("abc")), Surface: surface})

	assert.Equal(t, models.PhaseCancelled, res.Phase)
	assert.Equal(t, []string{MsgCancelled}, surface.finals())
	h.assertClean(t)
}

func TestRunDeclaredSizeOverCeiling(t *testing.T) {
	h := newHarness(t, config.WithMaxSize(1024))
	srv := serve(t, make([]byte, 4096))

	res := h.orch.Run(context.Background(), Request{Identity: operator, Reference: models.URLRef(srv.URL + "/big.mp4")})

	assert.Equal(t, models.PhaseFailed, res.Phase)
	assert.ErrorIs(t, res.Err, ErrSizeExceeded)
	assert.Empty(t, h.dest.videos)
	h.assertClean(t)
}

func TestRunStreamOverCeiling(t *testing.T) {
	h := newHarness(t, config.WithMaxSize(1024))
	ref := models.FileRef(models.InboundFile{
		Name: "unknown.bin",
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(make([]byte, 4096))), nil },
	})

	res := h.orch.Run(context.Background(), Request{Identity: operator, Reference: ref})

	assert.ErrorIs(t, res.Err, ErrSizeExceeded)
	h.assertClean(t)
}

func TestRunDestinationRejected(t *testing.T) {
	h := newHarness(t)
	h.dest.onSend = func(destination.Upload) error { return errors.New("413 entity too large") }
	surface := &recordingSurface{}

	res := h.orch.Run(context.Background(), Request{Identity: operator, Reference: fileRef("a.txt", []byte("abc")), Surface: surface})

	assert.Equal(t, models.PhaseFailed, res.Phase)
	assert.ErrorIs(t, res.Err, ErrDestinationRejected)
	finals := surface.finals()
	require.Len(t, finals, 1)
	assert.True(t, strings.HasPrefix(finals[0], "Upload failed: "))
	h.assertClean(t)
}

func TestRunRecoversPanic(t *testing.T) {
	h := newHarness(t)
	h.dest.onSend = func(destination.Upload) error { panic("nil map write") }
	surface := &recordingSurface{}

	var res Result
	require.NotPanics(t, func() {
		res = h.orch.Run(context.Background(), Request{Identity: operator, Reference: fileRef("a.txt", []byte("abc")), Surface: surface})
	})

	assert.Equal(t, models.PhaseFailed, res.Phase)
	finals := surface.finals()
	require.Len(t, finals, 1)
	assert.Contains(t, finals[0], "nil map write")
	h.assertClean(t)
}

func TestTaskSnapshotWhileUploading(t *testing.T) {
	h := newHarness(t)
	var seen TaskInfo
	var tracked bool
	h.dest.onSend = func(destination.Upload) error {
		seen, tracked = h.orch.Task(operator)
		return nil
	}

	res := h.orch.Run(context.Background(), Request{Identity: operator, Reference: fileRef("a.txt", []byte("abc"))})

	require.NoError(t, res.Err)
	require.True(t, tracked)
	assert.Equal(t, models.PhaseUploading, seen.Phase)
	assert.Equal(t, "a.txt", seen.Name)
	assert.Equal(t, "file:a.txt", seen.Reference)
}

func TestRunReportsProgress(t *testing.T) {
	h := newHarness(t)
	surface := &recordingSurface{}

	res := h.orch.Run(context.Background(), Request{Identity: operator, Reference: fileRef("a.txt", bytes.Repeat([]byte("p"), 600_000)), Surface: surface})

	require.NoError(t, res.Err)
	var rendered bool
	for _, e := range surface.edits {
		if strings.Contains(e.text, "Downloading...") && len(e.buttons) == 1 {
			rendered = true
			assert.Equal(t, progress.CancelButton, e.buttons[0])
		}
	}
	assert.True(t, rendered, "download progress is rendered with the cancel button")
}
