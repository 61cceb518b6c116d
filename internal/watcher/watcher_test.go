package watcher

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/internal/transfer"
)

func TestShouldProcess(t *testing.T) {
	fc := InboxFilterConfig()
	assert.True(t, fc.ShouldProcess("/in/movie.mkv"))
	assert.False(t, fc.ShouldProcess("/in/movie.mkv.part"))
	assert.False(t, fc.ShouldProcess("/in/.hidden"))
	assert.False(t, fc.ShouldProcess("/in/notes.txt~"))

	fc.AllowedExtensions = []string{".MP4"}
	assert.True(t, fc.ShouldProcess("a.mp4"))
	assert.False(t, fc.ShouldProcess("a.mkv"))
}

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(context.Background(), dir, InboxFilterConfig(), WithDebounce(100*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	p := filepath.Join(dir, "clip.mp4")
	f, err := os.Create(p)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = f.WriteString("chunk")
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	select {
	case ev := <-w.Events():
		assert.Equal(t, p, ev.Path)
	case <-time.After(3 * time.Second):
		t.Fatal("no event")
	}
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected second event %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

type result struct {
	name    string
	size    int64
	content []byte
}

// recorder returns a Runner that reports every relayed file on the channel
// and answers with outcome for the n-th call (starting at 1).
func recorder(t *testing.T, outcome func(name string, n int) transfer.Result) (Runner, chan result) {
	got := make(chan result, 16)
	calls := 0
	run := func(ref models.Reference) transfer.Result {
		calls++
		rc, err := ref.File.Open()
		if err != nil {
			t.Errorf("open %s: %v", ref.File.Name, err)
			return transfer.Result{Phase: models.PhaseFailed, Err: err}
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		got <- result{name: ref.File.Name, size: ref.File.Size, content: b}
		if outcome == nil {
			return transfer.Result{Phase: models.PhaseCompleted}
		}
		return outcome(ref.File.Name, calls)
	}
	return run, got
}

func startInbox(t *testing.T, dir string, run Runner, opts ...InboxOption) {
	t.Helper()
	opts = append([]InboxOption{
		WithWatcherOptions(WithDebounce(50 * time.Millisecond)),
		WithSettle(50 * time.Millisecond),
	}, opts...)
	in, err := NewInbox(context.Background(), dir, run, opts...)
	require.NoError(t, err)
	require.NoError(t, in.Start())
	t.Cleanup(in.Stop)
}

func next(t *testing.T, got chan result) result {
	t.Helper()
	select {
	case r := <-got:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("inbox did not relay a file")
		return result{}
	}
}

func gone(path string) func() bool {
	return func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}
}

func TestInboxRelaysAndClears(t *testing.T) {
	dir := t.TempDir()
	run, got := recorder(t, func(name string, _ int) transfer.Result {
		if name == "keep.bin" {
			return transfer.Result{Phase: models.PhaseFailed, Err: transfer.ErrDestinationRejected}
		}
		return transfer.Result{Phase: models.PhaseCompleted}
	})
	startInbox(t, dir, run)

	ok := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(ok, []byte("pdf"), 0o644))
	r := next(t, got)
	assert.Equal(t, "report.pdf", r.name)
	assert.Equal(t, []byte("pdf"), r.content)
	require.Eventually(t, gone(ok), 2*time.Second, 20*time.Millisecond, "delivered files leave the inbox")

	keep := filepath.Join(dir, "keep.bin")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))
	assert.Equal(t, "keep.bin", next(t, got).name)
	time.Sleep(100 * time.Millisecond)
	assert.FileExists(t, keep, "failed files stay in the inbox")
}

func TestInboxWaitsForStalledWriter(t *testing.T) {
	dir := t.TempDir()
	run, got := recorder(t, nil)
	startInbox(t, dir, run, WithSettle(600*time.Millisecond))

	p := filepath.Join(dir, "big.mkv")
	f, err := os.Create(p)
	require.NoError(t, err)
	_, err = f.Write(bytes.Repeat([]byte("a"), 1000))
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)
	_, err = f.Write(bytes.Repeat([]byte("b"), 1000))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r := next(t, got)
	assert.Equal(t, int64(2000), r.size)
	assert.Len(t, r.content, 2000)
	require.Eventually(t, gone(p), 3*time.Second, 20*time.Millisecond)
	select {
	case extra := <-got:
		t.Fatalf("file relayed twice: %+v", extra.size)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestInboxKeepsFileThatGrewDuringRelay(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "log.txt")
	run, got := recorder(t, func(_ string, n int) transfer.Result {
		if n == 1 {
			f, err := os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0)
			if err == nil {
				_, _ = f.WriteString("-tail")
				f.Close()
			}
		}
		return transfer.Result{Phase: models.PhaseCompleted}
	})
	startInbox(t, dir, run)

	require.NoError(t, os.WriteFile(p, []byte("head"), 0o644))
	first := next(t, got)
	assert.Equal(t, "head", string(first.content))

	second := next(t, got)
	assert.Equal(t, "head-tail", string(second.content), "the grown file is relayed again in full")
	require.Eventually(t, gone(p), 3*time.Second, 20*time.Millisecond)
}

func TestInboxRetriesAfterBusyRejection(t *testing.T) {
	dir := t.TempDir()
	run, got := recorder(t, func(_ string, n int) transfer.Result {
		if n == 1 {
			return transfer.Result{Phase: models.PhaseIdle, Err: transfer.ErrRejectedConcurrent}
		}
		return transfer.Result{Phase: models.PhaseCompleted}
	})
	startInbox(t, dir, run, WithRetryEvery(100*time.Millisecond))

	p := filepath.Join(dir, "queued.zip")
	require.NoError(t, os.WriteFile(p, []byte("zip"), 0o644))
	assert.Equal(t, "queued.zip", next(t, got).name)
	assert.Equal(t, "queued.zip", next(t, got).name)
	require.Eventually(t, gone(p), 3*time.Second, 20*time.Millisecond)
}

func TestInboxPicksUpBacklog(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "waiting.iso")
	require.NoError(t, os.WriteFile(p, []byte("iso"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))

	run, got := recorder(t, nil)
	startInbox(t, dir, run)

	assert.Equal(t, "waiting.iso", next(t, got).name)
	require.Eventually(t, gone(p), 3*time.Second, 20*time.Millisecond)
	assert.FileExists(t, filepath.Join(dir, ".hidden"))
}
