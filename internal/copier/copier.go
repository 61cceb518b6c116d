// Package copier moves bytes from a source to a sink in bounded chunks while
// enforcing a size ceiling and polling a cancellation token between chunks.
//
// The copy never fails silently: the returned Result.Outcome alone decides
// whether the sink holds a complete copy. On any outcome other than Success the
// sink may hold a prefix of the source, and deleting it is the caller's job.
package copier

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/The-Promised-Neverland/relay/pkg/logger"
)

// DefaultChunkSize is the reference chunk size (256 KiB).
const DefaultChunkSize = 256 * 1024

// Outcome is the terminal state of a copy.
type Outcome uint8

const (
	// Success means the source was exhausted and every byte reached the sink.
	Success Outcome = iota
	// Cancelled means the token was signalled at a chunk boundary.
	Cancelled
	// TooLarge means the next chunk would have pushed the total past the ceiling.
	TooLarge
	// IOError means reading the source or writing the sink failed.
	IOError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Cancelled:
		return "cancelled"
	case TooLarge:
		return "too_large"
	case IOError:
		return "io_error"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

var (
	// ErrCancelled is returned by Reader once its token is signalled.
	ErrCancelled = errors.New("cancelled by operator")
	// ErrTooLarge is returned by Reader once more than the ceiling was read.
	ErrTooLarge = errors.New("size limit exceeded")
	// ErrRead marks failures on the source side of a copy.
	ErrRead = errors.New("source read failed")
	// ErrWrite marks failures on the sink side of a copy.
	ErrWrite = errors.New("sink write failed")
)

// Token is a polled cancellation flag. The zero value is ready to use and a
// nil *Token is never cancelled.
type Token struct {
	cancelled atomic.Bool
}

func NewToken() *Token { return &Token{} }

// Cancel signals the token. It is safe to call more than once.
func (t *Token) Cancel() {
	if t != nil {
		t.cancelled.Store(true)
	}
}

func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Reporter receives the running byte count and the declared total (0 when
// unknown) after every chunk.
type Reporter interface {
	Report(written, total int64)
}

// ReporterFunc adapts a plain function to Reporter.
type ReporterFunc func(written, total int64)

func (f ReporterFunc) Report(written, total int64) { f(written, total) }

// Options tunes a copy.
type Options struct {
	ChunkSize int      // bytes per read; DefaultChunkSize when <= 0
	Limit     int64    // ceiling in bytes; 0 disables it
	Total     int64    // declared total forwarded to the reporter
	Token     *Token   // optional
	Reporter  Reporter // optional
}

func (o Options) chunkSize() int {
	if o.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return o.ChunkSize
}

// Result describes how a copy ended.
type Result struct {
	Outcome Outcome
	Written int64
	Err     error // set for IOError; wraps ErrRead or ErrWrite
}

func (r Result) OK() bool { return r.Outcome == Success }

// Copy streams src into dst chunk by chunk. Cancellation is checked before
// every read and again before every write, so a signal stops the copy at the
// next chunk boundary even when data is already buffered.
func Copy(dst io.Writer, src io.Reader, opts Options) Result {
	buf := make([]byte, opts.chunkSize())
	var written int64
	for {
		if opts.Token.Cancelled() {
			return Result{Outcome: Cancelled, Written: written}
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if opts.Token.Cancelled() {
				return Result{Outcome: Cancelled, Written: written}
			}
			if opts.Limit > 0 && written+int64(n) > opts.Limit {
				return Result{Outcome: TooLarge, Written: written}
			}
			w, err := dst.Write(buf[:n])
			written += int64(w)
			if err == nil && w != n {
				err = io.ErrShortWrite
			}
			if err != nil {
				return Result{Outcome: IOError, Written: written, Err: fmt.Errorf("%w: %w", ErrWrite, err)}
			}
			report(opts.Reporter, written, opts.Total)
		}
		if readErr == io.EOF {
			return Result{Outcome: Success, Written: written}
		}
		if readErr != nil {
			return Result{Outcome: IOError, Written: written, Err: fmt.Errorf("%w: %w", ErrRead, readErr)}
		}
	}
}

// report invokes r and swallows anything it throws; rendering must never
// abort a copy.
func report(r Reporter, written, total int64) {
	if r == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.Warn("Progress reporter panicked, ignoring", "panic", rec)
		}
	}()
	r.Report(written, total)
}
