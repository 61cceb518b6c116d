package copier

import (
	"errors"
	"io"
)

// Reader applies the copy loop's rules to a pull-based consumer: upload
// clients that take an io.Reader and drive the reads themselves.
type Reader struct {
	src  io.Reader
	opts Options
	read int64
	err  error
}

// NewReader wraps src. Each Read is capped at the chunk size, polls the
// token, enforces the ceiling and reports progress.
func NewReader(src io.Reader, opts Options) *Reader {
	return &Reader{src: src, opts: opts}
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.opts.Token.Cancelled() {
		r.err = ErrCancelled
		return 0, r.err
	}
	if cs := r.opts.chunkSize(); len(p) > cs {
		p = p[:cs]
	}
	n, err := r.src.Read(p)
	if n > 0 {
		if r.opts.Limit > 0 && r.read+int64(n) > r.opts.Limit {
			r.err = ErrTooLarge
			return 0, r.err
		}
		r.read += int64(n)
		report(r.opts.Reporter, r.read, r.opts.Total)
	}
	return n, err
}

// BytesRead returns the bytes handed to the consumer so far.
func (r *Reader) BytesRead() int64 { return r.read }

// ResultOf maps an error surfaced through a Reader-driven consumer back onto
// a copy Result.
func ResultOf(written int64, err error) Result {
	switch {
	case err == nil:
		return Result{Outcome: Success, Written: written}
	case errors.Is(err, ErrCancelled):
		return Result{Outcome: Cancelled, Written: written}
	case errors.Is(err, ErrTooLarge):
		return Result{Outcome: TooLarge, Written: written}
	default:
		return Result{Outcome: IOError, Written: written, Err: err}
	}
}
