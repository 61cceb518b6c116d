package destination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/The-Promised-Neverland/relay/internal/copier"
	"github.com/The-Promised-Neverland/relay/pkg/logger"
	"github.com/The-Promised-Neverland/relay/pkg/utils"
)

// Outbox delivers into a local directory.
type Outbox struct {
	dir string
}

func NewOutbox(dir string) (*Outbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create outbox: %w", err)
	}
	return &Outbox{dir: dir}, nil
}

// videoSidecar is written next to every delivered video.
type videoSidecar struct {
	Name      string `json:"name"`
	Caption   string `json:"caption"`
	Duration  int    `json:"duration"`
	Size      int64  `json:"size"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

func (o *Outbox) SendDocument(ctx context.Context, up DocumentUpload) (Receipt, error) {
	dst, n, err := o.deliver(ctx, up.Upload)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Name: filepath.Base(dst), Location: dst, Size: n}, nil
}

func (o *Outbox) SendVideo(ctx context.Context, up VideoUpload) (Receipt, error) {
	dst, n, err := o.deliver(ctx, up.Upload)
	if err != nil {
		return Receipt{}, err
	}
	side := videoSidecar{Name: filepath.Base(dst), Caption: up.Caption, Duration: up.Duration, Size: n}
	if up.Thumb != "" {
		thumb := dst + ".jpg"
		if err := copyFile(up.Thumb, thumb); err != nil {
			logger.Log.Warn("Failed to store thumbnail", "name", side.Name, "err", err)
		} else {
			side.Thumbnail = filepath.Base(thumb)
		}
	}
	if err := writeJSON(dst+".json", side); err != nil {
		logger.Log.Warn("Failed to write video sidecar", "name", side.Name, "err", err)
	}
	return Receipt{Name: side.Name, Location: dst, Size: n, Video: true}, nil
}

// deliver streams up.Path into the outbox under a partial name and renames it
// into place once complete.
func (o *Outbox) deliver(ctx context.Context, up Upload) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	src, err := os.Open(up.Path)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	defer src.Close()

	name := utils.SanitizeFileName(up.Name)
	if name == "" {
		name = filepath.Base(up.Path)
	}
	part, err := os.CreateTemp(o.dir, "."+name+".part*")
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	defer os.Remove(part.Name())

	res := copier.Copy(part, src, up.options())
	if cerr := part.Close(); cerr != nil && res.OK() {
		res = copier.Result{Outcome: copier.IOError, Written: res.Written, Err: cerr}
	}
	switch res.Outcome {
	case copier.Success:
	case copier.Cancelled:
		return "", res.Written, copier.ErrCancelled
	default:
		return "", res.Written, fmt.Errorf("%w: %s: %v", ErrRejected, res.Outcome, res.Err)
	}
	dst, err := o.claim(name)
	if err != nil {
		return "", res.Written, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if err := os.Rename(part.Name(), dst); err != nil {
		os.Remove(dst)
		return "", res.Written, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	logger.Log.Info("Delivered to outbox", "path", dst, "bytes", res.Written)
	return dst, res.Written, nil
}

// claim reserves the first free outbox name derived from name by creating
// an empty placeholder for it.
func (o *Outbox) claim(name string) (string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		dst := filepath.Join(o.dir, candidateName(name, i))
		f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		return dst, f.Close()
	}
	return "", fmt.Errorf("no free name for %s", name)
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
