package thumbnail

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/The-Promised-Neverland/relay/pkg/logger"
	"github.com/The-Promised-Neverland/relay/pkg/utils"
)

// PreviewStore keeps one saved preview image per identity in dir. A later save
// for the same identity replaces the earlier one; a failed save leaves it as
// it was.
type PreviewStore struct {
	mu      sync.Mutex
	dir     string
	ffmpeg  string
	timeout time.Duration
}

func NewPreviewStore(dir, ffmpeg string, timeout time.Duration) *PreviewStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PreviewStore{dir: dir, ffmpeg: ffmpeg, timeout: timeout}
}

// Path is where the preview of identity lives, whether or not it exists.
func (s *PreviewStore) Path(identity string) string {
	return filepath.Join(s.dir, fmt.Sprintf("thumb_%s.jpg", utils.SanitizeFileName(identity)))
}

// Save normalises the image read from src to a Width-pixel JPEG and stores it
// for identity.
func (s *PreviewStore) Save(ctx context.Context, identity string, src io.Reader) (string, error) {
	raw, err := os.CreateTemp(s.dir, "upload_*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(raw.Name())
	if _, err := io.Copy(raw, src); err != nil {
		raw.Close()
		return "", fmt.Errorf("failed to receive image: %w", err)
	}
	if err := raw.Close(); err != nil {
		return "", fmt.Errorf("failed to receive image: %w", err)
	}

	out, err := os.CreateTemp(s.dir, "preview_*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	out.Close()
	defer os.Remove(out.Name())
	err = utils.RunQuiet(ctx, s.timeout, s.ffmpeg, "-y", "-i", raw.Name(), "-vf", scaleFilter, out.Name())
	if err == nil {
		err = nonEmpty(out.Name())
	}
	if err != nil {
		return "", fmt.Errorf("failed to convert image: %w", err)
	}

	// Only the swap into place is serialised; conversions run unlocked.
	s.mu.Lock()
	defer s.mu.Unlock()
	dst := s.Path(identity)
	if err := os.Rename(out.Name(), dst); err != nil {
		return "", fmt.Errorf("failed to store preview: %w", err)
	}
	logger.Log.Info("Preview saved", "identity", identity, "path", dst)
	return dst, nil
}

// Get returns the saved preview of identity if the file still exists.
func (s *PreviewStore) Get(identity string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.Path(identity)
	if info, err := os.Stat(p); err != nil || info.Size() == 0 {
		return "", false
	}
	return p, true
}

// Delete removes the saved preview of identity.
func (s *PreviewStore) Delete(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.Path(identity)); err != nil && !os.IsNotExist(err) {
		logger.Log.Warn("Failed to remove preview", "identity", identity, "err", err)
	}
}
