// Package thumbnail derives preview frames from videos with ffmpeg and keeps
// operator-supplied preview images.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/The-Promised-Neverland/relay/pkg/logger"
	"github.com/The-Promised-Neverland/relay/pkg/utils"
)

const (
	DefaultTimeout = 2 * time.Minute
	// Width of every derived or saved preview, in pixels.
	Width = 320
)

// ErrThumbnailUnavailable is returned when the tool ran but produced no image.
var ErrThumbnailUnavailable = errors.New("thumbnail unavailable")

var scaleFilter = fmt.Sprintf("scale=%d:-1", Width)

// Probe reads media metadata with ffprobe.
type Probe struct {
	bin     string
	timeout time.Duration
}

func NewProbe(bin string, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Probe{bin: bin, timeout: timeout}
}

// Duration returns the whole-second duration of path, or 0 when it cannot be
// determined.
func (p *Probe) Duration(ctx context.Context, path string) int {
	out, err := utils.RunCommand(ctx, p.timeout, p.bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		logger.Log.Debug("Duration probe failed", "path", path, "err", err)
		return 0
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil || secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0
	}
	return int(secs)
}

// Deriver extracts a single frame from a video.
type Deriver struct {
	ffmpeg  string
	probe   *Probe
	timeout time.Duration
}

func NewDeriver(ffmpeg string, probe *Probe, timeout time.Duration) *Deriver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Deriver{ffmpeg: ffmpeg, probe: probe, timeout: timeout}
}

// Derive writes a preview of video to out and reports whether a non-empty
// image exists afterwards. Failures are logged, never returned.
func (d *Deriver) Derive(ctx context.Context, video, out string) bool {
	if err := d.derive(ctx, video, out); err != nil {
		logger.Log.Warn("Thumbnail derivation failed", "video", video, "err", err)
		return false
	}
	return true
}

func (d *Deriver) derive(ctx context.Context, video, out string) error {
	offset := 0
	if d.probe != nil && d.probe.Duration(ctx, video) > 1 {
		offset = 1
	}
	err := utils.RunQuiet(ctx, d.timeout, d.ffmpeg,
		"-y",
		"-i", video,
		"-ss", strconv.Itoa(offset),
		"-vframes", "1",
		"-vf", scaleFilter,
		out)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrThumbnailUnavailable, err)
	}
	return nonEmpty(out)
}

func nonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrThumbnailUnavailable, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: empty output", ErrThumbnailUnavailable)
	}
	return nil
}
