package models

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/The-Promised-Neverland/relay/pkg/utils"
)

// ForwardedVideoName replaces the name of forwarded videos.
const ForwardedVideoName = "new_video.mp4"

type RefKind int

const (
	RefURL RefKind = iota
	RefFile
)

func (k RefKind) String() string {
	if k == RefFile {
		return "file"
	}
	return "url"
}

// InboundFile is a file handed over directly by the operator.
type InboundFile struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// Reference is what the operator asked to relay: a URL or an inbound file.
type Reference struct {
	Kind RefKind
	URL  string
	File InboundFile
}

func URLRef(u string) Reference { return Reference{Kind: RefURL, URL: u} }

func FileRef(f InboundFile) Reference { return Reference{Kind: RefFile, File: f} }

func (r Reference) String() string {
	if r.Kind == RefFile {
		return "file:" + r.File.Name
	}
	return r.URL
}

// Phase is the lifecycle position of a transfer.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDownloading Phase = "downloading"
	PhaseDeriving    Phase = "deriving"
	PhaseUploading   Phase = "uploading"
	PhaseCancelled   Phase = "cancelled"
	PhaseFailed      Phase = "failed"
	PhaseCompleted   Phase = "completed"
)

// Terminal reports whether no further transition follows p.
func (p Phase) Terminal() bool {
	return p == PhaseCancelled || p == PhaseFailed || p == PhaseCompleted
}

var VideoExts = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".avi": {}, ".mov": {}, ".flv": {}, ".wmv": {}, ".webm": {},
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

// ExtractURL returns the first http(s) URL found in text.
func ExtractURL(text string) (string, bool) {
	u := urlPattern.FindString(text)
	return u, u != ""
}

// IsVideoExt reports whether name carries a known video extension.
func IsVideoExt(name string) bool {
	_, ok := VideoExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// NameFromURL derives a safe local filename from the last path segment of
// rawURL.
func NameFromURL(rawURL string, now time.Time) string {
	p := ""
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		p = rawURL[:i]
	}
	// A path ending in "/" names a directory, not the file being served.
	name := ""
	if p != "" && !strings.HasSuffix(p, "/") {
		name = path.Base(p)
	}
	if name == "." || name == "/" {
		name = ""
	}
	return NormalizeName(name, now)
}

// NormalizeName sanitises name, falls back to download_<unix> when nothing is
// left and appends ".mp4" to names without a video extension.
func NormalizeName(name string, now time.Time) string {
	name = utils.SanitizeFileName(name)
	if name == "" {
		name = fmt.Sprintf("download_%d", now.Unix())
	}
	if !IsVideoExt(name) {
		name += ".mp4"
	}
	return name
}
