// Package destination delivers finished artifacts to where the operator
// collects them.
package destination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/The-Promised-Neverland/relay/internal/copier"
	"github.com/The-Promised-Neverland/relay/internal/models"
)

// ErrRejected is returned when the destination refuses or fails an upload.
var ErrRejected = errors.New("destination rejected the upload")

// Upload describes one artifact on local disk.
type Upload struct {
	Path      string
	Name      string
	Caption   string
	Size      int64
	ChunkSize int
	Reporter  copier.Reporter
	Token     *copier.Token
}

type DocumentUpload struct {
	Upload
}

// VideoUpload carries the streaming hints. Thumb is empty and Duration is 0
// when they are unknown.
type VideoUpload struct {
	Upload
	Thumb    string
	Duration int
}

// Receipt confirms a delivery.
type Receipt struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Size     int64  `json:"size"`
	Video    bool   `json:"video"`
}

type Destination interface {
	SendVideo(ctx context.Context, up VideoUpload) (Receipt, error)
	SendDocument(ctx context.Context, up DocumentUpload) (Receipt, error)
}

func (u Upload) options() copier.Options {
	return copier.Options{
		ChunkSize: u.ChunkSize,
		Total:     u.Size,
		Token:     u.Token,
		Reporter:  u.Reporter,
	}
}

// maxNameAttempts bounds the search for a free delivery name.
const maxNameAttempts = 1000

// candidateName returns name for attempt 0 and "base (n).ext" afterwards, so
// a repeated delivery never replaces an earlier one.
func candidateName(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}

// sniffLen is how much of a file is inspected for its content type.
const sniffLen = 3072

// DetectContentType sniffs the MIME type of the file at path.
func DetectContentType(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()
	head := make([]byte, sniffLen)
	n, _ := io.ReadFull(f, head)
	return detectMIME(head[:n])
}

func detectMIME(head []byte) string {
	if len(head) == 0 {
		return "application/octet-stream"
	}
	mt := http.DetectContentType(head)
	if mt != "application/octet-stream" {
		return mt
	}
	return mimetype.Detect(head).String()
}

// IsVideo classifies name/path as a video by extension first, then by
// sniffed content.
func IsVideo(name, path string) bool {
	if models.IsVideoExt(name) {
		return true
	}
	return strings.HasPrefix(DetectContentType(path), "video/")
}
