package transfer

import (
	"errors"

	"github.com/The-Promised-Neverland/relay/internal/copier"
	"github.com/The-Promised-Neverland/relay/internal/destination"
	"github.com/The-Promised-Neverland/relay/internal/resolver"
)

// Failure kinds. Component errors are classified with errors.Is against
// these.
var (
	ErrRejectedConcurrent  = errors.New("only one task can run at a time")
	ErrSourceUnreachable   = resolver.ErrUnreachable
	ErrSourceForbidden     = resolver.ErrForbidden
	ErrSizeExceeded        = copier.ErrTooLarge
	ErrUserCancelled       = copier.ErrCancelled
	ErrSinkWrite           = copier.ErrWrite
	ErrDestinationRejected = destination.ErrRejected
)

// Final status texts.
const (
	MsgRejected     = "Only one task can run at a time. Please wait."
	MsgDownloading  = "Starting download..."
	MsgUploading    = "Download complete, uploading..."
	MsgCompleted    = "Upload complete."
	MsgCancelled    = "Operation cancelled."
	MsgNoDriveID    = "Could not find a file id in the drive link. Send a valid link."
	msgDownloadFail = "Download failed: "
	msgUploadFail   = "Upload failed: "
	msgUnexpected   = "Oops! Something went wrong: "
)

// downloadMessage renders a failure of the Downloading phase.
func downloadMessage(err error) string {
	switch {
	case errors.Is(err, ErrUserCancelled):
		return MsgCancelled
	case errors.Is(err, resolver.ErrNoID):
		return MsgNoDriveID
	default:
		return msgDownloadFail + err.Error()
	}
}

func uploadMessage(err error) string {
	if errors.Is(err, ErrUserCancelled) {
		return MsgCancelled
	}
	return msgUploadFail + err.Error()
}
