package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/internal/transfer"
)

// statusFor maps a transfer failure onto an HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, transfer.ErrRejectedConcurrent), errors.Is(err, transfer.ErrUserCancelled):
		return http.StatusConflict
	case errors.Is(err, transfer.ErrSizeExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, transfer.ErrSinkWrite):
		return http.StatusInsufficientStorage
	case errors.Is(err, transfer.ErrSourceForbidden):
		return http.StatusForbidden
	case errors.Is(err, transfer.ErrSourceUnreachable), errors.Is(err, transfer.ErrDestinationRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func resultBody(res transfer.Result) models.Message {
	return models.Message{
		Type: "transfer_result",
		Payload: models.TransferResult{
			Outcome:  string(res.Phase),
			Message:  res.Message,
			Location: res.Receipt.Location,
		},
	}
}

// UploadFile relays a multipart "file" synchronously. "name" renames it and
// forward=true applies the forwarded-video name.
func (h *Handler) UploadFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "file is required: " + err.Error(),
		})
		return
	}
	name := c.PostForm("name")
	if forward, _ := strconv.ParseBool(c.PostForm("forward")); forward {
		name = models.ForwardedVideoName
	}
	ref := models.FileRef(models.InboundFile{
		Name: fh.Filename,
		Size: fh.Size,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	})
	res := h.Ops.Run(identity(c), ref, name)
	c.JSON(statusFor(res.Err), resultBody(res))
}

// StartTransfer queues a URL transfer and returns immediately.
func (h *Handler) StartTransfer(c *gin.Context) {
	var req models.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "url binding error: " + err.Error(),
		})
		return
	}
	link, ok := models.ExtractURL(req.URL)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "url must start with http:// or https://",
		})
		return
	}
	id := identity(c)
	if _, busy := h.Tasks.Task(id); busy {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": transfer.MsgRejected,
		})
		return
	}
	h.Ops.Start(id, models.URLRef(link), "")
	c.JSON(http.StatusAccepted, models.Message{
		Type: "transfer_accepted",
		Payload: models.TransferAccepted{
			Identity: id,
			URL:      link,
			Accepted: time.Now().UTC(),
		},
	})
}

func (h *Handler) CancelTask(c *gin.Context) {
	cancelled := h.Tasks.Cancel(identity(c))
	msg := "No task is running."
	if cancelled {
		msg = transfer.MsgCancelled
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   cancelled,
		"cancelled": cancelled,
		"message":   msg,
	})
}

func (h *Handler) GetTask(c *gin.Context) {
	id := identity(c)
	info, ok := h.Tasks.Task(id)
	if !ok {
		c.JSON(http.StatusOK, models.Message{
			Type:    "task_state",
			Payload: models.TaskState{Identity: id, Active: false},
		})
		return
	}
	c.JSON(http.StatusOK, models.Message{
		Type: "task_state",
		Payload: gin.H{
			"identity": id,
			"active":   true,
			"task":     info,
		},
	})
}

// SaveThumbnail stores a multipart "image" as the operator's preview.
func (h *Handler) SaveThumbnail(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "image is required: " + err.Error(),
		})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	defer f.Close()
	if _, err := h.Previews.Save(c.Request.Context(), identity(c), f); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Thumbnail was not saved, please try again: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Your thumbnail has been saved.",
	})
}
