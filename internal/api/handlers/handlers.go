package handlers

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/The-Promised-Neverland/relay/internal/api/middleware"
	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/internal/service"
	"github.com/The-Promised-Neverland/relay/internal/transfer"
)

// Operations starts transfers with the operator's live status surface.
type Operations interface {
	Run(identity string, ref models.Reference, name string) transfer.Result
	Start(identity string, ref models.Reference, name string) <-chan transfer.Result
}

// Tasks inspects and cancels running transfers.
type Tasks interface {
	Cancel(identity string) bool
	Task(identity string) (transfer.TaskInfo, bool)
}

type PreviewSaver interface {
	Save(ctx context.Context, identity string, src io.Reader) (string, error)
}

type SpaceReporter interface {
	ScratchFree() (uint64, error)
}

type HostReporter interface {
	GetHostMetrics() *service.HostMetrics
}

type Handler struct {
	Ops      Operations
	Tasks    Tasks
	Previews PreviewSaver
	Space    SpaceReporter
	Host     HostReporter
}

func NewHandler(ops Operations, tasks Tasks, previews PreviewSaver, space SpaceReporter) *Handler {
	return &Handler{
		Ops:      ops,
		Tasks:    tasks,
		Previews: previews,
		Space:    space,
	}
}

// WithHost enables the host metrics endpoint.
func (h *Handler) WithHost(host HostReporter) *Handler {
	h.Host = host
	return h
}

func identity(c *gin.Context) string {
	return c.GetString(middleware.IdentityKey)
}
