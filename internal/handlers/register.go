package handlers

import (
	"context"

	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/internal/transfer"
	"github.com/The-Promised-Neverland/relay/internal/ws"
)

// Transfers runs and cancels relay tasks.
type Transfers interface {
	Run(ctx context.Context, req transfer.Request) transfer.Result
	Cancel(identity string) bool
}

type Handlers struct {
	Hub       *ws.Hub
	Transfers Transfers
	ctx       context.Context
}

// NewHandler binds handlers to ctx; transfers started by them stop with it.
func NewHandler(ctx context.Context, hub *ws.Hub, transfers Transfers) *Handlers {
	return &Handlers{Hub: hub, Transfers: transfers, ctx: ctx}
}

func (h *Handlers) RegisterHandlers() {
	h.Hub.RegisterHandler(models.OperatorMsgURL, func(s *ws.Session, msg *models.Message) error {
		return h.OperatorURL(s.Identity, msg)
	})

	h.Hub.RegisterHandler(models.OperatorMsgCancel, func(s *ws.Session, msg *models.Message) error {
		return h.CancelTask(s.Identity)
	})
}
