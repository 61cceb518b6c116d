package handlers

import (
	"errors"

	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/internal/transfer"
	"github.com/The-Promised-Neverland/relay/pkg/logger"
)

const (
	MsgNoLink    = "Send a message containing an http(s) link."
	MsgNoTask    = "No task is running."
	MsgCancelled = transfer.MsgCancelled
)

var errBadPayload = errors.New("payload is not a valid object")

// OperatorURL starts a transfer for the first link found in the frame text.
func (h *Handlers) OperatorURL(identity string, msg *models.Message) error {
	payload, ok := msg.Payload.(map[string]interface{})
	if !ok {
		return errBadPayload
	}
	text, _ := payload["text"].(string)
	link, found := models.ExtractURL(text)
	if !found {
		return h.Hub.Notice(identity, MsgNoLink, false)
	}
	h.Start(identity, models.URLRef(link), "")
	return nil
}

// CancelTask signals the running task of identity. The task itself posts
// the final status; the operator only gets an alert here.
func (h *Handlers) CancelTask(identity string) error {
	if h.Transfers.Cancel(identity) {
		return h.Hub.Notice(identity, MsgCancelled, true)
	}
	return h.Hub.Notice(identity, MsgNoTask, true)
}

// Start runs a transfer in the background with a status message on the
// operator's session and reports the delivery when it completes.
func (h *Handlers) Start(identity string, ref models.Reference, name string) <-chan transfer.Result {
	done := make(chan transfer.Result, 1)
	go func() {
		defer close(done)
		res := h.Run(identity, ref, name)
		done <- res
	}()
	return done
}

// Run is the synchronous form of Start.
func (h *Handlers) Run(identity string, ref models.Reference, name string) transfer.Result {
	res := h.Transfers.Run(h.ctx, transfer.Request{
		Identity:  identity,
		Reference: ref,
		Name:      name,
		Surface:   h.Hub.NewStatus(identity),
	})
	if res.Err == nil {
		delivered := models.Message{
			Type: models.RelayMsgDelivered,
			Payload: models.DeliveredPayload{
				Name:     res.Receipt.Name,
				Location: res.Receipt.Location,
				Video:    res.Receipt.Video,
			},
		}
		if err := h.Hub.Send(identity, delivered); err != nil {
			logger.Log.Debug("Delivery notice not sent", "identity", identity, "err", err)
		}
	}
	return res
}
