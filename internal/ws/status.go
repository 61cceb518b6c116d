package ws

import (
	"sync"

	"github.com/google/uuid"

	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/internal/progress"
	"github.com/The-Promised-Neverland/relay/pkg/logger"
)

// Status is one editable status message on the operator's session. The first
// Edit posts it, later ones edit it in place. Without a live session the
// text is logged instead.
type Status struct {
	hub      *Hub
	identity string
	id       string

	mu     sync.Mutex
	posted bool
}

func (h *Hub) NewStatus(identity string) *Status {
	return &Status{hub: h, identity: identity, id: uuid.NewString()}
}

func (s *Status) ID() string { return s.id }

func (s *Status) Edit(text string, buttons []progress.Button) error {
	s.mu.Lock()
	typ := models.RelayMsgStatusEdit
	if !s.posted {
		typ = models.RelayMsgStatus
	}
	payload := models.StatusPayload{StatusID: s.id, Text: text}
	for _, b := range buttons {
		payload.Buttons = append(payload.Buttons, models.ButtonPayload{Text: b.Text, Data: b.Data})
	}
	err := s.hub.Send(s.identity, models.Message{Type: typ, Payload: payload})
	if err == nil {
		s.posted = true
	}
	s.mu.Unlock()

	if err != nil && len(buttons) == 0 {
		logger.Log.Info("Status", "identity", s.identity, "status_id", s.id, "text", text)
	}
	return err
}
