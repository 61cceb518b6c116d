package ws

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/pkg/logger"
)

// ErrNotConnected is returned when the identity has no live session.
var ErrNotConnected = errors.New("operator not connected")

// HandlerFunc handles one inbound frame of a session.
type HandlerFunc func(s *Session, msg *models.Message) error

// Hub holds the live operator sessions, one per identity.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	handlers map[string]HandlerFunc
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		handlers: make(map[string]HandlerFunc),
	}
}

func (h *Hub) RegisterHandler(msgType string, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = fn
}

func (h *Hub) handler(msgType string) (HandlerFunc, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.handlers[msgType]
	return fn, ok
}

// Connect registers conn as the session of identity and starts its pumps. A
// previous session of the same identity is closed.
func (h *Hub) Connect(identity string, conn *websocket.Conn) *Session {
	s := newSession(h, identity, conn)
	h.mu.Lock()
	old, exists := h.sessions[identity]
	h.sessions[identity] = s
	h.mu.Unlock()
	if exists {
		logger.Log.Info("Operator reconnecting, closing previous session", "identity", identity, "session", old.ID)
		old.Close()
	} else {
		logger.Log.Info("Operator connected", "identity", identity, "session", s.ID)
	}
	s.runPumps()
	return s
}

// remove drops s if it is still the current session of its identity.
func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.sessions[s.Identity]; ok && cur == s {
		delete(h.sessions, s.Identity)
		logger.Log.Info("Operator disconnected", "identity", s.Identity, "session", s.ID)
	}
}

func (h *Hub) Connected(identity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[identity]
	return ok
}

// Send queues msg on the session of identity.
func (h *Hub) Send(identity string, msg models.Message) error {
	h.mu.RLock()
	s, ok := h.sessions[identity]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, identity)
	}
	return s.Send(msg)
}

// Notice sends a transient notice. Alerts are shown modally by clients.
func (h *Hub) Notice(identity, text string, alert bool) error {
	return h.Send(identity, models.Message{
		Type:    models.RelayMsgNotice,
		Payload: models.NoticePayload{Text: text, Alert: alert},
	})
}

// Close ends every session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
