package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/pkg/logger"
)

const (
	maxMessageSize = 8192
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
)

var errSessionClosed = errors.New("session closed")

// Session is one live operator connection.
type Session struct {
	ID       string
	Identity string
	Conn     *websocket.Conn

	hub          *Hub
	sendCh       chan models.Message
	incomingCh   chan models.Message
	disconnectCh chan struct{}
	closeOnce    sync.Once

	mu       sync.Mutex
	lastSeen time.Time
}

func newSession(h *Hub, identity string, conn *websocket.Conn) *Session {
	return &Session{
		ID:           uuid.NewString(),
		Identity:     identity,
		Conn:         conn,
		hub:          h,
		sendCh:       make(chan models.Message, 256),
		incomingCh:   make(chan models.Message, 64),
		disconnectCh: make(chan struct{}),
		lastSeen:     time.Now(),
	}
}

func (s *Session) Send(msg models.Message) error {
	select {
	case <-s.disconnectCh:
		return errSessionClosed
	default:
	}
	select {
	case s.sendCh <- msg:
		return nil
	case <-s.disconnectCh:
		return errSessionClosed
	default:
		logger.Log.Warn("Send buffer full, dropping message", "identity", s.Identity, "type", msg.Type)
		return errors.New("send buffer full")
	}
}

// Done is closed once the session ends.
func (s *Session) Done() <-chan struct{} { return s.disconnectCh }

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.disconnectCh)
		s.Conn.Close()
		s.hub.remove(s)
	})
}

func (s *Session) runPumps() {
	go s.readPump()
	go s.writePump()
	go s.dispatchPump()
}

func (s *Session) readPump() {
	defer s.Close()
	s.Conn.SetReadLimit(maxMessageSize)
	s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		s.touch()
		return nil
	})
	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Warn("WebSocket read error", "identity", s.Identity, "err", err)
			}
			return
		}
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		s.touch()
		var msg models.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Log.Warn("Failed to parse frame", "identity", s.Identity, "err", err)
			continue
		}
		select {
		case s.incomingCh <- msg:
		case <-s.disconnectCh:
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()
	for {
		select {
		case msg := <-s.sendCh:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteJSON(msg); err != nil {
				logger.Log.Warn("Failed to write frame", "identity", s.Identity, "type", msg.Type, "err", err)
				return
			}
		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Log.Warn("Ping failed", "identity", s.Identity, "err", err)
				return
			}
		case <-s.disconnectCh:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Session) dispatchPump() {
	for {
		select {
		case msg := <-s.incomingCh:
			fn, ok := s.hub.handler(msg.Type)
			if !ok {
				logger.Log.Warn("No handler for frame type", "type", msg.Type)
				continue
			}
			if err := fn(s, &msg); err != nil {
				logger.Log.Error("Handler error", "type", msg.Type, "err", err)
			}
		case <-s.disconnectCh:
			return
		}
	}
}
