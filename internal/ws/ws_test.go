package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/internal/progress"
)

func startHub(t *testing.T, hub *Hub) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Connect(r.URL.Query().Get("id"), conn)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, base, identity string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(base+"?id="+identity, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitConnected(t *testing.T, hub *Hub, identity string) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Connected(identity) }, 2*time.Second, 10*time.Millisecond)
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestStatusPostsThenEdits(t *testing.T) {
	hub := NewHub()
	base := startHub(t, hub)
	conn := dial(t, base, "42")
	waitConnected(t, hub, "42")

	st := hub.NewStatus("42")
	require.NoError(t, st.Edit("Downloading...", []progress.Button{progress.CancelButton}))
	require.NoError(t, st.Edit("Upload complete.", nil))

	first := readFrame(t, conn)
	assert.Equal(t, models.RelayMsgStatus, first["type"])
	payload := first["payload"].(map[string]any)
	assert.Equal(t, st.ID(), payload["status_id"])
	buttons := payload["buttons"].([]any)
	require.Len(t, buttons, 1)
	assert.Equal(t, "cancel_task", buttons[0].(map[string]any)["data"])

	second := readFrame(t, conn)
	assert.Equal(t, models.RelayMsgStatusEdit, second["type"])
	payload = second["payload"].(map[string]any)
	assert.Equal(t, st.ID(), payload["status_id"])
	assert.Equal(t, "Upload complete.", payload["text"])
	assert.NotContains(t, payload, "buttons")
}

func TestStatusWithoutSession(t *testing.T) {
	hub := NewHub()
	err := hub.NewStatus("nobody").Edit("Upload complete.", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDispatchToHandler(t *testing.T) {
	hub := NewHub()
	got := make(chan string, 1)
	hub.RegisterHandler(models.OperatorMsgCancel, func(s *Session, msg *models.Message) error {
		got <- s.Identity
		return nil
	})
	base := startHub(t, hub)
	conn := dial(t, base, "42")
	waitConnected(t, hub, "42")

	require.NoError(t, conn.WriteJSON(models.Message{Type: "unknown"}))
	require.NoError(t, conn.WriteJSON(models.Message{Type: models.OperatorMsgCancel}))

	select {
	case id := <-got:
		assert.Equal(t, "42", id)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestReconnectReplacesSession(t *testing.T) {
	hub := NewHub()
	base := startHub(t, hub)
	old := dial(t, base, "42")
	waitConnected(t, hub, "42")
	fresh := dial(t, base, "42")

	// The old connection is closed by the hub.
	require.NoError(t, old.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := old.ReadMessage(); err != nil {
			break
		}
	}

	waitConnected(t, hub, "42")
	require.NoError(t, hub.Notice("42", "hello", true))
	frame := readFrame(t, fresh)
	assert.Equal(t, models.RelayMsgNotice, frame["type"])
	assert.Equal(t, true, frame["payload"].(map[string]any)["alert"])
}

func TestDisconnectRemovesSession(t *testing.T) {
	hub := NewHub()
	base := startHub(t, hub)
	conn := dial(t, base, "42")
	waitConnected(t, hub, "42")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !hub.Connected("42") }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, hub.Send("42", models.Message{Type: "x"}), ErrNotConnected)
}
