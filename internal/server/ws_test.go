package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strudel-ai/strudel/pkg/types"
)

func (f *serverFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads one JSON frame with a deadline.
func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// readUntil reads frames until one matches the wanted type.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		frame := readFrame(t, conn)
		if frame["type"] == wantType {
			return frame
		}
	}
	t.Fatalf("never received %q frame", wantType)
	return nil
}

func handshake(t *testing.T, conn *websocket.Conn, sessionID string, role types.ClientRole) map[string]any {
	t.Helper()
	require.NoError(t, conn.WriteJSON(types.Handshake{
		Type:       types.MsgHandshake,
		SessionID:  sessionID,
		ClientRole: role,
	}))
	return readFrame(t, conn)
}

func TestWebSocketHandshakeUnknownSession(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t)

	frame := handshake(t, conn, "sess_ghost", types.RoleDriver)
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["message"], "not found")
}

func TestWebSocketHandshakeInvalidRole(t *testing.T) {
	f := newServerFixture(t)
	conn := f.dial(t)

	frame := handshake(t, conn, "sess_x", types.ClientRole("spectator"))
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["message"], "client_role")
}

func TestWebSocketHandshakeAck(t *testing.T) {
	f := newServerFixture(t)
	h, err := f.manager.Create(context.Background(), types.SessionConfig{
		SessionType: "clip", ItemID: "clip-1", ProjectID: "p1",
	})
	require.NoError(t, err)

	conn := f.dial(t)
	frame := handshake(t, conn, h.ID, types.RoleDriver)

	assert.Equal(t, types.MsgHandshakeAck, frame["type"])
	assert.Equal(t, h.ID, frame["session_id"])
	assert.True(t, strings.HasPrefix(frame["connection_id"].(string), "driver-"))
	// The session was resident, so this is a reconnect.
	assert.Equal(t, true, frame["is_reconnect"])

	info := frame["session_info"].(map[string]any)
	assert.Equal(t, "clip", info["sessionType"])
}

func TestWebSocketRestoresDurableSession(t *testing.T) {
	f := newServerFixture(t)
	h, err := f.manager.Create(context.Background(), types.SessionConfig{SessionType: "clip"})
	require.NoError(t, err)

	// Evict the resident handle so the connect path has to restore.
	f.manager.Shutdown()

	conn := f.dial(t)
	frame := handshake(t, conn, h.ID, types.RoleDriver)
	assert.Equal(t, types.MsgHandshakeAck, frame["type"])
	assert.Equal(t, false, frame["is_reconnect"])
}

func TestWebSocketUserMessageRoundTrip(t *testing.T) {
	f := newServerFixture(t)
	h, err := f.manager.Create(context.Background(), types.SessionConfig{SessionType: "clip"})
	require.NoError(t, err)

	conn := f.dial(t)
	handshake(t, conn, h.ID, types.RoleDriver)

	require.NoError(t, conn.WriteJSON(types.UserMessage{
		Type:      types.MsgUserMessage,
		SessionID: h.ID,
		Message:   "give me a kick pattern",
	}))

	typing := readUntil(t, conn, types.MsgTypingIndicator)
	assert.Equal(t, true, typing["is_typing"])

	final := readUntil(t, conn, types.MsgAgentResponse)
	assert.Equal(t, "four to the floor", final["content"])
	assert.Equal(t, true, final["is_final"])
}

func TestWebSocketMalformedFrameIsDropped(t *testing.T) {
	f := newServerFixture(t)
	h, err := f.manager.Create(context.Background(), types.SessionConfig{SessionType: "clip"})
	require.NoError(t, err)

	conn := f.dial(t)
	handshake(t, conn, h.ID, types.RoleDriver)

	// Junk and unknown types must not kill the connection.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "mystery"}))

	require.NoError(t, conn.WriteJSON(types.UserMessage{
		Type:      types.MsgUserMessage,
		SessionID: h.ID,
		Message:   "still alive?",
	}))
	final := readUntil(t, conn, types.MsgAgentResponse)
	assert.Equal(t, "four to the floor", final["content"])
}

func TestWebSocketStaleToolResponseIgnored(t *testing.T) {
	f := newServerFixture(t)
	h, err := f.manager.Create(context.Background(), types.SessionConfig{SessionType: "clip"})
	require.NoError(t, err)

	conn := f.dial(t)
	handshake(t, conn, h.ID, types.RoleExecutor)

	require.NoError(t, conn.WriteJSON(types.ToolResponse{
		Type:      types.MsgToolResponse,
		RequestID: "req-never-issued",
		Success:   true,
		Data:      json.RawMessage(`{}`),
	}))

	// Connection stays up; a second connection can still reach the session.
	driver := f.dial(t)
	frame := handshake(t, driver, h.ID, types.RoleDriver)
	assert.Equal(t, types.MsgHandshakeAck, frame["type"])
}
