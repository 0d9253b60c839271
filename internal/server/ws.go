package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strudel-ai/strudel/internal/session"
	"github.com/strudel-ai/strudel/pkg/types"
)

const (
	handshakeWait = 10 * time.Second
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameSize  = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The REST layer already allows all origins; the socket matches it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTransport adapts a websocket connection to registry.Transport. The
// mutex serializes writes; gorilla connections allow one concurrent writer.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (t *wsTransport) Send(ctx context.Context, v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket upgrades the connection, performs the handshake, and runs
// the read loop until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameSize)
	transport := &wsTransport{conn: conn}

	hs, err := s.readHandshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket handshake rejected")
		transport.Send(r.Context(), map[string]string{"type": "error", "message": err.Error()})
		return
	}

	handle, isReconnect, err := s.resolveSession(r.Context(), hs.SessionID)
	if err != nil {
		transport.Send(r.Context(), map[string]string{"type": "error", "message": err.Error()})
		return
	}

	_, connID := s.deps.Registry.Connect(hs.SessionID, hs.ClientRole, transport)
	defer s.deps.Registry.Disconnect(hs.SessionID, connID)

	ack := types.HandshakeAck{
		Type:         types.MsgHandshakeAck,
		SessionID:    hs.SessionID,
		ConnectionID: connID,
		IsReconnect:  isReconnect,
		SessionInfo:  handle.Info(),
	}
	if err := transport.Send(r.Context(), ack); err != nil {
		return
	}

	log := s.log.With().Str("sessionID", hs.SessionID).Str("connectionID", connID).Logger()
	log.Info().Str("role", string(hs.ClientRole)).Msg("client connected")

	// Keepalive pings until the read loop exits.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := transport.ping(); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			log.Info().Msg("client disconnected")
			return
		}

		msg, err := types.DecodeClientMessage(data)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}

		switch m := msg.(type) {
		case *types.UserMessage:
			if !s.deps.Processor.HandleUserMessage(handle, *m) {
				log.Warn().Msg("session mailbox unavailable, message dropped")
				transport.Send(r.Context(), types.AgentResponse{
					Type:    types.MsgAgentResponse,
					Content: "Error: session is busy or closed, please retry",
					IsFinal: true,
				})
			}
		case *types.ToolResponse:
			s.deps.Correlator.Resolve(hs.SessionID, *m)
		}
	}
}

// readHandshake reads and validates the first frame.
func (s *Server) readHandshake(conn *websocket.Conn) (*types.Handshake, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeWait))
	defer conn.SetReadDeadline(time.Time{})

	var hs types.Handshake
	if err := conn.ReadJSON(&hs); err != nil {
		return nil, errors.New("expected handshake frame")
	}
	if hs.Type != types.MsgHandshake {
		return nil, errors.New("first frame must be a handshake")
	}
	if hs.SessionID == "" {
		return nil, errors.New("handshake missing session_id")
	}
	if !hs.ClientRole.Valid() {
		return nil, errors.New("handshake client_role must be driver or executor")
	}
	return &hs, nil
}

// resolveSession returns the resident handle for the session, restoring it
// from durable state when necessary.
func (s *Server) resolveSession(ctx context.Context, sessionID string) (*session.Handle, bool, error) {
	if handle := s.deps.Manager.GetActive(sessionID); handle != nil {
		return handle, true, nil
	}
	handle, err := s.deps.Manager.Restore(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, false, errors.New("session not found")
		}
		return nil, false, err
	}
	return handle, false, nil
}
