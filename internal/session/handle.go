package session

import (
	"context"
	"sync"

	"github.com/strudel-ai/strudel/pkg/types"
)

// Agent produces the next turns of a conversation from a context window.
type Agent interface {
	Invoke(ctx context.Context, window ContextWindow) ([]types.Turn, error)
}

// Binder instantiates the agent for a session when it is created or
// restored.
type Binder interface {
	Bind(config types.SessionConfig) (Agent, error)
}

// Handle is the live, in-memory state of an active session. All turn
// processing for a session runs on its mailbox goroutine, which makes
// appends naturally serialized.
type Handle struct {
	ID    string
	agent Agent

	mu         sync.Mutex
	session    types.Session
	transcript []types.Turn

	mailbox   chan func(ctx context.Context)
	closed    chan struct{}
	closeOnce sync.Once
}

func newHandle(session types.Session, transcript []types.Turn, agent Agent) *Handle {
	h := &Handle{
		ID:         session.ID,
		agent:      agent,
		session:    session,
		transcript: transcript,
		mailbox:    make(chan func(ctx context.Context), 64),
		closed:     make(chan struct{}),
	}
	go h.run()
	return h
}

// run is the single consumer of the mailbox.
func (h *Handle) run() {
	for {
		select {
		case task := <-h.mailbox:
			task(context.Background())
		case <-h.closed:
			return
		}
	}
}

// Enqueue puts a task on the session's mailbox. Returns false if the handle
// is closed or the mailbox is full.
func (h *Handle) Enqueue(task func(ctx context.Context)) bool {
	select {
	case <-h.closed:
		return false
	default:
	}
	select {
	case h.mailbox <- task:
		return true
	case <-h.closed:
		return false
	default:
		return false
	}
}

// Close stops the mailbox consumer. Queued tasks are dropped.
func (h *Handle) Close() {
	h.closeOnce.Do(func() { close(h.closed) })
}

// Config returns the session's configuration.
func (h *Handle) Config() types.SessionConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session.Config
}

// Session returns a copy of the session record.
func (h *Handle) Session() types.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

// Transcript returns a copy of the in-memory transcript.
func (h *Handle) Transcript() []types.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.Turn(nil), h.transcript...)
}

// TurnCount returns the in-memory transcript length.
func (h *Handle) TurnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.transcript)
}

// Info returns the client-facing summary of the session.
func (h *Handle) Info() types.SessionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return types.SessionInfo{
		SessionID:    h.session.ID,
		SessionType:  h.session.Config.SessionType,
		ItemID:       h.session.Config.ItemID,
		ProjectID:    h.session.Config.ProjectID,
		AgentName:    h.session.Config.AgentName,
		Status:       string(h.session.Status),
		LastActivity: h.session.Time.LastActivity,
		TurnCount:    len(h.transcript),
	}
}

func (h *Handle) appendLocked(turns []types.Turn, lastActivity int64) []types.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transcript = append(h.transcript, turns...)
	h.session.Time.LastActivity = lastActivity
	return append([]types.Turn(nil), h.transcript...)
}
