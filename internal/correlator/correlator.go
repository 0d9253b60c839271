// Package correlator matches server-issued tool requests with the responses
// that executor clients send back, enforcing timeouts and cancellation.
package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/strudel-ai/strudel/internal/event"
	"github.com/strudel-ai/strudel/internal/logging"
	"github.com/strudel-ai/strudel/pkg/types"
)

var (
	// ErrTimeout means no executor answered within the request's deadline.
	ErrTimeout = errors.New("tool request timed out")
	// ErrConnectionLost means the session lost its last connection while the
	// request was in flight.
	ErrConnectionLost = errors.New("connection lost")
	// ErrCancelled means the request was cancelled, e.g. on session
	// termination.
	ErrCancelled = errors.New("tool request cancelled")
)

// ToolError is a failure reported by the executor itself, as opposed to a
// transport or timeout failure.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// Sender delivers frames to a session's connections by role.
type Sender interface {
	Send(ctx context.Context, sessionID string, target types.ClientRole, v any) bool
}

type outcome struct {
	data json.RawMessage
	err  error
}

type pendingRequest struct {
	requestID string
	tool      string
	result    chan outcome
}

// Correlator tracks in-flight tool requests keyed by (session, request id).
// The first response for a request wins; later or unknown responses are
// logged and dropped.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]map[string]*pendingRequest

	sender         Sender
	bus            *event.Bus
	defaultTimeout time.Duration
	log            zerolog.Logger
}

// New creates a correlator sending requests through the given sender.
func New(sender Sender, bus *event.Bus, defaultTimeout time.Duration) *Correlator {
	return &Correlator{
		pending:        make(map[string]map[string]*pendingRequest),
		sender:         sender,
		bus:            bus,
		defaultTimeout: defaultTimeout,
		log:            logging.With().Str("component", "correlator").Logger(),
	}
}

// Request sends a tool request to the session's executor connections and
// blocks until a response, the timeout, or cancellation. A session with no
// executor connected still waits out the timeout so a client reconnecting
// mid-request can answer.
func (c *Correlator) Request(ctx context.Context, sessionID, toolName string, params map[string]any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	requestID := uuid.NewString()

	p := &pendingRequest{
		requestID: requestID,
		tool:      toolName,
		result:    make(chan outcome, 1),
	}

	c.mu.Lock()
	if c.pending[sessionID] == nil {
		c.pending[sessionID] = make(map[string]*pendingRequest)
	}
	c.pending[sessionID][requestID] = p
	c.mu.Unlock()

	c.bus.Publish(event.Event{Type: event.ToolRequested, Data: requestID})

	delivered := c.sender.Send(ctx, sessionID, types.RoleExecutor, types.ToolRequest{
		Type:       types.MsgToolRequest,
		RequestID:  requestID,
		ToolName:   toolName,
		Parameters: params,
		TimeoutMS:  timeout.Milliseconds(),
	})
	if !delivered {
		c.log.Warn().
			Str("session", sessionID).
			Str("tool", toolName).
			Msg("no executor connected, waiting for one to appear")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-p.result:
		c.bus.Publish(event.Event{Type: event.ToolResolved, Data: requestID})
		return out.data, out.err

	case <-timer.C:
		c.remove(sessionID, requestID)
		c.log.Warn().
			Str("session", sessionID).
			Str("tool", toolName).
			Str("request", requestID).
			Dur("timeout", timeout).
			Msg("tool request timed out")
		return nil, ErrTimeout

	case <-ctx.Done():
		c.remove(sessionID, requestID)
		return nil, ctx.Err()
	}
}

// Resolve completes a pending request with an executor's response. The
// request is removed before delivery, so only the first response counts;
// responses for unknown or already-resolved requests are dropped.
func (c *Correlator) Resolve(sessionID string, resp types.ToolResponse) {
	c.mu.Lock()
	p := c.pending[sessionID][resp.RequestID]
	if p != nil {
		delete(c.pending[sessionID], resp.RequestID)
		if len(c.pending[sessionID]) == 0 {
			delete(c.pending, sessionID)
		}
	}
	c.mu.Unlock()

	if p == nil {
		c.log.Warn().
			Str("session", sessionID).
			Str("request", resp.RequestID).
			Msg("response for unknown or already-resolved request")
		return
	}

	if resp.Success {
		p.result <- outcome{data: resp.Data}
		return
	}
	msg := resp.Error
	if msg == "" {
		msg = "unknown error"
	}
	p.result <- outcome{err: &ToolError{Tool: p.tool, Message: msg}}
}

// CancelSession fails every pending request of a session. The reason
// "connection lost" maps to ErrConnectionLost, anything else to
// ErrCancelled.
func (c *Correlator) CancelSession(sessionID, reason string) {
	c.mu.Lock()
	pendings := c.pending[sessionID]
	delete(c.pending, sessionID)
	c.mu.Unlock()

	if len(pendings) == 0 {
		return
	}

	err := fmt.Errorf("%w: %s", ErrCancelled, reason)
	if reason == "connection lost" {
		err = ErrConnectionLost
	}

	for _, p := range pendings {
		p.result <- outcome{err: err}
	}
	c.log.Info().
		Str("session", sessionID).
		Int("cancelled", len(pendings)).
		Str("reason", reason).
		Msg("cancelled pending tool requests")
}

// PendingCount returns the number of in-flight requests for a session.
func (c *Correlator) PendingCount(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending[sessionID])
}

func (c *Correlator) remove(sessionID, requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.pending[sessionID]; m != nil {
		delete(m, requestID)
		if len(m) == 0 {
			delete(c.pending, sessionID)
		}
	}
}
