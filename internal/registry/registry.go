// Package registry tracks live client connections per session and routes
// outbound frames to them by role.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/strudel-ai/strudel/internal/event"
	"github.com/strudel-ai/strudel/internal/logging"
	"github.com/strudel-ai/strudel/pkg/types"
)

// Transport is the outbound half of a client connection. Implementations
// must be safe for concurrent Send calls.
type Transport interface {
	Send(ctx context.Context, v any) error
}

// PendingCanceler is notified when a session loses its last connection so
// that in-flight tool requests can fail fast instead of waiting out their
// timeouts.
type PendingCanceler interface {
	CancelSession(sessionID, reason string)
}

// SessionContext holds per-session connection state shared across a
// session's live connections.
type SessionContext struct {
	SessionID string
	Metadata  map[string]any
}

type connection struct {
	id        string
	role      types.ClientRole
	transport Transport
}

// Registry maps session ids to their live connections. Connection ids are
// namespaced by role ("driver-1a2b3c4d") so role routing is a prefix match.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]map[string]*connection
	contexts    map[string]*SessionContext

	canceler PendingCanceler
	bus      *event.Bus
	log      zerolog.Logger
}

// New creates an empty connection registry publishing to the given bus.
func New(bus *event.Bus) *Registry {
	return &Registry{
		connections: make(map[string]map[string]*connection),
		contexts:    make(map[string]*SessionContext),
		bus:         bus,
		log:         logging.With().Str("component", "registry").Logger(),
	}
}

// SetPendingCanceler wires the tool-request canceler. Set once at startup;
// a separate setter avoids a construction cycle between the registry and
// the correlator.
func (r *Registry) SetPendingCanceler(c PendingCanceler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceler = c
}

// Connect registers a transport for a session and returns the session
// context together with the new connection id.
func (r *Registry) Connect(sessionID string, role types.ClientRole, t Transport) (*SessionContext, string) {
	connectionID := fmt.Sprintf("%s-%s", role, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])

	r.mu.Lock()
	if r.connections[sessionID] == nil {
		r.connections[sessionID] = make(map[string]*connection)
	}
	r.connections[sessionID][connectionID] = &connection{
		id:        connectionID,
		role:      role,
		transport: t,
	}

	sessionCtx, ok := r.contexts[sessionID]
	if !ok {
		sessionCtx = &SessionContext{SessionID: sessionID, Metadata: make(map[string]any)}
		r.contexts[sessionID] = sessionCtx
	}
	r.mu.Unlock()

	r.log.Info().
		Str("session", sessionID).
		Str("connection", connectionID).
		Msg("connection registered")
	r.bus.Publish(event.Event{Type: event.ClientConnected, Data: connectionID})

	return sessionCtx, connectionID
}

// Disconnect removes one connection. When the last connection of a session
// goes away the session's live state is dropped and any pending tool
// requests are cancelled.
func (r *Registry) Disconnect(sessionID, connectionID string) {
	r.mu.Lock()
	conns, ok := r.connections[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(conns, connectionID)

	last := len(conns) == 0
	if last {
		delete(r.connections, sessionID)
		delete(r.contexts, sessionID)
	}
	canceler := r.canceler
	r.mu.Unlock()

	r.log.Info().
		Str("session", sessionID).
		Str("connection", connectionID).
		Bool("last", last).
		Msg("connection removed")
	r.bus.Publish(event.Event{Type: event.ClientDisconnected, Data: connectionID})

	if last && canceler != nil {
		canceler.CancelSession(sessionID, "connection lost")
	}
}

// DisconnectAll removes every connection of a session, cancelling pendings.
func (r *Registry) DisconnectAll(sessionID string) {
	r.mu.Lock()
	_, ok := r.connections[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.connections, sessionID)
	delete(r.contexts, sessionID)
	canceler := r.canceler
	r.mu.Unlock()

	r.log.Info().Str("session", sessionID).Msg("all connections removed")

	if canceler != nil {
		canceler.CancelSession(sessionID, "connection lost")
	}
}

// Send delivers a frame to every connection of the session matching the
// target role. Returns false when no matching connection exists. A failed
// send on one connection does not stop delivery to the others.
func (r *Registry) Send(ctx context.Context, sessionID string, target types.ClientRole, v any) bool {
	r.mu.RLock()
	conns := r.connections[sessionID]
	targets := make([]*connection, 0, len(conns))
	for _, c := range conns {
		if target == types.RoleAll || c.role == target {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		r.log.Warn().
			Str("session", sessionID).
			Str("target", string(target)).
			Msg("no matching connections")
		return false
	}

	for _, c := range targets {
		if err := c.transport.Send(ctx, v); err != nil {
			// leave teardown to the connection's own read loop
			r.log.Error().Err(err).Str("connection", c.id).Msg("send failed")
		}
	}
	return true
}

// HasConnections reports whether the session has any live connection.
func (r *Registry) HasConnections(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections[sessionID]) > 0
}

// ConnectionsFor returns the ids of the session's live connections matching
// the given role, sorted. RoleAll matches every connection.
func (r *Registry) ConnectionsFor(sessionID string, role types.ClientRole) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, c := range r.connections[sessionID] {
		if role == types.RoleAll || c.role == role {
			ids = append(ids, c.id)
		}
	}
	sort.Strings(ids)
	return ids
}

// CountByRole returns the number of live connections with the given role.
func (r *Registry) CountByRole(sessionID string, role types.ClientRole) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.connections[sessionID] {
		if role == types.RoleAll || c.role == role {
			n++
		}
	}
	return n
}

// Context returns the live session context, or nil if the session has no
// connections.
func (r *Registry) Context(sessionID string) *SessionContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contexts[sessionID]
}
