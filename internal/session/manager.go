// Package session owns the session lifecycle: creation, restore from
// durable storage, serialized turn appends, and termination.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/strudel-ai/strudel/internal/event"
	"github.com/strudel-ai/strudel/internal/logging"
	"github.com/strudel-ai/strudel/internal/storage"
	"github.com/strudel-ai/strudel/internal/store"
	"github.com/strudel-ai/strudel/pkg/types"
)

// ErrNotFound is returned when a session id has no durable record.
var ErrNotFound = errors.New("session not found")

// PendingCanceler cancels in-flight tool requests for a session.
type PendingCanceler interface {
	CancelSession(sessionID, reason string)
}

type restoreFlight struct {
	done   chan struct{}
	handle *Handle
	err    error
}

// Manager owns the in-memory map of active sessions. The durable stores are
// authoritative across restarts; the map is a cache rebuildable via Restore.
type Manager struct {
	mu      sync.Mutex
	active  map[string]*Handle
	flights map[string]*restoreFlight

	index       *store.Store
	transcripts *storage.TranscriptStore
	binder      Binder
	bus         *event.Bus
	canceler    PendingCanceler
	log         zerolog.Logger
}

// NewManager creates a session manager over the given stores.
func NewManager(index *store.Store, transcripts *storage.TranscriptStore, binder Binder, bus *event.Bus) *Manager {
	return &Manager{
		active:      make(map[string]*Handle),
		flights:     make(map[string]*restoreFlight),
		index:       index,
		transcripts: transcripts,
		binder:      binder,
		bus:         bus,
		log:         logging.With().Str("component", "session").Logger(),
	}
}

// SetPendingCanceler wires the tool-request canceler used on terminate.
func (m *Manager) SetPendingCanceler(c PendingCanceler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canceler = c
}

// Create provisions a new session: a durable record, an empty durable
// transcript, and a live handle with a bound agent.
func (m *Manager) Create(ctx context.Context, config types.SessionConfig) (*Handle, error) {
	now := time.Now().UnixMilli()
	session := types.Session{
		ID:     fmt.Sprintf("sess_%s", ulid.Make().String()),
		Config: config,
		Status: types.SessionActive,
		Time:   types.SessionTime{Created: now, LastActivity: now},
	}

	if err := m.index.PutSession(ctx, &session); err != nil {
		return nil, fmt.Errorf("creating session record: %w", err)
	}
	if err := m.transcripts.Init(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("seeding transcript: %w", err)
	}

	agent, err := m.binder.Bind(config)
	if err != nil {
		return nil, fmt.Errorf("binding agent: %w", err)
	}

	handle := newHandle(session, nil, agent)

	m.mu.Lock()
	m.active[session.ID] = handle
	m.mu.Unlock()

	m.log.Info().
		Str("session", session.ID).
		Str("type", config.SessionType).
		Str("item", config.ItemID).
		Msg("session created")
	m.bus.Publish(event.Event{Type: event.SessionCreated, Data: session.ID})

	return handle, nil
}

// GetActive returns the resident handle for a session, or nil.
func (m *Manager) GetActive(id string) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id]
}

// Restore loads a session from durable storage and makes it active. Unlike
// Create it never re-runs provisioning. Concurrent restores for the same id
// collapse into one reconstruction; everyone gets the same handle.
func (m *Manager) Restore(ctx context.Context, id string) (*Handle, error) {
	m.mu.Lock()
	if handle, ok := m.active[id]; ok {
		m.mu.Unlock()
		return handle, nil
	}
	if flight, ok := m.flights[id]; ok {
		m.mu.Unlock()
		<-flight.done
		return flight.handle, flight.err
	}
	flight := &restoreFlight{done: make(chan struct{})}
	m.flights[id] = flight
	m.mu.Unlock()

	handle, err := m.restore(ctx, id)

	m.mu.Lock()
	if err == nil {
		m.active[id] = handle
	}
	delete(m.flights, id)
	m.mu.Unlock()

	flight.handle = handle
	flight.err = err
	close(flight.done)

	if err == nil {
		m.bus.Publish(event.Event{Type: event.SessionRestored, Data: id})
	}
	return handle, err
}

func (m *Manager) restore(ctx context.Context, id string) (*Handle, error) {
	session, err := m.index.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading session record: %w", err)
	}

	transcript, err := m.transcripts.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("loading transcript: %w", err)
		}
		m.log.Warn().Str("session", id).Msg("no transcript blob, starting empty")
		transcript = nil
	}

	m.checkDurabilityGap(ctx, id, transcript)

	agent, err := m.binder.Bind(session.Config)
	if err != nil {
		return nil, fmt.Errorf("binding agent: %w", err)
	}

	m.log.Info().
		Str("session", id).
		Int("turns", len(transcript)).
		Msg("session restored")

	return newHandle(*session, transcript, agent), nil
}

// checkDurabilityGap detects the display index lagging behind the transcript
// blob, which happens if the process crashed between the two appendTurns
// writes. The gap is surfaced as a warning only; the blob is authoritative
// and the session restores normally.
func (m *Manager) checkDurabilityGap(ctx context.Context, id string, transcript []types.Turn) {
	userTurns := 0
	for _, turn := range transcript {
		if _, ok := turn.(*types.UserTurn); ok {
			userTurns++
		}
	}
	if userTurns == 0 {
		return
	}

	indexed, err := m.index.CountDisplayRowsByRole(ctx, id, "user")
	if err != nil {
		m.log.Warn().Err(err).Str("session", id).Msg("could not check display index")
		return
	}
	if indexed < userTurns {
		m.log.Warn().
			Str("session", id).
			Int("transcript_user_turns", userTurns).
			Int("indexed_user_rows", indexed).
			Msg("display index behind transcript blob")
	}
}

// AppendTurns appends turns to the in-memory transcript, persists the full
// transcript blob, then appends the display projection to the index. The two
// writes are not transactional: a crash in between leaves the blob ahead of
// the index. Callers must come through the session's mailbox so appends for
// one session never interleave.
func (m *Manager) AppendTurns(ctx context.Context, handle *Handle, turns []types.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	snapshot := handle.appendLocked(turns, now)

	if err := m.transcripts.Save(ctx, handle.ID, snapshot); err != nil {
		return fmt.Errorf("persisting transcript: %w", err)
	}

	if err := m.index.AppendDisplayRows(ctx, handle.ID, projectDisplayRows(turns)); err != nil {
		return fmt.Errorf("appending display rows: %w", err)
	}
	if err := m.index.TouchSession(ctx, handle.ID, now); err != nil {
		m.log.Warn().Err(err).Str("session", handle.ID).Msg("could not bump activity")
	}

	m.bus.Publish(event.Event{Type: event.TurnAppended, Data: handle.ID})
	return nil
}

// Terminate flips the durable status, evicts the session from memory, and
// cancels any tool requests still in flight for it.
func (m *Manager) Terminate(ctx context.Context, id string) error {
	m.mu.Lock()
	handle := m.active[id]
	delete(m.active, id)
	canceler := m.canceler
	m.mu.Unlock()

	if handle != nil {
		handle.Close()
	}
	if canceler != nil {
		canceler.CancelSession(id, "session terminated")
	}

	if err := m.index.SetSessionStatus(ctx, id, types.SessionTerminated); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("updating session status: %w", err)
	}

	m.log.Info().Str("session", id).Msg("session terminated")
	m.bus.Publish(event.Event{Type: event.SessionTerminated, Data: id})
	return nil
}

// Delete terminates a session and removes its durable record, display rows
// and transcript blob.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.Terminate(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := m.index.DeleteSession(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting session record: %w", err)
	}
	if err := m.transcripts.Delete(ctx, id); err != nil {
		m.log.Warn().Err(err).Str("session", id).Msg("could not delete transcript blob")
	}
	m.bus.Publish(event.Event{Type: event.SessionDeleted, Data: id})
	return nil
}

// Rename updates the session's user-facing name.
func (m *Manager) Rename(ctx context.Context, id, name string) error {
	session, err := m.index.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	session.Config.Name = name
	if err := m.index.PutSession(ctx, session); err != nil {
		return fmt.Errorf("renaming session: %w", err)
	}

	m.mu.Lock()
	if handle, ok := m.active[id]; ok {
		handle.mu.Lock()
		handle.session.Config.Name = name
		handle.mu.Unlock()
	}
	m.mu.Unlock()

	m.bus.Publish(event.Event{Type: event.SessionUpdated, Data: id})
	return nil
}

// List returns summaries of all durable sessions, most recent first.
func (m *Manager) List(ctx context.Context) ([]types.SessionInfo, error) {
	sessions, err := m.index.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]types.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		count, err := m.index.CountDisplayRows(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, types.SessionInfo{
			SessionID:    s.ID,
			SessionType:  s.Config.SessionType,
			ItemID:       s.Config.ItemID,
			ProjectID:    s.Config.ProjectID,
			AgentName:    s.Config.AgentName,
			Status:       string(s.Status),
			LastActivity: s.Time.LastActivity,
			TurnCount:    count,
		})
	}
	return infos, nil
}

// Get returns the durable session record.
func (m *Manager) Get(ctx context.Context, id string) (*types.Session, error) {
	session, err := m.index.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return session, err
}

// Messages returns a page of the display projection for a session.
func (m *Manager) Messages(ctx context.Context, id string, beforeSeq int64, pageSize int) ([]types.DisplayRow, error) {
	return m.index.ListDisplayRows(ctx, id, beforeSeq, pageSize)
}

// Shutdown closes the mailboxes of all active sessions.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.active))
	for _, h := range m.active {
		handles = append(handles, h)
	}
	m.active = make(map[string]*Handle)
	m.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
}
