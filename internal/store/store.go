// Package store provides the SQLite-backed session index: session records
// plus the per-session display projection that frontends page through. The
// authoritative transcript lives in blob storage; this index is derived from
// it and may lag one append behind after a crash.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/strudel-ai/strudel/internal/logging"
	"github.com/strudel-ai/strudel/pkg/types"
)

var ErrNotFound = errors.New("not found")

// Store wraps the SQLite database holding sessions and display rows.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:  db,
		log: logging.With().Str("component", "store").Logger(),
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.log.Info().Str("path", path).Msg("session index opened")
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id            TEXT PRIMARY KEY,
			config        TEXT NOT NULL,
			status        TEXT NOT NULL,
			created       INTEGER NOT NULL,
			last_activity INTEGER NOT NULL,

			CHECK (status IN ('active', 'terminated'))
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_activity
			ON sessions(last_activity DESC);

		CREATE TABLE IF NOT EXISTS display_messages (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq        INTEGER NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			timestamp  TEXT NOT NULL,

			PRIMARY KEY (session_id, seq),
			CHECK (role IN ('user', 'assistant'))
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutSession inserts or replaces a session record.
func (s *Store) PutSession(ctx context.Context, session *types.Session) error {
	config, err := json.Marshal(session.Config)
	if err != nil {
		return fmt.Errorf("marshaling session config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (id, config, status, created, last_activity)
		VALUES (?, ?, ?, ?, ?)
	`, session.ID, string(config), string(session.Status), session.Time.Created, session.Time.LastActivity)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id. Returns ErrNotFound if absent.
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, config, status, created, last_activity
		FROM sessions WHERE id = ?
	`, id)
	return scanSession(row.Scan)
}

func scanSession(scan func(...any) error) (*types.Session, error) {
	var session types.Session
	var config, status string

	err := scan(&session.ID, &config, &status, &session.Time.Created, &session.Time.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if err := json.Unmarshal([]byte(config), &session.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling session config: %w", err)
	}
	session.Status = types.SessionStatus(status)
	return &session, nil
}

// ListSessions returns sessions ordered by most recent activity.
func (s *Store) ListSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, config, status, created, last_activity
		FROM sessions
		ORDER BY last_activity DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// SetSessionStatus updates a session's lifecycle status.
func (s *Store) SetSessionStatus(ctx context.Context, id string, status types.SessionStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("updating session status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchSession bumps a session's last-activity timestamp.
func (s *Store) TouchSession(ctx context.Context, id string, lastActivity int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = ? WHERE id = ?`, lastActivity, id)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session and, via the foreign key cascade, its
// display rows. Returns ErrNotFound if no such session exists.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendDisplayRows appends rows to a session's display projection in one
// transaction, assigning consecutive sequence numbers after the current max.
func (s *Store) AppendDisplayRows(ctx context.Context, sessionID string, rows []types.DisplayRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM display_messages WHERE session_id = ?`,
		sessionID).Scan(&next)
	if err != nil {
		return fmt.Errorf("querying next display seq: %w", err)
	}

	for i, row := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO display_messages (session_id, seq, role, content, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`, sessionID, next+int64(i), row.Role, row.Content, row.Timestamp)
		if err != nil {
			return fmt.Errorf("inserting display row: %w", err)
		}
	}

	return tx.Commit()
}

// ListDisplayRows returns a page of display rows for a session in
// chronological order. When beforeSeq >= 0 only rows with seq < beforeSeq are
// considered; the page holds the most recent `limit` of those.
func (s *Store) ListDisplayRows(ctx context.Context, sessionID string, beforeSeq int64, limit int) ([]types.DisplayRow, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var query string
	var args []any

	if beforeSeq >= 0 {
		query = `
			SELECT seq, role, content, timestamp
			FROM (
				SELECT seq, role, content, timestamp
				FROM display_messages
				WHERE session_id = ? AND seq < ?
				ORDER BY seq DESC
				LIMIT ?
			)
			ORDER BY seq ASC
		`
		args = []any{sessionID, beforeSeq, limit}
	} else {
		query = `
			SELECT seq, role, content, timestamp
			FROM (
				SELECT seq, role, content, timestamp
				FROM display_messages
				WHERE session_id = ?
				ORDER BY seq DESC
				LIMIT ?
			)
			ORDER BY seq ASC
		`
		args = []any{sessionID, limit}
	}

	dbRows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying display rows: %w", err)
	}
	defer dbRows.Close()

	rows := []types.DisplayRow{}
	for dbRows.Next() {
		var row types.DisplayRow
		if err := dbRows.Scan(&row.Seq, &row.Role, &row.Content, &row.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning display row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, dbRows.Err()
}

// CountDisplayRows returns the number of display rows for a session.
func (s *Store) CountDisplayRows(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM display_messages WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting display rows: %w", err)
	}
	return count, nil
}

// CountDisplayRowsByRole returns the number of display rows with the given
// role for a session.
func (s *Store) CountDisplayRowsByRole(ctx context.Context, sessionID, role string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM display_messages WHERE session_id = ? AND role = ?`,
		sessionID, role).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting display rows: %w", err)
	}
	return count, nil
}
