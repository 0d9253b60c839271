package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/strudel-ai/strudel/pkg/types"
)

// transcriptVersion is the current on-disk transcript format. Readers accept
// any version up to this one so old blobs stay loadable after upgrades.
const transcriptVersion = 1

// transcriptRecord is the serialized form of a session transcript.
type transcriptRecord struct {
	Version int               `json:"version"`
	Turns   []json.RawMessage `json:"turns"`
}

// TranscriptStore persists one transcript blob per session id.
type TranscriptStore struct {
	storage *Storage
}

// NewTranscriptStore creates a transcript store over the given blob storage.
func NewTranscriptStore(s *Storage) *TranscriptStore {
	return &TranscriptStore{storage: s}
}

// Init seeds an empty transcript for a new session.
func (ts *TranscriptStore) Init(ctx context.Context, sessionID string) error {
	return ts.storage.Put(ctx, []string{"transcript", sessionID}, transcriptRecord{
		Version: transcriptVersion,
		Turns:   []json.RawMessage{},
	})
}

// Save replaces the stored transcript with the given turn sequence.
func (ts *TranscriptStore) Save(ctx context.Context, sessionID string, turns []types.Turn) error {
	record := transcriptRecord{
		Version: transcriptVersion,
		Turns:   make([]json.RawMessage, 0, len(turns)),
	}
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("marshaling turn %s: %w", turn.TurnID(), err)
		}
		record.Turns = append(record.Turns, data)
	}
	return ts.storage.Put(ctx, []string{"transcript", sessionID}, record)
}

// Load reads the full transcript for a session. Returns ErrNotFound if the
// session has no stored transcript.
func (ts *TranscriptStore) Load(ctx context.Context, sessionID string) ([]types.Turn, error) {
	var record transcriptRecord
	if err := ts.storage.Get(ctx, []string{"transcript", sessionID}, &record); err != nil {
		return nil, err
	}
	if record.Version > transcriptVersion {
		return nil, fmt.Errorf("transcript for %s has unsupported version %d", sessionID, record.Version)
	}

	turns := make([]types.Turn, 0, len(record.Turns))
	for _, raw := range record.Turns {
		turn, err := types.UnmarshalTurn(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding transcript for %s: %w", sessionID, err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Delete removes a session's transcript blob.
func (ts *TranscriptStore) Delete(ctx context.Context, sessionID string) error {
	return ts.storage.Delete(ctx, []string{"transcript", sessionID})
}
