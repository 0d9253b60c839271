package library

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/strudel-ai/strudel/pkg/types"
)

func (l *Library) songPath(projectID, songID string) string {
	return filepath.Join(l.projectPath(projectID), "songs", songID+".json")
}

// ListSongs returns all songs in a project, optionally filtered by a
// substring query against id and name.
func (l *Library) ListSongs(projectID, query string) ([]types.Song, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids, err := listJSONIDs(filepath.Join(l.projectPath(projectID), "songs"))
	if err != nil {
		return nil, err
	}

	songs := []types.Song{}
	for _, id := range ids {
		var s types.Song
		if err := readJSON(l.songPath(projectID, id), &s); err != nil {
			l.log.Warn().Str("projectID", projectID).Str("songID", id).Err(err).Msg("skipping unreadable song")
			continue
		}
		if matches(query, s.SongID, s.Name) {
			songs = append(songs, s)
		}
	}
	return songs, nil
}

func (l *Library) GetSong(projectID, songID string) (*types.Song, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	if err := validID(songID); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var s types.Song
	if err := readJSON(l.songPath(projectID, songID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (l *Library) CreateSong(projectID, songID, name string, clipIDs []string) (*types.Song, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	if err := validID(songID); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.songPath(projectID, songID)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("song %s: %w", songID, ErrExists)
	}
	if clipIDs == nil {
		clipIDs = []string{}
	}

	now := nowMillis()
	s := &types.Song{
		ProjectID: projectID,
		SongID:    songID,
		Name:      name,
		ClipIDs:   clipIDs,
		Created:   now,
		Updated:   now,
	}
	if err := writeJSON(path, s); err != nil {
		return nil, err
	}
	l.log.Info().Str("projectID", projectID).Str("songID", songID).Msg("song created")
	return s, nil
}

// UpdateSong replaces a song's clip list and merges metadata.
func (l *Library) UpdateSong(projectID, songID string, clipIDs []string, metadata map[string]any) (*types.Song, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	if err := validID(songID); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.songPath(projectID, songID)
	var s types.Song
	if err := readJSON(path, &s); err != nil {
		return nil, err
	}
	s.ClipIDs = clipIDs
	if metadata != nil {
		if s.Metadata == nil {
			s.Metadata = make(map[string]any)
		}
		for k, v := range metadata {
			s.Metadata[k] = v
		}
	}
	s.Updated = nowMillis()
	if err := writeJSON(path, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (l *Library) DeleteSong(projectID, songID string) error {
	if err := validID(projectID); err != nil {
		return err
	}
	if err := validID(songID); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.songPath(projectID, songID)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting song: %w", err)
	}
	l.log.Info().Str("projectID", projectID).Str("songID", songID).Msg("song deleted")
	return nil
}
