package library

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/strudel-ai/strudel/pkg/types"
)

func (l *Library) playlistPath(projectID, playlistID string) string {
	return filepath.Join(l.projectPath(projectID), "playlists", playlistID+".json")
}

// ListPlaylists returns all playlists in a project, optionally filtered by a
// substring query against id and name.
func (l *Library) ListPlaylists(projectID, query string) ([]types.Playlist, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids, err := listJSONIDs(filepath.Join(l.projectPath(projectID), "playlists"))
	if err != nil {
		return nil, err
	}

	playlists := []types.Playlist{}
	for _, id := range ids {
		var p types.Playlist
		if err := readJSON(l.playlistPath(projectID, id), &p); err != nil {
			l.log.Warn().Str("projectID", projectID).Str("playlistID", id).Err(err).Msg("skipping unreadable playlist")
			continue
		}
		if matches(query, p.PlaylistID, p.Name) {
			playlists = append(playlists, p)
		}
	}
	return playlists, nil
}

func (l *Library) GetPlaylist(projectID, playlistID string) (*types.Playlist, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	if err := validID(playlistID); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var p types.Playlist
	if err := readJSON(l.playlistPath(projectID, playlistID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *Library) CreatePlaylist(projectID, playlistID, name string, songIDs []string) (*types.Playlist, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	if err := validID(playlistID); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.playlistPath(projectID, playlistID)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("playlist %s: %w", playlistID, ErrExists)
	}
	if songIDs == nil {
		songIDs = []string{}
	}

	now := nowMillis()
	p := &types.Playlist{
		ProjectID:  projectID,
		PlaylistID: playlistID,
		Name:       name,
		SongIDs:    songIDs,
		Created:    now,
		Updated:    now,
	}
	if err := writeJSON(path, p); err != nil {
		return nil, err
	}
	l.log.Info().Str("projectID", projectID).Str("playlistID", playlistID).Msg("playlist created")
	return p, nil
}

// UpdatePlaylist replaces a playlist's song list and merges metadata.
func (l *Library) UpdatePlaylist(projectID, playlistID string, songIDs []string, metadata map[string]any) (*types.Playlist, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	if err := validID(playlistID); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.playlistPath(projectID, playlistID)
	var p types.Playlist
	if err := readJSON(path, &p); err != nil {
		return nil, err
	}
	p.SongIDs = songIDs
	if metadata != nil {
		if p.Metadata == nil {
			p.Metadata = make(map[string]any)
		}
		for k, v := range metadata {
			p.Metadata[k] = v
		}
	}
	p.Updated = nowMillis()
	if err := writeJSON(path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *Library) DeletePlaylist(projectID, playlistID string) error {
	if err := validID(projectID); err != nil {
		return err
	}
	if err := validID(playlistID); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.playlistPath(projectID, playlistID)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting playlist: %w", err)
	}
	l.log.Info().Str("projectID", projectID).Str("playlistID", playlistID).Msg("playlist deleted")
	return nil
}
