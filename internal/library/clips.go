package library

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/strudel-ai/strudel/pkg/types"
)

func (l *Library) clipPaths(projectID, clipID string) (codePath, metaPath string) {
	dir := filepath.Join(l.projectPath(projectID), "clips")
	return filepath.Join(dir, clipID+".js"), filepath.Join(dir, clipID+".json")
}

// readClip loads a clip's metadata and code. Callers hold l.mu.
func (l *Library) readClip(projectID, clipID string) (*types.Clip, error) {
	codePath, metaPath := l.clipPaths(projectID, clipID)

	var c types.Clip
	if err := readJSON(metaPath, &c); err != nil {
		return nil, err
	}
	code, err := os.ReadFile(codePath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading clip code: %w", err)
	}
	c.Code = string(code)
	return &c, nil
}

// writeClip persists a clip as a metadata file plus a code file. Callers
// hold l.mu.
func (l *Library) writeClip(c *types.Clip) error {
	codePath, metaPath := l.clipPaths(c.ProjectID, c.ClipID)

	// The metadata file never carries the code.
	meta := *c
	meta.Code = ""
	if err := writeJSON(metaPath, &meta); err != nil {
		return err
	}
	if err := os.WriteFile(codePath, []byte(c.Code), 0644); err != nil {
		return fmt.Errorf("writing clip code: %w", err)
	}
	return nil
}

// ListClips returns all clips in a project, optionally filtered by a
// substring query against id and name.
func (l *Library) ListClips(projectID, query string) ([]types.Clip, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids, err := listJSONIDs(filepath.Join(l.projectPath(projectID), "clips"))
	if err != nil {
		return nil, err
	}

	clips := []types.Clip{}
	for _, id := range ids {
		c, err := l.readClip(projectID, id)
		if err != nil {
			l.log.Warn().Str("projectID", projectID).Str("clipID", id).Err(err).Msg("skipping unreadable clip")
			continue
		}
		if matches(query, c.ClipID, c.Name) {
			clips = append(clips, *c)
		}
	}
	return clips, nil
}

func (l *Library) GetClip(projectID, clipID string) (*types.Clip, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	if err := validID(clipID); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.readClip(projectID, clipID)
}

func (l *Library) CreateClip(projectID, clipID, name, code string, metadata map[string]any) (*types.Clip, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	if err := validID(clipID); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_, metaPath := l.clipPaths(projectID, clipID)
	if _, err := os.Stat(metaPath); err == nil {
		return nil, fmt.Errorf("clip %s: %w", clipID, ErrExists)
	}

	now := nowMillis()
	c := &types.Clip{
		ProjectID: projectID,
		ClipID:    clipID,
		Name:      name,
		Code:      code,
		Metadata:  metadata,
		Created:   now,
		Updated:   now,
	}
	if err := l.writeClip(c); err != nil {
		return nil, err
	}
	l.log.Info().Str("projectID", projectID).Str("clipID", clipID).Msg("clip created")
	return c, nil
}

// UpdateClip replaces a clip's code and merges metadata. Nil metadata leaves
// the existing metadata unchanged.
func (l *Library) UpdateClip(projectID, clipID, newCode string, metadata map[string]any) (*types.Clip, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	if err := validID(clipID); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.readClip(projectID, clipID)
	if err != nil {
		return nil, err
	}
	c.Code = newCode
	if metadata != nil {
		if c.Metadata == nil {
			c.Metadata = make(map[string]any)
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
	c.Updated = nowMillis()
	if err := l.writeClip(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (l *Library) DeleteClip(projectID, clipID string) error {
	if err := validID(projectID); err != nil {
		return err
	}
	if err := validID(clipID); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	codePath, metaPath := l.clipPaths(projectID, clipID)
	if _, err := os.Stat(metaPath); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("stat clip: %w", err)
	}
	if err := os.Remove(metaPath); err != nil {
		return fmt.Errorf("deleting clip metadata: %w", err)
	}
	if err := os.Remove(codePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting clip code: %w", err)
	}
	l.log.Info().Str("projectID", projectID).Str("clipID", clipID).Msg("clip deleted")
	return nil
}
