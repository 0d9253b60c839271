// Package library provides filesystem-backed CRUD for the Strudel content
// library: projects, clips, songs and playlists under a content root.
//
// Layout:
//
//	<root>/<projectID>/project.json
//	<root>/<projectID>/clips/<clipID>.js      (Strudel code)
//	<root>/<projectID>/clips/<clipID>.json    (clip metadata)
//	<root>/<projectID>/songs/<songID>.json
//	<root>/<projectID>/playlists/<playlistID>.json
package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/strudel-ai/strudel/internal/logging"
	"github.com/strudel-ai/strudel/pkg/types"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrExists    = errors.New("already exists")
	ErrInvalidID = errors.New("invalid id")
)

// Library is a content library rooted at a directory.
type Library struct {
	root string
	mu   sync.RWMutex
	log  zerolog.Logger
}

func New(root string) (*Library, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating content root: %w", err)
	}
	return &Library{
		root: root,
		log:  logging.With().Str("component", "library").Logger(),
	}, nil
}

// validID rejects ids that could escape the content root.
func validID(id string) error {
	if id == "" || id == "." || id == ".." {
		return ErrInvalidID
	}
	if strings.ContainsAny(id, `/\`) {
		return ErrInvalidID
	}
	return nil
}

func (l *Library) projectPath(projectID string) string {
	return filepath.Join(l.root, projectID)
}

// matches reports whether any of the fields contains the query,
// case-insensitively. An empty query matches everything.
func matches(query string, fields ...string) bool {
	if query == "" {
		return true
	}
	query = strings.ToLower(query)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// writeJSON writes v to path via temp file and rename.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("reading: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshaling %s: %w", filepath.Base(path), err)
	}
	return nil
}

// listJSONIDs returns the ids of .json files directly under dir, sorted.
func listJSONIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListProjects returns all projects, optionally filtered by a substring
// query against id and name.
func (l *Library) ListProjects(query string) ([]types.Project, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("reading content root: %w", err)
	}

	projects := []types.Project{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var p types.Project
		if err := readJSON(filepath.Join(l.root, entry.Name(), "project.json"), &p); err != nil {
			// Directories without project.json are not projects.
			continue
		}
		if matches(query, p.ProjectID, p.Name) {
			projects = append(projects, p)
		}
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ProjectID < projects[j].ProjectID })
	return projects, nil
}

func (l *Library) GetProject(projectID string) (*types.Project, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var p types.Project
	if err := readJSON(filepath.Join(l.projectPath(projectID), "project.json"), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *Library) CreateProject(projectID, name, description string) (*types.Project, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	metaPath := filepath.Join(l.projectPath(projectID), "project.json")
	if _, err := os.Stat(metaPath); err == nil {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrExists)
	}

	for _, sub := range []string{"clips", "songs", "playlists"} {
		if err := os.MkdirAll(filepath.Join(l.projectPath(projectID), sub), 0755); err != nil {
			return nil, fmt.Errorf("creating project structure: %w", err)
		}
	}

	now := nowMillis()
	p := types.Project{
		ProjectID:   projectID,
		Name:        name,
		Description: description,
		Created:     now,
		Updated:     now,
	}
	if err := writeJSON(metaPath, &p); err != nil {
		return nil, err
	}
	l.log.Info().Str("projectID", projectID).Msg("project created")
	return &p, nil
}

// UpdateProject updates a project's name and/or description. Nil fields are
// left unchanged.
func (l *Library) UpdateProject(projectID string, name, description *string) (*types.Project, error) {
	if err := validID(projectID); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	metaPath := filepath.Join(l.projectPath(projectID), "project.json")
	var p types.Project
	if err := readJSON(metaPath, &p); err != nil {
		return nil, err
	}
	if name != nil {
		p.Name = *name
	}
	if description != nil {
		p.Description = *description
	}
	p.Updated = nowMillis()
	if err := writeJSON(metaPath, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
