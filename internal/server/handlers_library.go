package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleProjectList(w http.ResponseWriter, r *http.Request) {
	projects, err := s.deps.Library.ListProjects(r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleProjectCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID   string `json:"project_id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "project_id is required")
		return
	}
	project, err := s.deps.Library.CreateProject(req.ProjectID, req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleProjectGet(w http.ResponseWriter, r *http.Request) {
	project, err := s.deps.Library.GetProject(chi.URLParam(r, "projectID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleProjectUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	project, err := s.deps.Library.UpdateProject(chi.URLParam(r, "projectID"), req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleClipList(w http.ResponseWriter, r *http.Request) {
	clips, err := s.deps.Library.ListClips(chi.URLParam(r, "projectID"), r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clips)
}

func (s *Server) handleClipCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClipID   string         `json:"clip_id"`
		Name     string         `json:"name"`
		Code     string         `json:"code"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClipID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "clip_id is required")
		return
	}
	clip, err := s.deps.Library.CreateClip(chi.URLParam(r, "projectID"), req.ClipID, req.Name, req.Code, req.Metadata)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clip)
}

func (s *Server) handleClipGet(w http.ResponseWriter, r *http.Request) {
	clip, err := s.deps.Library.GetClip(chi.URLParam(r, "projectID"), chi.URLParam(r, "clipID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

func (s *Server) handleClipUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string         `json:"code"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	clip, err := s.deps.Library.UpdateClip(chi.URLParam(r, "projectID"), chi.URLParam(r, "clipID"), req.Code, req.Metadata)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

func (s *Server) handleClipDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Library.DeleteClip(chi.URLParam(r, "projectID"), chi.URLParam(r, "clipID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleSongList(w http.ResponseWriter, r *http.Request) {
	songs, err := s.deps.Library.ListSongs(chi.URLParam(r, "projectID"), r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

func (s *Server) handleSongCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SongID  string   `json:"song_id"`
		Name    string   `json:"name"`
		ClipIDs []string `json:"clip_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SongID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "song_id is required")
		return
	}
	song, err := s.deps.Library.CreateSong(chi.URLParam(r, "projectID"), req.SongID, req.Name, req.ClipIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, song)
}

func (s *Server) handleSongGet(w http.ResponseWriter, r *http.Request) {
	song, err := s.deps.Library.GetSong(chi.URLParam(r, "projectID"), chi.URLParam(r, "songID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (s *Server) handleSongUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClipIDs  []string       `json:"clip_ids"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	song, err := s.deps.Library.UpdateSong(chi.URLParam(r, "projectID"), chi.URLParam(r, "songID"), req.ClipIDs, req.Metadata)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (s *Server) handleSongDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Library.DeleteSong(chi.URLParam(r, "projectID"), chi.URLParam(r, "songID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handlePlaylistList(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.deps.Library.ListPlaylists(chi.URLParam(r, "projectID"), r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handlePlaylistCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlaylistID string   `json:"playlist_id"`
		Name       string   `json:"name"`
		SongIDs    []string `json:"song_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlaylistID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "playlist_id is required")
		return
	}
	playlist, err := s.deps.Library.CreatePlaylist(chi.URLParam(r, "projectID"), req.PlaylistID, req.Name, req.SongIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, playlist)
}

func (s *Server) handlePlaylistGet(w http.ResponseWriter, r *http.Request) {
	playlist, err := s.deps.Library.GetPlaylist(chi.URLParam(r, "projectID"), chi.URLParam(r, "playlistID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (s *Server) handlePlaylistUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SongIDs  []string       `json:"song_ids"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	playlist, err := s.deps.Library.UpdatePlaylist(chi.URLParam(r, "projectID"), chi.URLParam(r, "playlistID"), req.SongIDs, req.Metadata)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (s *Server) handlePlaylistDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Library.DeletePlaylist(chi.URLParam(r, "projectID"), chi.URLParam(r, "playlistID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}
