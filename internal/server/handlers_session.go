package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/strudel-ai/strudel/pkg/types"
)

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var config types.SessionConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid session config: "+err.Error())
		return
	}
	if config.SessionType == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "sessionType is required")
		return
	}

	handle, err := s.deps.Manager.Create(r.Context(), config)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, handle.Session())
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	infos, err := s.deps.Manager.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := r.URL.Query().Get("status")
	projectID := r.URL.Query().Get("project_id")

	filtered := []types.SessionInfo{}
	for _, info := range infos {
		if status != "" && info.Status != status {
			continue
		}
		if projectID != "" && info.ProjectID != projectID {
			continue
		}
		filtered = append(filtered, info)
	}
	writeJSON(w, http.StatusOK, filtered)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Manager.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Manager.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleSessionTerminate(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Manager.Terminate(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleSessionRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "name is required")
		return
	}
	if err := s.deps.Manager.Rename(r.Context(), chi.URLParam(r, "sessionID"), req.Name); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w)
}

// handleMessages serves paginated display rows, newest page last. before_seq
// walks backwards through history.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	pageSize := 0
	if v := r.URL.Query().Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "page_size must be a positive integer")
			return
		}
		pageSize = n
	}

	beforeSeq := int64(-1)
	if v := r.URL.Query().Get("before_seq"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "before_seq must be a non-negative integer")
			return
		}
		beforeSeq = n
	}

	rows, err := s.deps.Manager.Messages(r.Context(), sessionID, beforeSeq, pageSize)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   rows,
	})
}
