package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/event", s.handleEvents)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleSessionCreate)
			r.Get("/", s.handleSessionList)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleSessionGet)
				r.Delete("/", s.handleSessionDelete)
				r.Post("/terminate", s.handleSessionTerminate)
				r.Patch("/name", s.handleSessionRename)
			})
		})

		r.Get("/messages/{sessionID}", s.handleMessages)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleProjectList)
			r.Post("/", s.handleProjectCreate)
			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", s.handleProjectGet)
				r.Patch("/", s.handleProjectUpdate)

				r.Route("/clips", func(r chi.Router) {
					r.Get("/", s.handleClipList)
					r.Post("/", s.handleClipCreate)
					r.Get("/{clipID}", s.handleClipGet)
					r.Put("/{clipID}", s.handleClipUpdate)
					r.Delete("/{clipID}", s.handleClipDelete)
				})

				r.Route("/songs", func(r chi.Router) {
					r.Get("/", s.handleSongList)
					r.Post("/", s.handleSongCreate)
					r.Get("/{songID}", s.handleSongGet)
					r.Put("/{songID}", s.handleSongUpdate)
					r.Delete("/{songID}", s.handleSongDelete)
				})

				r.Route("/playlists", func(r chi.Router) {
					r.Get("/", s.handlePlaylistList)
					r.Post("/", s.handlePlaylistCreate)
					r.Get("/{playlistID}", s.handlePlaylistGet)
					r.Put("/{playlistID}", s.handlePlaylistUpdate)
					r.Delete("/{playlistID}", s.handlePlaylistDelete)
				})
			})
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
