// Package server provides the HTTP surface of the Strudel agent server: the
// /ws WebSocket endpoint, session and library REST APIs, and the /event SSE
// monitoring stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/strudel-ai/strudel/internal/correlator"
	"github.com/strudel-ai/strudel/internal/event"
	"github.com/strudel-ai/strudel/internal/library"
	"github.com/strudel-ai/strudel/internal/logging"
	"github.com/strudel-ai/strudel/internal/registry"
	"github.com/strudel-ai/strudel/internal/session"
	"github.com/strudel-ai/strudel/pkg/types"
)

// Deps are the wired components the server exposes over HTTP.
type Deps struct {
	Config     *types.Config
	Manager    *session.Manager
	Processor  *session.Processor
	Registry   *registry.Registry
	Correlator *correlator.Correlator
	Library    *library.Library
	Bus        *event.Bus
}

// Server is the HTTP server.
type Server struct {
	deps    Deps
	router  *chi.Mux
	httpSrv *http.Server
	log     zerolog.Logger
}

// New creates a new Server instance.
func New(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		router: chi.NewRouter(),
		log:    logging.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.deps.Config.Server.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.deps.Config.Server.Port),
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// No write timeout: SSE and WebSocket connections are long-lived.
	}

	s.log.Info().Int("port", s.deps.Config.Server.Port).Msg("listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
