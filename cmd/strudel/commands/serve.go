package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/strudel-ai/strudel/internal/agent"
	"github.com/strudel-ai/strudel/internal/config"
	"github.com/strudel-ai/strudel/internal/correlator"
	"github.com/strudel-ai/strudel/internal/event"
	"github.com/strudel-ai/strudel/internal/library"
	"github.com/strudel-ai/strudel/internal/logging"
	"github.com/strudel-ai/strudel/internal/registry"
	"github.com/strudel-ai/strudel/internal/server"
	"github.com/strudel-ai/strudel/internal/session"
	"github.com/strudel-ai/strudel/internal/storage"
	"github.com/strudel-ai/strudel/internal/store"
)

var (
	servePort int
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Strudel agent server",
	Long: `Start the agent server: WebSocket endpoint for driver and executor
clients, session and library REST APIs, and the SSE event stream.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory for config discovery")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Best effort; a missing .env is fine.
	godotenv.Load()

	workDir := serveDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
	})
	log := logging.With().Str("component", "main").Logger()
	log.Info().Str("version", Version).Str("dataDir", cfg.DataDir).Msg("starting strudel server")

	index, err := store.Open(filepath.Join(cfg.DataDir, "strudel.db"))
	if err != nil {
		return err
	}
	defer index.Close()

	transcripts := storage.NewTranscriptStore(storage.New(filepath.Join(cfg.DataDir, "blobs")))

	lib, err := library.New(cfg.ContentDir)
	if err != nil {
		return err
	}

	bus := event.NewBus()
	defer bus.Close()

	manager := session.NewManager(index, transcripts, agent.NewBinder(cfg), bus)
	reg := registry.New(bus)
	corr := correlator.New(reg, bus, time.Duration(cfg.ToolTimeoutMS)*time.Millisecond)
	reg.SetPendingCanceler(corr)
	manager.SetPendingCanceler(corr)

	processor := session.NewProcessor(manager, reg, corr, cfg.WindowLimit,
		time.Duration(cfg.ToolTimeoutMS)*time.Millisecond)

	srv := server.New(server.Deps{
		Config:     cfg,
		Manager:    manager,
		Processor:  processor,
		Registry:   reg,
		Correlator: corr,
		Library:    lib,
		Bus:        bus,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown error")
	}

	manager.Shutdown()

	log.Info().Msg("server stopped")
	return nil
}
