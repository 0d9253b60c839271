// Package agent binds model-backed agents to sessions. A Binder resolves a
// session's provider and model from configuration, loads the agent's system
// prompt, and produces an Agent the session loop can invoke.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/strudel-ai/strudel/internal/config"
	"github.com/strudel-ai/strudel/internal/logging"
	"github.com/strudel-ai/strudel/internal/provider"
	"github.com/strudel-ai/strudel/internal/session"
	"github.com/strudel-ai/strudel/pkg/types"
)

const defaultPrompt = `You are a live-coding music assistant. You help the user
write and edit Strudel patterns. Use the available tools to read and modify
clips, songs and playlists. Keep responses short; the user is performing.`

// Binder creates agents from session configuration.
type Binder struct {
	cfg *types.Config
	log zerolog.Logger
}

func NewBinder(cfg *types.Config) *Binder {
	return &Binder{
		cfg: cfg,
		log: logging.With().Str("component", "agent").Logger(),
	}
}

// Bind resolves the provider and model for a session and returns an agent
// bound to them.
func (b *Binder) Bind(sc types.SessionConfig) (session.Agent, error) {
	providerID, modelID := sc.Provider, sc.ModelID
	if providerID == "" || modelID == "" {
		defProvider, defModel := config.SplitModelRef(b.cfg.Model)
		if providerID == "" {
			providerID = defProvider
		}
		if modelID == "" {
			modelID = defModel
		}
	}
	if providerID == "" {
		return nil, fmt.Errorf("no provider configured (set model as provider/model)")
	}

	pc, ok := b.cfg.Provider[providerID]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", providerID)
	}

	prov, err := provider.NewOpenAI(context.Background(), providerID, pc, modelID)
	if err != nil {
		return nil, fmt.Errorf("bind provider %s: %w", providerID, err)
	}

	agentName := sc.AgentName
	if agentName == "" {
		agentName = "strudel"
	}

	return &Agent{
		provider: prov,
		prompt:   b.loadPrompt(agentName),
		tools:    Catalog(),
		log:      b.log.With().Str("agent", agentName).Logger(),
	}, nil
}

// loadPrompt reads the agent's system prompt from the agents directory and
// substitutes the {time_now} placeholder. Missing prompt files fall back to
// the built-in default.
func (b *Binder) loadPrompt(agentName string) string {
	path := filepath.Join(b.cfg.AgentsDir, agentName+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		b.log.Warn().Str("path", path).Err(err).Msg("agent prompt not found, using default")
		data = []byte(defaultPrompt)
	}
	now := time.Now().UTC().Format("2006-01-02 15:04:05")
	return strings.ReplaceAll(string(data), "{time_now}", now)
}

// Agent is a session.Agent backed by a chat-completion provider.
type Agent struct {
	provider *provider.Provider
	prompt   string
	tools    []*schema.ToolInfo
	log      zerolog.Logger
}

func (a *Agent) Invoke(ctx context.Context, window session.ContextWindow) ([]types.Turn, error) {
	msgs := provider.TurnsToMessages(a.prompt, window.Turns())

	a.log.Debug().
		Int("messages", len(msgs)).
		Str("model", a.provider.ModelID()).
		Msg("invoking model")

	msg, err := a.provider.Generate(ctx, msgs, a.tools)
	if err != nil {
		return nil, err
	}
	return provider.MessageToTurns(msg), nil
}
