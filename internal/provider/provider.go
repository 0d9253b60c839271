// Package provider wraps LLM access behind the Eino framework and converts
// between transcript turns and Eino chat messages.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/strudel-ai/strudel/internal/logging"
	"github.com/strudel-ai/strudel/pkg/types"
)

// Provider is an LLM provider bound to one model.
type Provider struct {
	chatModel model.ToolCallingChatModel
	id        string
	modelID   string
	log       zerolog.Logger
}

// NewOpenAI creates a provider for any OpenAI-compatible endpoint, which
// includes OpenRouter via its base URL.
func NewOpenAI(ctx context.Context, id string, cfg types.ProviderConfig, modelID string) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key not set", id)
	}
	if modelID == "" {
		modelID = cfg.Model
	}
	if modelID == "" {
		return nil, fmt.Errorf("provider %s: no model configured", id)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	chatCfg := &openai.ChatModelConfig{
		APIKey:              cfg.APIKey,
		Model:               modelID,
		MaxCompletionTokens: &maxTokens,
	}
	if cfg.BaseURL != "" {
		chatCfg.BaseURL = cfg.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, chatCfg)
	if err != nil {
		return nil, fmt.Errorf("creating chat model: %w", err)
	}

	return &Provider{
		chatModel: chatModel,
		id:        id,
		modelID:   modelID,
		log:       logging.With().Str("component", "provider").Str("provider", id).Logger(),
	}, nil
}

// ID returns the provider identifier.
func (p *Provider) ID() string { return p.id }

// ModelID returns the bound model identifier.
func (p *Provider) ModelID() string { return p.modelID }

// Generate runs one model call. Transient failures are retried twice with
// exponential backoff before giving up.
func (p *Provider) Generate(ctx context.Context, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	chatModel := p.chatModel
	if len(tools) > 0 {
		var err error
		chatModel, err = chatModel.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("binding tools: %w", err)
		}
	}

	var out *schema.Message
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(500*time.Millisecond),
	), 2), ctx)

	err := backoff.Retry(func() error {
		msg, err := chatModel.Generate(ctx, messages)
		if err != nil {
			p.log.Warn().Err(err).Str("model", p.modelID).Msg("model call failed, retrying")
			return err
		}
		out = msg
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", p.modelID, err)
	}
	return out, nil
}

// TurnsToMessages converts a transcript slice to the chat messages the model
// consumes, with an optional leading system prompt.
func TurnsToMessages(systemPrompt string, turns []types.Turn) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(turns)+1)
	if systemPrompt != "" {
		msgs = append(msgs, &schema.Message{Role: schema.System, Content: systemPrompt})
	}

	for _, turn := range turns {
		switch t := turn.(type) {
		case *types.UserTurn:
			content := t.Text
			if t.Context != "" {
				content = t.Context + "\n\nUser message: " + t.Text
			}
			msgs = append(msgs, &schema.Message{Role: schema.User, Content: content})

		case *types.AssistantTurn:
			msgs = append(msgs, &schema.Message{Role: schema.Assistant, Content: t.Text})

		case *types.ToolCallTurn:
			args, _ := json.Marshal(t.Args)
			msgs = append(msgs, &schema.Message{
				Role: schema.Assistant,
				ToolCalls: []schema.ToolCall{{
					ID: t.CallID,
					Function: schema.FunctionCall{
						Name:      t.Tool,
						Arguments: string(args),
					},
				}},
			})

		case *types.ToolResultTurn:
			content := string(t.Output)
			if t.Error != nil {
				content = fmt.Sprintf(`{"error": %q}`, *t.Error)
			}
			msgs = append(msgs, &schema.Message{
				Role:       schema.Tool,
				ToolCallID: t.CallID,
				Content:    content,
			})
		}
	}
	return msgs
}

// MessageToTurns converts a model response into transcript turns: one
// assistant turn for its text, one tool-call turn per requested call.
func MessageToTurns(msg *schema.Message) []types.Turn {
	var turns []types.Turn
	now := time.Now().UnixMilli()

	if msg.Content != "" {
		turns = append(turns, &types.AssistantTurn{
			ID:      ulid.Make().String(),
			Type:    "assistant",
			Text:    msg.Content,
			Created: now,
		})
	}

	for _, call := range msg.ToolCalls {
		var args map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				args = map[string]any{"_raw": call.Function.Arguments}
			}
		}
		callID := call.ID
		if callID == "" {
			callID = ulid.Make().String()
		}
		turns = append(turns, &types.ToolCallTurn{
			ID:      ulid.Make().String(),
			Type:    "tool_call",
			CallID:  callID,
			Tool:    call.Function.Name,
			Args:    args,
			Created: now,
		})
	}
	return turns
}
