package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/strudel-ai/strudel/internal/correlator"
	"github.com/strudel-ai/strudel/internal/logging"
	"github.com/strudel-ai/strudel/pkg/types"
)

// maxToolRounds bounds how many times one user message may loop through
// model call → tool execution before we give up.
const maxToolRounds = 8

// Broadcaster fans frames out to a session's connections.
type Broadcaster interface {
	Send(ctx context.Context, sessionID string, target types.ClientRole, v any) bool
}

// ToolRunner executes a remote tool call and blocks for its outcome.
type ToolRunner interface {
	Request(ctx context.Context, sessionID, toolName string, params map[string]any, timeout time.Duration) (json.RawMessage, error)
}

// Processor drives the agentic loop for inbound user messages. Each message
// is handled on its session's mailbox, so turn appends for one session are
// strictly ordered.
type Processor struct {
	manager     *Manager
	sender      Broadcaster
	tools       ToolRunner
	windowLimit int
	toolTimeout time.Duration
	log         zerolog.Logger
}

// NewProcessor creates a processor.
func NewProcessor(manager *Manager, sender Broadcaster, tools ToolRunner, windowLimit int, toolTimeout time.Duration) *Processor {
	return &Processor{
		manager:     manager,
		sender:      sender,
		tools:       tools,
		windowLimit: windowLimit,
		toolTimeout: toolTimeout,
		log:         logging.With().Str("component", "processor").Logger(),
	}
}

// HandleUserMessage schedules processing of a user message on the session's
// mailbox. Returns false if the session is shutting down or overloaded.
func (p *Processor) HandleUserMessage(handle *Handle, msg types.UserMessage) bool {
	return handle.Enqueue(func(ctx context.Context) {
		p.process(ctx, handle, msg)
	})
}

func (p *Processor) process(ctx context.Context, handle *Handle, msg types.UserMessage) {
	sessionID := handle.ID
	p.sender.Send(ctx, sessionID, types.RoleDriver, types.TypingIndicator{
		Type: types.MsgTypingIndicator, IsTyping: true,
	})
	defer p.sender.Send(ctx, sessionID, types.RoleDriver, types.TypingIndicator{
		Type: types.MsgTypingIndicator, IsTyping: false,
	})

	userTurn := &types.UserTurn{
		ID:      ulid.Make().String(),
		Type:    "user",
		Text:    msg.Message,
		Context: p.sessionContext(handle.Config(), msg.Context),
		Created: time.Now().UnixMilli(),
	}

	window := BuildWindow(handle.Transcript(), nil, p.windowLimit)
	exchange := []types.Turn{userTurn}

	answered := false
	aborted := false
	for round := 0; round < maxToolRounds; round++ {
		newTurns, err := handle.agent.Invoke(ctx, ContextWindow{
			Preamble: window.Preamble,
			Window:   append(append([]types.Turn(nil), window.Window...), exchange...),
		})
		if err != nil {
			p.log.Error().Err(err).Str("session", sessionID).Msg("agent invocation failed")
			p.sendError(ctx, sessionID, err)
			return
		}
		exchange = append(exchange, newTurns...)

		calls := toolCalls(newTurns)
		if len(calls) == 0 {
			p.sender.Send(ctx, sessionID, types.RoleDriver, types.AgentResponse{
				Type:    types.MsgAgentResponse,
				Content: finalText(newTurns),
				IsFinal: true,
			})
			answered = true
			break
		}

		for _, call := range calls {
			result, abort := p.runTool(ctx, sessionID, call)
			exchange = append(exchange, result)
			if abort {
				aborted = true
				break
			}
		}
		if aborted {
			break
		}
	}

	// The model kept calling tools until the round cap. The driver still
	// gets an explicit answer rather than typing stopping in silence.
	if !answered && !aborted {
		p.log.Warn().Str("session", sessionID).Int("rounds", maxToolRounds).
			Msg("tool round limit reached without a final response")
		p.sender.Send(ctx, sessionID, types.RoleDriver, types.AgentResponse{
			Type:    types.MsgAgentResponse,
			Content: fmt.Sprintf("Error: stopped after %d consecutive tool calls without a final answer", maxToolRounds),
			IsFinal: true,
		})
	}

	if err := p.manager.AppendTurns(ctx, handle, exchange); err != nil {
		p.log.Error().Err(err).Str("session", sessionID).Msg("could not persist turns")
		p.sendError(ctx, sessionID, err)
	}
}

// runTool reports the call to drivers, executes it remotely and returns the
// result turn. abort is true when the session lost its connections or was
// cancelled, in which case continuing the loop is pointless.
func (p *Processor) runTool(ctx context.Context, sessionID string, call *types.ToolCallTurn) (types.Turn, bool) {
	p.sender.Send(ctx, sessionID, types.RoleDriver, types.ToolReport{
		Type:     types.MsgToolReport,
		ToolName: call.Tool,
		CallID:   call.CallID,
	})

	data, err := p.tools.Request(ctx, sessionID, call.Tool, call.Args, p.toolTimeout)

	result := &types.ToolResultTurn{
		ID:      ulid.Make().String(),
		Type:    "tool_result",
		CallID:  call.CallID,
		Created: time.Now().UnixMilli(),
	}

	switch {
	case err == nil:
		result.Output = data
		p.sender.Send(ctx, sessionID, types.RoleDriver, types.ToolResultNotice{
			Type:     types.MsgToolResult,
			ToolName: call.Tool,
			Content:  json.RawMessage(data),
		})
		return result, false

	case errors.Is(err, correlator.ErrConnectionLost),
		errors.Is(err, correlator.ErrCancelled),
		errors.Is(err, context.Canceled):
		msg := err.Error()
		result.Error = &msg
		p.log.Warn().Err(err).Str("session", sessionID).Str("tool", call.Tool).Msg("tool call aborted")
		return result, true

	default:
		// timeout or remote tool failure: record it and let the model react
		msg := err.Error()
		result.Error = &msg
		p.sender.Send(ctx, sessionID, types.RoleDriver, types.ToolResultNotice{
			Type:     types.MsgToolResult,
			ToolName: call.Tool,
			Content:  map[string]string{"error": msg},
		})
		return result, false
	}
}

func (p *Processor) sendError(ctx context.Context, sessionID string, err error) {
	p.sender.Send(ctx, sessionID, types.RoleDriver, types.AgentResponse{
		Type:    types.MsgAgentResponse,
		Content: fmt.Sprintf("Error: %s", err),
		IsFinal: true,
	})
}

// sessionContext renders what the session is editing into the text the
// model sees alongside the user's message.
func (p *Processor) sessionContext(config types.SessionConfig, extra string) string {
	s := fmt.Sprintf("Current context:\n- Item type: %s\n- Item ID: %s\n- Project ID: %s",
		config.SessionType, config.ItemID, config.ProjectID)
	if extra != "" {
		s += "\nAdditional context: " + extra
	}
	return s
}

func toolCalls(turns []types.Turn) []*types.ToolCallTurn {
	var calls []*types.ToolCallTurn
	for _, turn := range turns {
		if call, ok := turn.(*types.ToolCallTurn); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func finalText(turns []types.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if a, ok := turns[i].(*types.AssistantTurn); ok && a.Text != "" {
			return a.Text
		}
	}
	return ""
}
