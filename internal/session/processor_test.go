package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strudel-ai/strudel/internal/correlator"
	"github.com/strudel-ai/strudel/pkg/types"
)

type frameSink struct {
	mu     sync.Mutex
	frames []any
}

func (s *frameSink) Send(ctx context.Context, sessionID string, target types.ClientRole, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, v)
	return true
}

func (s *frameSink) ofType(match func(any) bool) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []any
	for _, f := range s.frames {
		if match(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s *frameSink) waitForFinal(t *testing.T) types.AgentResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		responses := s.ofType(func(f any) bool {
			_, ok := f.(types.AgentResponse)
			return ok
		})
		if len(responses) > 0 {
			return responses[len(responses)-1].(types.AgentResponse)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no agent response sent")
	return types.AgentResponse{}
}

type scriptedTools struct {
	mu    sync.Mutex
	calls []string
	run   func(tool string) (json.RawMessage, error)
}

func (s *scriptedTools) Request(ctx context.Context, sessionID, toolName string, params map[string]any, timeout time.Duration) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, toolName)
	fn := s.run
	s.mu.Unlock()
	if fn == nil {
		return json.RawMessage(`{}`), nil
	}
	return fn(toolName)
}

func waitForTurnCount(t *testing.T, h *Handle, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.TurnCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("transcript has %d turns, want %d", h.TurnCount(), want)
}

func TestProcessorPlainResponse(t *testing.T) {
	f := newManagerFixture(t)
	sink := &frameSink{}
	tools := &scriptedTools{}
	p := NewProcessor(f.manager, sink, tools, 24, time.Second)

	handle, err := f.manager.Create(context.Background(), testConfig())
	require.NoError(t, err)
	f.binder.agent.invoke = func(window ContextWindow) ([]types.Turn, error) {
		return []types.Turn{assistant("a1", "four on the floor")}, nil
	}

	ok := p.HandleUserMessage(handle, types.UserMessage{
		Type: types.MsgUserMessage, SessionID: handle.ID, Message: "make a beat",
	})
	require.True(t, ok)

	final := sink.waitForFinal(t)
	assert.True(t, final.IsFinal)
	assert.Equal(t, "four on the floor", final.Content)

	// user turn + assistant turn persisted
	waitForTurnCount(t, handle, 2)
	assert.Empty(t, tools.calls)

	// typing on and off around the exchange
	typing := sink.ofType(func(f any) bool { _, ok := f.(types.TypingIndicator); return ok })
	require.Len(t, typing, 2)
	assert.True(t, typing[0].(types.TypingIndicator).IsTyping)
	assert.False(t, typing[1].(types.TypingIndicator).IsTyping)
}

func TestProcessorToolLoop(t *testing.T) {
	f := newManagerFixture(t)
	sink := &frameSink{}
	tools := &scriptedTools{run: func(tool string) (json.RawMessage, error) {
		return json.RawMessage(`{"pattern":"bd sd"}`), nil
	}}
	p := NewProcessor(f.manager, sink, tools, 24, time.Second)

	handle, err := f.manager.Create(context.Background(), testConfig())
	require.NoError(t, err)

	round := 0
	f.binder.agent.invoke = func(window ContextWindow) ([]types.Turn, error) {
		round++
		if round == 1 {
			return []types.Turn{toolCall("a1", "c1")}, nil
		}
		return []types.Turn{assistant("a2", "updated the pattern")}, nil
	}

	require.True(t, p.HandleUserMessage(handle, types.UserMessage{
		Type: types.MsgUserMessage, SessionID: handle.ID, Message: "change it",
	}))

	final := sink.waitForFinal(t)
	assert.Equal(t, "updated the pattern", final.Content)
	assert.Equal(t, []string{"update_pattern"}, tools.calls)

	// user + tool_call + tool_result + assistant
	waitForTurnCount(t, handle, 4)
	transcript := handle.Transcript()
	result, ok := transcript[2].(*types.ToolResultTurn)
	require.True(t, ok)
	assert.Equal(t, "c1", result.CallID)
	assert.JSONEq(t, `{"pattern":"bd sd"}`, string(result.Output))

	reports := sink.ofType(func(f any) bool { _, ok := f.(types.ToolReport); return ok })
	require.Len(t, reports, 1)
	assert.Equal(t, "c1", reports[0].(types.ToolReport).CallID)

	notices := sink.ofType(func(f any) bool { _, ok := f.(types.ToolResultNotice); return ok })
	assert.Len(t, notices, 1)
}

func TestProcessorToolFailureFeedsModel(t *testing.T) {
	f := newManagerFixture(t)
	sink := &frameSink{}
	tools := &scriptedTools{run: func(tool string) (json.RawMessage, error) {
		return nil, &correlator.ToolError{Tool: tool, Message: "invalid mini-notation"}
	}}
	p := NewProcessor(f.manager, sink, tools, 24, time.Second)

	handle, err := f.manager.Create(context.Background(), testConfig())
	require.NoError(t, err)

	round := 0
	f.binder.agent.invoke = func(window ContextWindow) ([]types.Turn, error) {
		round++
		if round == 1 {
			return []types.Turn{toolCall("a1", "c1")}, nil
		}
		// the failed result is visible to the model on the next round
		last := window.Window[len(window.Window)-1]
		result, ok := last.(*types.ToolResultTurn)
		require.True(t, ok)
		require.NotNil(t, result.Error)
		return []types.Turn{assistant("a2", "that pattern is invalid")}, nil
	}

	require.True(t, p.HandleUserMessage(handle, types.UserMessage{
		Type: types.MsgUserMessage, SessionID: handle.ID, Message: "play it",
	}))

	final := sink.waitForFinal(t)
	assert.Equal(t, "that pattern is invalid", final.Content)
}

func TestProcessorToolRoundLimitSendsErrorResponse(t *testing.T) {
	f := newManagerFixture(t)
	sink := &frameSink{}
	tools := &scriptedTools{run: func(tool string) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}}
	p := NewProcessor(f.manager, sink, tools, 24, time.Second)

	handle, err := f.manager.Create(context.Background(), testConfig())
	require.NoError(t, err)

	// a model that never answers, only asks for another tool
	round := 0
	f.binder.agent.invoke = func(window ContextWindow) ([]types.Turn, error) {
		round++
		return []types.Turn{toolCall(fmt.Sprintf("a%d", round), fmt.Sprintf("c%d", round))}, nil
	}

	require.True(t, p.HandleUserMessage(handle, types.UserMessage{
		Type: types.MsgUserMessage, SessionID: handle.ID, Message: "keep going",
	}))

	final := sink.waitForFinal(t)
	assert.True(t, final.IsFinal)
	assert.Contains(t, final.Content, "Error:")
	assert.Equal(t, maxToolRounds, round)
	assert.Len(t, tools.calls, maxToolRounds)

	// user turn plus a call/result pair per round
	waitForTurnCount(t, handle, 1+2*maxToolRounds)
}

func TestProcessorConnectionLostAborts(t *testing.T) {
	f := newManagerFixture(t)
	sink := &frameSink{}
	tools := &scriptedTools{run: func(tool string) (json.RawMessage, error) {
		return nil, correlator.ErrConnectionLost
	}}
	p := NewProcessor(f.manager, sink, tools, 24, time.Second)

	handle, err := f.manager.Create(context.Background(), testConfig())
	require.NoError(t, err)
	f.binder.agent.invoke = func(window ContextWindow) ([]types.Turn, error) {
		return []types.Turn{toolCall("a1", "c1")}, nil
	}

	require.True(t, p.HandleUserMessage(handle, types.UserMessage{
		Type: types.MsgUserMessage, SessionID: handle.ID, Message: "play it",
	}))

	// the loop stops but what happened so far is still persisted
	waitForTurnCount(t, handle, 3)
	assert.Empty(t, sink.ofType(func(f any) bool {
		r, ok := f.(types.AgentResponse)
		return ok && r.IsFinal
	}))
}

func TestProcessorAgentErrorSendsReadableMessage(t *testing.T) {
	f := newManagerFixture(t)
	sink := &frameSink{}
	p := NewProcessor(f.manager, sink, &scriptedTools{}, 24, time.Second)

	handle, err := f.manager.Create(context.Background(), testConfig())
	require.NoError(t, err)
	f.binder.agent.invoke = func(window ContextWindow) ([]types.Turn, error) {
		return nil, assert.AnError
	}

	require.True(t, p.HandleUserMessage(handle, types.UserMessage{
		Type: types.MsgUserMessage, SessionID: handle.ID, Message: "hello",
	}))

	final := sink.waitForFinal(t)
	assert.True(t, final.IsFinal)
	assert.Contains(t, final.Content, "Error:")
}

func TestProcessorSerializesMessagesPerSession(t *testing.T) {
	f := newManagerFixture(t)
	sink := &frameSink{}
	p := NewProcessor(f.manager, sink, &scriptedTools{}, 24, time.Second)

	handle, err := f.manager.Create(context.Background(), testConfig())
	require.NoError(t, err)

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	f.binder.agent.invoke = func(window ContextWindow) ([]types.Turn, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return []types.Turn{assistant("a", "ok")}, nil
	}

	for i := 0; i < 5; i++ {
		require.True(t, p.HandleUserMessage(handle, types.UserMessage{
			Type: types.MsgUserMessage, SessionID: handle.ID, Message: "go",
		}))
	}

	waitForTurnCount(t, handle, 10)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxInFlight, "appends for one session must never interleave")
}

func TestProcessorContextIncludesItemRefs(t *testing.T) {
	f := newManagerFixture(t)
	sink := &frameSink{}
	p := NewProcessor(f.manager, sink, &scriptedTools{}, 24, time.Second)

	handle, err := f.manager.Create(context.Background(), testConfig())
	require.NoError(t, err)

	var got *types.UserTurn
	f.binder.agent.invoke = func(window ContextWindow) ([]types.Turn, error) {
		last := window.Window[len(window.Window)-1]
		got = last.(*types.UserTurn)
		return []types.Turn{assistant("a1", "ok")}, nil
	}

	require.True(t, p.HandleUserMessage(handle, types.UserMessage{
		Type: types.MsgUserMessage, SessionID: handle.ID, Message: "hi", Context: "clip is playing",
	}))
	sink.waitForFinal(t)

	require.NotNil(t, got)
	assert.Contains(t, got.Context, "clip-1")
	assert.Contains(t, got.Context, "proj-1")
	assert.Contains(t, got.Context, "clip is playing")
}
