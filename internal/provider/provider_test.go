package provider

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strudel-ai/strudel/pkg/types"
)

func TestTurnsToMessagesRoles(t *testing.T) {
	errMsg := "clip not found"
	turns := []types.Turn{
		&types.UserTurn{ID: "u1", Type: "user", Text: "make a beat"},
		&types.AssistantTurn{ID: "a1", Type: "assistant", Text: "sure"},
		&types.ToolCallTurn{ID: "a2", Type: "tool_call", CallID: "c1", Tool: "strudel_get_clip", Args: map[string]any{"clip_id": "x"}},
		&types.ToolResultTurn{ID: "r1", Type: "tool_result", CallID: "c1", Error: &errMsg},
	}

	msgs := TurnsToMessages("you are a live coder", turns)
	require.Len(t, msgs, 5)

	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, "you are a live coder", msgs[0].Content)

	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, "make a beat", msgs[1].Content)

	assert.Equal(t, schema.Assistant, msgs[2].Role)

	require.Len(t, msgs[3].ToolCalls, 1)
	assert.Equal(t, "c1", msgs[3].ToolCalls[0].ID)
	assert.Equal(t, "strudel_get_clip", msgs[3].ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"clip_id":"x"}`, msgs[3].ToolCalls[0].Function.Arguments)

	assert.Equal(t, schema.Tool, msgs[4].Role)
	assert.Equal(t, "c1", msgs[4].ToolCallID)
	assert.JSONEq(t, `{"error":"clip not found"}`, msgs[4].Content)
}

func TestTurnsToMessagesUserContext(t *testing.T) {
	turns := []types.Turn{
		&types.UserTurn{ID: "u1", Type: "user", Text: "faster", Context: "Current context:\n- Item ID: clip-1"},
	}

	msgs := TurnsToMessages("", turns)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "Item ID: clip-1")
	assert.Contains(t, msgs[0].Content, "User message: faster")
}

func TestTurnsToMessagesNoSystemPrompt(t *testing.T) {
	msgs := TurnsToMessages("", []types.Turn{
		&types.UserTurn{ID: "u1", Type: "user", Text: "hi"},
	})
	require.Len(t, msgs, 1)
	assert.Equal(t, schema.User, msgs[0].Role)
}

func TestMessageToTurnsTextOnly(t *testing.T) {
	turns := MessageToTurns(&schema.Message{Role: schema.Assistant, Content: "here you go"})
	require.Len(t, turns, 1)
	a, ok := turns[0].(*types.AssistantTurn)
	require.True(t, ok)
	assert.Equal(t, "here you go", a.Text)
	assert.NotEmpty(t, a.ID)
}

func TestMessageToTurnsToolCalls(t *testing.T) {
	turns := MessageToTurns(&schema.Message{
		Role:    schema.Assistant,
		Content: "updating the clip",
		ToolCalls: []schema.ToolCall{
			{ID: "c1", Function: schema.FunctionCall{Name: "strudel_update_clip", Arguments: `{"code":"s(\"bd sd\")"}`}},
			{ID: "c2", Function: schema.FunctionCall{Name: "strudel_send_notification", Arguments: `{}`}},
		},
	})
	require.Len(t, turns, 3)

	assert.Equal(t, "assistant", turns[0].TurnType())
	call1, ok := turns[1].(*types.ToolCallTurn)
	require.True(t, ok)
	assert.Equal(t, "c1", call1.CallID)
	assert.Equal(t, "strudel_update_clip", call1.Tool)
	assert.Equal(t, `s("bd sd")`, call1.Args["code"])

	call2 := turns[2].(*types.ToolCallTurn)
	assert.Equal(t, "c2", call2.CallID)
}

func TestMessageToTurnsMalformedArguments(t *testing.T) {
	turns := MessageToTurns(&schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{
			{ID: "c1", Function: schema.FunctionCall{Name: "x", Arguments: `not json`}},
		},
	})
	require.Len(t, turns, 1)
	call := turns[0].(*types.ToolCallTurn)
	assert.Equal(t, "not json", call.Args["_raw"])
}

func TestMessageToTurnsGeneratesCallID(t *testing.T) {
	turns := MessageToTurns(&schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{
			{Function: schema.FunctionCall{Name: "x"}},
		},
	})
	require.Len(t, turns, 1)
	assert.NotEmpty(t, turns[0].(*types.ToolCallTurn).CallID)
}
