package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strudel-ai/strudel/pkg/types"
)

func user(id, text string) *types.UserTurn {
	return &types.UserTurn{ID: id, Type: "user", Text: text}
}

func assistant(id, text string) *types.AssistantTurn {
	return &types.AssistantTurn{ID: id, Type: "assistant", Text: text}
}

func toolCall(id, callID string) *types.ToolCallTurn {
	return &types.ToolCallTurn{ID: id, Type: "tool_call", CallID: callID, Tool: "update_pattern"}
}

func toolResult(id, callID string) *types.ToolResultTurn {
	return &types.ToolResultTurn{ID: id, Type: "tool_result", CallID: callID}
}

func ids(turns []types.Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.TurnID())
	}
	return out
}

func TestBuildWindowEmptyTranscript(t *testing.T) {
	w := BuildWindow(nil, nil, 5)
	assert.Empty(t, w.Window)
	assert.Empty(t, w.Preamble)
}

func TestBuildWindowNoLimitReturnsAll(t *testing.T) {
	transcript := []types.Turn{user("u1", "a"), assistant("a1", "b")}

	w := BuildWindow(transcript, nil, 0)
	assert.Equal(t, []string{"u1", "a1"}, ids(w.Window))

	w = BuildWindow(transcript, nil, 10)
	assert.Equal(t, []string{"u1", "a1"}, ids(w.Window))
}

func TestBuildWindowPullsPairedToolCall(t *testing.T) {
	// last 2 entries are [result(c1), u2]; the result's request is pulled in
	transcript := []types.Turn{
		user("u1", "make a beat"),
		toolCall("a1", "c1"),
		toolResult("r1", "c1"),
		user("u2", "faster"),
	}

	w := BuildWindow(transcript, nil, 2)
	assert.Equal(t, []string{"a1", "r1", "u2"}, ids(w.Window))
	assert.Empty(t, w.Preamble)
}

func TestBuildWindowRecencyOnly(t *testing.T) {
	transcript := []types.Turn{
		user("u1", "make a beat"),
		toolCall("a1", "c1"),
		toolResult("r1", "c1"),
		user("u2", "faster"),
	}

	// last 1 = [u2]; nothing to pair, latest user already included
	w := BuildWindow(transcript, nil, 1)
	assert.Equal(t, []string{"u2"}, ids(w.Window))
	assert.Empty(t, w.Preamble)
}

func TestBuildWindowRelocatesLatestUserTurn(t *testing.T) {
	transcript := []types.Turn{
		user("u1", "make a beat"),
		assistant("a1", "done"),
	}

	w := BuildWindow(transcript, nil, 1)
	assert.Equal(t, []string{"a1"}, ids(w.Window))
	require.Len(t, w.Preamble, 1)
	assert.Equal(t, "u1", w.Preamble[0].TurnID())
}

func TestBuildWindowReplacesPreambleUserTurn(t *testing.T) {
	stale := user("u0", "old ask")
	transcript := []types.Turn{
		user("u1", "new ask"),
		assistant("a1", "done"),
		assistant("a2", "more"),
	}

	w := BuildWindow(transcript, []types.Turn{stale}, 2)
	require.Len(t, w.Preamble, 1)
	assert.Equal(t, "u1", w.Preamble[0].TurnID())
	assert.Equal(t, []string{"a1", "a2"}, ids(w.Window))
}

func TestBuildWindowKeepsPreambleUncounted(t *testing.T) {
	pre := []types.Turn{assistant("sys", "system-ish")}
	transcript := []types.Turn{
		user("u1", "a"),
		assistant("a1", "b"),
		user("u2", "c"),
	}

	w := BuildWindow(transcript, pre, 2)
	assert.Equal(t, []string{"sys"}, ids(w.Preamble))
	assert.Equal(t, []string{"a1", "u2"}, ids(w.Window))
}

func TestBuildWindowDoesNotMutateCallerPreamble(t *testing.T) {
	pre := []types.Turn{user("u0", "old")}
	transcript := []types.Turn{
		user("u1", "new"),
		assistant("a1", "x"),
	}

	_ = BuildWindow(transcript, pre, 1)
	assert.Equal(t, "u0", pre[0].TurnID())
}

func TestBuildWindowMultiplePairs(t *testing.T) {
	transcript := []types.Turn{
		user("u1", "layer drums and bass"),
		toolCall("a1", "c1"),
		toolResult("r1", "c1"),
		toolCall("a2", "c2"),
		toolResult("r2", "c2"),
		assistant("a3", "layered"),
	}

	// last 3 = [a2, r2, a3]; r2's pair a2 already in; r1 excluded so a1 stays out
	w := BuildWindow(transcript, nil, 3)
	assert.Equal(t, []string{"a2", "r2", "a3"}, ids(w.Window))

	// last 4 includes r1 whose pair a1 gets pulled in
	w = BuildWindow(transcript, nil, 4)
	assert.Equal(t, []string{"a1", "r1", "a2", "r2", "a3"}, ids(w.Window))
}

func TestBuildWindowNeverSplitsPairs(t *testing.T) {
	transcript := []types.Turn{
		user("u1", "a"),
		toolCall("a1", "c1"),
		toolResult("r1", "c1"),
		user("u2", "b"),
		toolCall("a2", "c2"),
		toolResult("r2", "c2"),
		assistant("a3", "done"),
	}

	for n := 1; n <= len(transcript); n++ {
		w := BuildWindow(transcript, nil, n)
		seen := make(map[string]bool)
		for _, turn := range w.Window {
			if call, ok := turn.(*types.ToolCallTurn); ok {
				seen[call.CallID] = true
			}
			if result, ok := turn.(*types.ToolResultTurn); ok {
				assert.True(t, seen[result.CallID],
					"n=%d: result %s has no preceding call", n, result.CallID)
			}
		}
	}
}
