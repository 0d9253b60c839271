package session

import (
	"github.com/strudel-ai/strudel/pkg/types"
)

// ContextWindow is the bounded slice of transcript history handed to the
// agent for its next invocation. The preamble is pinned and does not count
// against the window size.
type ContextWindow struct {
	Preamble []types.Turn
	Window   []types.Turn
}

// Turns returns preamble and window concatenated in order.
func (w ContextWindow) Turns() []types.Turn {
	out := make([]types.Turn, 0, len(w.Preamble)+len(w.Window))
	out = append(out, w.Preamble...)
	out = append(out, w.Window...)
	return out
}

// BuildWindow trims a transcript to its last n entries while keeping tool
// call/result pairs together. If the chronologically last user turn falls
// outside the window it is relocated into the preamble, replacing any user
// turn already held there, so the agent always sees the most recent ask.
// n <= 0 disables trimming.
func BuildWindow(transcript []types.Turn, preamble []types.Turn, n int) ContextWindow {
	out := ContextWindow{Preamble: append([]types.Turn(nil), preamble...)}

	if len(transcript) == 0 {
		return out
	}
	if n <= 0 || len(transcript) <= n {
		out.Window = append([]types.Turn(nil), transcript...)
		return out
	}

	// one forward pass: where each call id was requested, and the last user turn
	callIndex := make(map[string]int)
	lastUser := -1
	for i, turn := range transcript {
		switch t := turn.(type) {
		case *types.ToolCallTurn:
			callIndex[t.CallID] = i
		case *types.UserTurn:
			lastUser = i
		}
	}

	included := make(map[int]bool, n)
	for i := len(transcript) - n; i < len(transcript); i++ {
		included[i] = true
	}

	// pull the paired request back in for every included result
	for i := len(transcript) - n; i < len(transcript); i++ {
		if result, ok := transcript[i].(*types.ToolResultTurn); ok {
			if reqIdx, ok := callIndex[result.CallID]; ok {
				included[reqIdx] = true
			}
		}
	}

	for i, turn := range transcript {
		if included[i] {
			out.Window = append(out.Window, turn)
		}
	}

	if lastUser >= 0 && !included[lastUser] {
		out.Preamble = relocateUserTurn(out.Preamble, transcript[lastUser].(*types.UserTurn))
	}
	return out
}

// relocateUserTurn puts the turn into the preamble, replacing an existing
// user turn if one is present.
func relocateUserTurn(preamble []types.Turn, user *types.UserTurn) []types.Turn {
	for i, turn := range preamble {
		if _, ok := turn.(*types.UserTurn); ok {
			preamble[i] = user
			return preamble
		}
	}
	return append(preamble, user)
}
