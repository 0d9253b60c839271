package types

import (
	"encoding/json"
	"fmt"
)

// Turn is one entry of a session transcript. Concrete kinds are UserTurn,
// AssistantTurn, ToolCallTurn and ToolResultTurn.
type Turn interface {
	TurnType() string
	TurnID() string
}

// UserTurn is a message from the driving client.
type UserTurn struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // always "user"
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
	Created int64  `json:"created"`
}

func (t *UserTurn) TurnType() string { return "user" }
func (t *UserTurn) TurnID() string   { return t.ID }

// AssistantTurn is a text response from the agent.
type AssistantTurn struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // always "assistant"
	Text    string `json:"text"`
	Created int64  `json:"created"`
}

func (t *AssistantTurn) TurnType() string { return "assistant" }
func (t *AssistantTurn) TurnID() string   { return t.ID }

// ToolCallTurn records the agent requesting a tool invocation.
type ToolCallTurn struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"` // always "tool_call"
	CallID  string         `json:"callID"`
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args,omitempty"`
	Created int64          `json:"created"`
}

func (t *ToolCallTurn) TurnType() string { return "tool_call" }
func (t *ToolCallTurn) TurnID() string   { return t.ID }

// ToolResultTurn records the outcome of a tool invocation. Exactly one of
// Output and Error is meaningful; Error non-nil means the call failed.
type ToolResultTurn struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"` // always "tool_result"
	CallID  string          `json:"callID"`
	Output  json.RawMessage `json:"output,omitempty"`
	Error   *string         `json:"error,omitempty"`
	Created int64           `json:"created"`
}

func (t *ToolResultTurn) TurnType() string { return "tool_result" }
func (t *ToolResultTurn) TurnID() string   { return t.ID }

// UnmarshalTurn unmarshals a JSON turn into the appropriate concrete type.
func UnmarshalTurn(data []byte) (Turn, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case "user":
		var t UserTurn
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		return &t, nil
	case "assistant":
		var t AssistantTurn
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		return &t, nil
	case "tool_call":
		var t ToolCallTurn
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		return &t, nil
	case "tool_result":
		var t ToolResultTurn
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("unknown turn type %q", probe.Type)
	}
}

// UnmarshalTurns unmarshals a JSON array of turns.
func UnmarshalTurns(data []byte) ([]Turn, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(raws))
	for _, raw := range raws {
		t, err := UnmarshalTurn(raw)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, nil
}
