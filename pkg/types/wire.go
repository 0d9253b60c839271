package types

import (
	"encoding/json"
	"fmt"
)

// Wire message type discriminators. Every frame on the WebSocket is a JSON
// object with a "type" field holding one of these.
const (
	MsgHandshake       = "handshake"
	MsgHandshakeAck    = "handshake_ack"
	MsgUserMessage     = "user_message"
	MsgTypingIndicator = "typing_indicator"
	MsgToolReport      = "tool_report"
	MsgToolResult      = "tool_result"
	MsgAgentResponse   = "agent_response"
	MsgToolRequest     = "tool_request"
	MsgToolResponse    = "tool_response"
)

// ClientRole identifies what a connection is for.
type ClientRole string

const (
	// RoleDriver is the human/UI client that sends user turns.
	RoleDriver ClientRole = "driver"
	// RoleExecutor is a client able to fulfill server-issued tool requests.
	RoleExecutor ClientRole = "executor"
	// RoleAll matches every connection in fan-out filters.
	RoleAll ClientRole = "all"
)

// Valid reports whether the role is one a client may claim in a handshake.
func (r ClientRole) Valid() bool {
	return r == RoleDriver || r == RoleExecutor
}

// Handshake is the first frame a client must send after connecting.
type Handshake struct {
	Type       string     `json:"type"`
	SessionID  string     `json:"session_id"`
	ClientRole ClientRole `json:"client_role"`
}

// HandshakeAck is the server's reply to a Handshake.
type HandshakeAck struct {
	Type         string      `json:"type"`
	SessionID    string      `json:"session_id"`
	ConnectionID string      `json:"connection_id"`
	IsReconnect  bool        `json:"is_reconnect"`
	SessionInfo  SessionInfo `json:"session_info"`
}

// UserMessage carries a user turn from a driver connection.
type UserMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Context   string `json:"context,omitempty"`
}

// TypingIndicator tells driver clients whether the agent is working.
type TypingIndicator struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

// ToolReport informs drivers that the agent started a tool call.
type ToolReport struct {
	Type     string `json:"type"`
	ToolName string `json:"tool_name"`
	CallID   string `json:"call_id"`
}

// ToolResultNotice informs drivers that a tool call completed.
type ToolResultNotice struct {
	Type     string `json:"type"`
	ToolName string `json:"tool_name"`
	Content  any    `json:"content"`
}

// AgentResponse carries agent output (or a human-readable error) to drivers.
type AgentResponse struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	IsFinal bool   `json:"is_final"`
}

// ToolRequest asks an executor connection to run a tool.
type ToolRequest struct {
	Type       string         `json:"type"`
	RequestID  string         `json:"request_id"`
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
	TimeoutMS  int64          `json:"timeout_ms"`
}

// ToolResponse is an executor's answer to a ToolRequest.
type ToolResponse struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ClientMessage is any frame a client may send after the handshake.
type ClientMessage interface {
	MessageType() string
}

func (m *UserMessage) MessageType() string  { return MsgUserMessage }
func (m *ToolResponse) MessageType() string { return MsgToolResponse }

// DecodeClientMessage parses an inbound runtime frame into its concrete type.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch probe.Type {
	case MsgUserMessage:
		var m UserMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case MsgToolResponse:
		var m ToolResponse
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", probe.Type)
	}
}
