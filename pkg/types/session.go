// Package types provides the core data types for the Strudel agent server.
package types

// SessionStatus is the durable lifecycle state of a session.
type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionTerminated SessionStatus = "terminated"
)

// SessionConfig describes how a session's agent is bound.
type SessionConfig struct {
	AgentName string `json:"agentName"`
	ModelID   string `json:"modelID"`
	Provider  string `json:"provider"`

	// What the session is editing: "clip" | "song" | "playlist" | "pack".
	SessionType string `json:"sessionType"`
	ItemID      string `json:"itemID"`
	ProjectID   string `json:"projectID"`

	// Optional user-facing name.
	Name string `json:"name,omitempty"`
}

// Session is the durable record for a conversation session.
type Session struct {
	ID     string        `json:"id"`
	Config SessionConfig `json:"config"`
	Status SessionStatus `json:"status"`
	Time   SessionTime   `json:"time"`
}

// SessionTime contains timestamps for a session, in Unix milliseconds.
type SessionTime struct {
	Created      int64 `json:"created"`
	LastActivity int64 `json:"lastActivity"`
}

// SessionInfo is the summary sent to clients in handshake acks and list
// endpoints.
type SessionInfo struct {
	SessionID    string `json:"sessionID"`
	SessionType  string `json:"sessionType"`
	ItemID       string `json:"itemID"`
	ProjectID    string `json:"projectID"`
	AgentName    string `json:"agentName"`
	Status       string `json:"status"`
	LastActivity int64  `json:"lastActivity"`
	TurnCount    int    `json:"turnCount"`
}

// DisplayRow is one entry of the searchable display projection of a
// transcript: what the frontend renders, not what the model consumes.
type DisplayRow struct {
	Seq       int64  `json:"seq"`
	Role      string `json:"role"` // "user" | "assistant"
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}
