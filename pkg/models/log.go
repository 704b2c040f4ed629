package models

import "time"

// SessionStatus tracks a live-log session.
type SessionStatus string

// Session states.
const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// Session scopes a stream of log entries to one orchestrator run.
type Session struct {
	SessionID string        `json:"session_id"`
	CreatedAt time.Time     `json:"created_at"`
	ClosedAt  *time.Time    `json:"closed_at,omitempty"`
	Status    SessionStatus `json:"status"`
}

// LogEntry is one append-only progress record within a session.
// Entries within a session are totally ordered by timestamp.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	SessionID string            `json:"session_id"`
	Context   map[string]string `json:"context,omitempty"`
}
