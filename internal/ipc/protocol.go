package ipc

import "time"

// MessageType represents the type of IPC message
type MessageType string

const (
	// MessageTypeListSessions asks the daemon for a summary of live sessions
	MessageTypeListSessions MessageType = "list_sessions"
	// MessageTypeRevokeSession asks the daemon to delete one session
	MessageTypeRevokeSession MessageType = "revoke_session"
	// MessageTypeResponse is sent from the daemon back to the client
	MessageTypeResponse MessageType = "response"
)

// Request is sent from the admin CLI to the daemon.
type Request struct {
	Type MessageType `json:"type"`
	// IDPrefix selects the session for revoke_session. It must match exactly
	// one session.
	IDPrefix string `json:"id_prefix,omitempty"`
}

// SessionSummary describes a session without exposing its full ID.
type SessionSummary struct {
	IDPrefix       string    `json:"id_prefix"`
	Provider       string    `json:"provider"`
	RegistrationID string    `json:"registration_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Response is sent from the daemon back to the admin CLI
type Response struct {
	Type     MessageType      `json:"type"`
	Status   string           `json:"status"` // "ok" or "error"
	Sessions []SessionSummary `json:"sessions,omitempty"`
	Revoked  string           `json:"revoked,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// ResponseStatus constants
const (
	StatusOK    = "ok"
	StatusError = "error"
)
