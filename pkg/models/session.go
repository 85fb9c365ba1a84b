package models

import "time"

// SessionState is the Session Transport's state machine position.
type SessionState string

const (
	SessionConnecting   SessionState = "connecting"
	SessionReady        SessionState = "ready"
	SessionQuerying     SessionState = "querying"
	SessionReconnecting SessionState = "reconnecting"
	SessionDisconnected SessionState = "disconnected"
)

// Session is the pool-visible record of one subprocess worker.
type Session struct {
	// SessionID is the opaque, provider-issued conversational id; it is
	// monotonic once set (it never reverts to empty).
	SessionID string

	// Ref is the pool-local handle, stable across reconnects.
	Ref string

	Provider ProviderId
	State    SessionState

	// CheckedOutBy is the caller-supplied monitor key, empty when idle.
	CheckedOutBy string

	LastActiveMonotonic time.Time
	ReconnectAttempts   int
}

// IsCheckedOut reports whether exactly one caller currently owns this
// session's lifetime.
func (s *Session) IsCheckedOut() bool {
	return s.CheckedOutBy != ""
}
