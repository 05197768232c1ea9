package domain

import (
	"context"
	"time"
)

// Exchange is one completed request/response pair in a session's history.
type Exchange struct {
	RequestText  string        `json:"request_text"`
	ResponseText string        `json:"response_text"`
	Status       OverallStatus `json:"status"`
	At           time.Time     `json:"at"`
}

// SessionContext carries conversation-scoped state across requests.
// It is mutated only by the orchestration core, once per completed request.
type SessionContext struct {
	SessionID string     `json:"session_id"`
	History   []Exchange `json:"history"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Append records a completed exchange, keeping at most maxHistory entries
// and truncating oldest first.
func (sc *SessionContext) Append(ex Exchange, maxHistory int) {
	sc.History = append(sc.History, ex)
	if maxHistory > 0 && len(sc.History) > maxHistory {
		sc.History = sc.History[len(sc.History)-maxHistory:]
	}
	sc.UpdatedAt = ex.At
}

// SessionStore persists session contexts keyed by session ID, with
// last-writer-wins semantics per session. Eviction is the store's concern.
type SessionStore interface {
	// Get returns the stored context, or ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*SessionContext, error)
	// Put stores the context, replacing any previous value.
	Put(ctx context.Context, sc *SessionContext) error
}
