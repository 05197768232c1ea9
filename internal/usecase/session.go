package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"devops-sentinel/internal/domain"
)

// SessionManager loads and commits per-session conversation context on
// top of a SessionStore. It assumes the caller holds the session lock
// for the duration of a load/commit pair.
type SessionManager struct {
	store      domain.SessionStore
	maxHistory int
	logger     *slog.Logger
}

func NewSessionManager(store domain.SessionStore, maxHistory int, logger *slog.Logger) *SessionManager {
	return &SessionManager{store: store, maxHistory: maxHistory, logger: logger}
}

// Load returns the session context, creating a fresh one on first use. A
// store failure degrades to a fresh context so the request can still be
// served without history.
func (m *SessionManager) Load(ctx context.Context, sessionID string) *domain.SessionContext {
	sc, err := m.store.Get(ctx, sessionID)
	switch {
	case err == nil:
		return sc
	case errors.Is(err, domain.ErrSessionNotFound):
	default:
		m.logger.Warn("session load failed, starting without history",
			"session_id", sessionID,
			"error", err,
		)
	}
	return &domain.SessionContext{SessionID: sessionID}
}

// Commit appends the completed exchange and writes the context back. A
// write failure is logged, not surfaced; the response has already been
// produced.
func (m *SessionManager) Commit(ctx context.Context, sc *domain.SessionContext, req *domain.Request, resp *domain.AggregatedResponse) {
	sc.Append(domain.Exchange{
		RequestText:  req.RawText,
		ResponseText: resp.Text,
		Status:       resp.OverallStatus,
		At:           time.Now().UTC(),
	}, m.maxHistory)

	if err := m.store.Put(ctx, sc); err != nil {
		m.logger.Error("session commit failed",
			"session_id", sc.SessionID,
			"error_code", string(domain.ErrorCodeOf(err)),
			"error", err,
		)
	}
}
