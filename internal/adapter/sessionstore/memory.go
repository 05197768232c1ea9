package sessionstore

import (
	"context"
	"sync"

	"devops-sentinel/internal/domain"
)

// Memory is an in-process session store for single-node deployments and
// tests. Last writer wins per session.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionContext
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]domain.SessionContext)}
}

// Get implements domain.SessionStore.
func (m *Memory) Get(_ context.Context, sessionID string) (*domain.SessionContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sc, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	// Copy so callers cannot mutate stored state without a Put.
	cp := sc
	cp.History = make([]domain.Exchange, len(sc.History))
	copy(cp.History, sc.History)
	return &cp, nil
}

// Put implements domain.SessionStore.
func (m *Memory) Put(_ context.Context, sc *domain.SessionContext) error {
	if sc == nil || sc.SessionID == "" {
		return domain.NewDomainError("Memory.Put", domain.ErrInvalidInput, "empty session id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *sc
	cp.History = make([]domain.Exchange, len(sc.History))
	copy(cp.History, sc.History)
	m.sessions[sc.SessionID] = cp
	return nil
}

// Len returns the number of stored sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
