package usecase

import (
	"context"
	"sync"

	"devops-sentinel/internal/domain"
)

// SessionLocker serializes request handling per session. Two requests for
// the same session never run concurrently; requests for distinct sessions
// are independent.
type SessionLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu      sync.Mutex
	waiters int
}

func NewSessionLocker() *SessionLocker {
	return &SessionLocker{entries: make(map[string]*lockEntry)}
}

// Acquire blocks until the session lock is held or ctx is cancelled. The
// returned release func must be called exactly once.
func (l *SessionLocker) Acquire(ctx context.Context, sessionID string) (release func(), err error) {
	l.mu.Lock()
	entry, ok := l.entries[sessionID]
	if !ok {
		entry = &lockEntry{}
		l.entries[sessionID] = entry
	}
	entry.waiters++
	l.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		entry.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return func() { l.release(sessionID, entry) }, nil
	case <-ctx.Done():
		// The acquiring goroutine may still win the mutex later; it has
		// to be released then, or every later request for this session
		// would block forever.
		go func() {
			<-acquired
			l.release(sessionID, entry)
		}()
		return nil, domain.NewDomainError("SessionLocker.Acquire", ctx.Err(), sessionID)
	}
}

func (l *SessionLocker) release(sessionID string, entry *lockEntry) {
	entry.mu.Unlock()
	l.mu.Lock()
	entry.waiters--
	if entry.waiters == 0 {
		delete(l.entries, sessionID)
	}
	l.mu.Unlock()
}

// ActiveSessions reports how many sessions currently have a held or
// pending lock.
func (l *SessionLocker) ActiveSessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
