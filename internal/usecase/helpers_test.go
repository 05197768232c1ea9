package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"devops-sentinel/internal/domain"
	"devops-sentinel/internal/infra/logger"
)

// --- test doubles shared by the package tests ---

func testLogger() *slog.Logger { return logger.Discard() }

// nopBus discards all events.
type nopBus struct{}

func (nopBus) Publish(context.Context, domain.Event)                  {}
func (nopBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (nopBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }

// recordingBus captures published events for assertions.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, event domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }

func (b *recordingBus) ofType(t domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeInvoker routes invocations to per-agent functions.
type fakeInvoker struct {
	mu     sync.Mutex
	agents map[string]func(ctx context.Context, input string) (*domain.AgentResult, error)
	calls  []string
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{agents: make(map[string]func(context.Context, string) (*domain.AgentResult, error))}
}

func (f *fakeInvoker) on(agentID string, fn func(ctx context.Context, input string) (*domain.AgentResult, error)) {
	f.agents[agentID] = fn
}

func (f *fakeInvoker) succeed(agentID, text string, data map[string]any) {
	f.on(agentID, func(context.Context, string) (*domain.AgentResult, error) {
		return &domain.AgentResult{Text: text, Data: data}, nil
	})
}

func (f *fakeInvoker) Invoke(ctx context.Context, desc *domain.AgentDescriptor, input string) (*domain.AgentResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, desc.ID)
	fn := f.agents[desc.ID]
	f.mu.Unlock()
	if fn == nil {
		return &domain.AgentResult{Text: "ok from " + desc.ID}, nil
	}
	return fn(ctx, input)
}

func (f *fakeInvoker) callCount(agentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.calls {
		if id == agentID {
			n++
		}
	}
	return n
}

// fakeCompletion answers every prompt with a fixed reply.
type fakeCompletion struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (f *fakeCompletion) Complete(_ context.Context, _ domain.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompletion) Name() string { return "fake" }

func (f *fakeCompletion) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// mapStore is an unsynchronized in-memory SessionStore for single-flow tests.
type mapStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.SessionContext
	getErr   error
	putErr   error
}

func newMapStore() *mapStore {
	return &mapStore{sessions: make(map[string]*domain.SessionContext)}
}

func (s *mapStore) Get(_ context.Context, sessionID string) (*domain.SessionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	sc, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sc, nil
}

func (s *mapStore) Put(_ context.Context, sc *domain.SessionContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.sessions[sc.SessionID] = sc
	return nil
}

func testDescriptor(id string, keywords []string, opts ...func(*domain.AgentDescriptor)) *domain.AgentDescriptor {
	d := &domain.AgentDescriptor{
		ID:           id,
		Name:         id,
		Description:  "test agent " + id,
		ModelBinding: "test-model",
		Timeout:      2 * time.Second,
		Keywords:     keywords,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func withEscalation(flag, target, reason string) func(*domain.AgentDescriptor) {
	return func(d *domain.AgentDescriptor) {
		d.Escalations = append(d.Escalations, domain.EscalationRule{Flag: flag, Target: target, Reason: reason})
	}
}

func withTimeout(d time.Duration) func(*domain.AgentDescriptor) {
	return func(desc *domain.AgentDescriptor) { desc.Timeout = d }
}

func buildRegistry(descs ...*domain.AgentDescriptor) *Registry {
	r := NewRegistry(testLogger())
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}
