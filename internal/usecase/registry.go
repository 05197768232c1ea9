package usecase

import (
	"log/slog"
	"sort"
	"sync"

	"devops-sentinel/internal/domain"
)

// Registry holds all registered agent descriptors and preserves their
// declaration order, which the classifier uses for deterministic
// tie-breaking. Descriptors are immutable once registered.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*domain.AgentDescriptor
	order    []string
	fallback *domain.AgentDescriptor
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byID:   make(map[string]*domain.AgentDescriptor),
		logger: logger,
	}
}

// Register adds an agent descriptor. Returns ErrAgentDuplicate if the id is
// already taken.
func (r *Registry) Register(d *domain.AgentDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[d.ID]; exists {
		return domain.ErrAgentDuplicate
	}
	r.byID[d.ID] = d
	r.order = append(r.order, d.ID)
	r.logger.Info("agent registered",
		"agent_id", d.ID,
		"capabilities", len(d.Capabilities),
		"model_binding", d.ModelBinding,
	)
	return nil
}

// SetFallback installs the always-available completion-only fallback agent.
func (r *Registry) SetFallback(d *domain.AgentDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = d
}

// Fallback returns the generic fallback descriptor, or ErrAgentNotFound if
// none was installed.
func (r *Registry) Fallback() (*domain.AgentDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fallback == nil {
		return nil, domain.ErrAgentNotFound
	}
	return r.fallback, nil
}

// Get returns the descriptor for the given id, or ErrAgentNotFound.
func (r *Registry) Get(agentID string) (*domain.AgentDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[agentID]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	return d, nil
}

// All returns every registered descriptor in declaration order.
func (r *Registry) All() []*domain.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.AgentDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// DeclarationIndex returns the zero-based registration position of the
// agent, or -1 when unknown. Earlier declarations win classifier ties.
func (r *Registry) DeclarationIndex(agentID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, id := range r.order {
		if id == agentID {
			return i
		}
	}
	return -1
}

// List returns a status snapshot for every registered agent, sorted by ID.
func (r *Registry) List() []domain.AgentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]domain.AgentStatus, 0, len(r.byID))
	for _, d := range r.byID {
		statuses = append(statuses, domain.AgentStatus{
			ID:           d.ID,
			Name:         d.Name,
			ModelBinding: d.ModelBinding,
			Capabilities: d.Capabilities,
		})
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].ID < statuses[j].ID
	})
	return statuses
}
