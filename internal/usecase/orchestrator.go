package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"devops-sentinel/internal/domain"
	"devops-sentinel/internal/infra/tracer"
)

// Orchestrator drives one operator request end to end: classification,
// bounded-concurrency dispatch, escalation waves, aggregation, and the
// session commit. Requests for the same session are serialized; distinct
// sessions run independently.
type Orchestrator struct {
	classifier  *Classifier
	scheduler   *Scheduler
	coordinator *Coordinator
	aggregator  *Aggregator
	sessions    *SessionManager
	locker      *SessionLocker
	registry    *Registry
	bus         domain.EventBus
	logger      *slog.Logger

	maxDepth int
	ceiling  time.Duration // hard cap on the per-request outer timeout
}

// OrchestratorParams collects the collaborators of an Orchestrator.
type OrchestratorParams struct {
	Classifier  *Classifier
	Scheduler   *Scheduler
	Coordinator *Coordinator
	Aggregator  *Aggregator
	Sessions    *SessionManager
	Locker      *SessionLocker
	Registry    *Registry
	Bus         domain.EventBus
	Logger      *slog.Logger
	MaxDepth    int
	Ceiling     time.Duration
}

func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	return &Orchestrator{
		classifier:  p.Classifier,
		scheduler:   p.Scheduler,
		coordinator: p.Coordinator,
		aggregator:  p.Aggregator,
		sessions:    p.Sessions,
		locker:      p.Locker,
		registry:    p.Registry,
		bus:         p.Bus,
		logger:      p.Logger,
		maxDepth:    p.MaxDepth,
		ceiling:     p.Ceiling,
	}
}

// Handle processes one operator request and returns its terminal response.
// It blocks until every invocation spawned for the request is terminal or
// the outer deadline expires. The returned response always carries
// non-empty text.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, text string, metadata map[string]string) (*domain.AggregatedResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.NewDomainError("Orchestrator.Handle", domain.ErrInvalidInput, "empty request text")
	}
	if sessionID == "" {
		return nil, domain.NewDomainError("Orchestrator.Handle", domain.ErrInvalidInput, "empty session id")
	}

	req := &domain.Request{
		ID:         ulid.Make().String(),
		SessionID:  sessionID,
		RawText:    text,
		ReceivedAt: time.Now().UTC(),
		Metadata:   metadata,
	}

	release, err := o.locker.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := tracer.StartSpan(ctx, "orchestrator.handle", trace.WithAttributes(
		tracer.StringAttr("request_id", req.ID),
		tracer.StringAttr("session_id", sessionID),
	))
	defer span.End()

	o.bus.Publish(ctx, domain.Event{
		Type:      domain.EventRequestReceived,
		SessionID: sessionID,
		RequestID: req.ID,
		At:        req.ReceivedAt,
	})
	o.logger.Info("request received",
		"request_id", req.ID,
		"session_id", sessionID,
		"text_len", len(text),
	)

	sc := o.sessions.Load(ctx, sessionID)

	candidates := o.classifier.Classify(ctx, req, sc)
	span.SetAttributes(tracer.IntAttr("candidates", len(candidates)))

	rctx, cancel := context.WithTimeout(ctx, o.outerTimeout(candidates))
	defer cancel()

	var invocations []*domain.Invocation
	fallbackOnly := len(candidates) == 0
	if fallbackOnly {
		invocations = []*domain.Invocation{o.scheduler.DispatchFallback(rctx, req, 0)}
	} else {
		invocations = o.runWaves(rctx, req, candidates)
	}

	resp := o.aggregator.Aggregate(ctx, req, invocations)

	// When every selected agent failed, the completion-only fallback still
	// owes the operator a best-effort answer. The status stays Failed; the
	// fallback supplies text, not success.
	if !fallbackOnly && resp.OverallStatus == domain.StatusFailed {
		fb := o.scheduler.DispatchFallback(rctx, req, len(invocations))
		if fb.State == domain.StateSucceeded && fb.Result != nil {
			resp.Text = fb.Result.Text
			resp.Results = append(resp.Results, domain.InvocationSummary{
				AgentID: fb.AgentID,
				Status:  fb.State.String(),
				Summary: truncate(fb.Result.Text, summaryLimit),
			})
		}
	}

	o.sessions.Commit(ctx, sc, req, resp)

	o.bus.Publish(ctx, domain.Event{
		Type:      domain.EventRequestCompleted,
		SessionID: sessionID,
		RequestID: req.ID,
		At:        time.Now(),
		Data: map[string]any{
			"overall_status": string(resp.OverallStatus),
			"invocations":    len(resp.Results),
		},
	})
	o.logger.Info("request completed",
		"request_id", req.ID,
		"session_id", sessionID,
		"overall_status", string(resp.OverallStatus),
		"invocations", len(resp.Results),
	)
	tracer.SetOK(span)
	return resp, nil
}

// runWaves dispatches the direct candidates and then drains escalations
// wave by wave. Each invocation carries its own visited set so parallel
// chains never block each other; a chain revisiting an agent is truncated
// by the coordinator, never an error.
func (o *Orchestrator) runWaves(ctx context.Context, req *domain.Request, candidates []Candidate) []*domain.Invocation {
	wave := o.scheduler.Dispatch(ctx, req, candidates, 0)

	visited := make(map[string]map[string]bool, len(wave))
	for _, inv := range wave {
		visited[inv.ID] = map[string]bool{inv.AgentID: true}
	}

	all := wave
	seq := len(wave)
	for len(wave) > 0 {
		var work []EscalationWork
		var chains []map[string]bool
		for _, inv := range wave {
			edges, _ := o.coordinator.Propose(ctx, inv, visited[inv.ID])
			for _, edge := range edges {
				work = append(work, EscalationWork{
					Edge:  edge,
					Input: DeriveInput(inv.AgentID, edge.Reason, inv.Result),
				})
				chain := make(map[string]bool, len(visited[inv.ID])+1)
				for id := range visited[inv.ID] {
					chain[id] = true
				}
				chain[edge.TargetAgentID] = true
				chains = append(chains, chain)
			}
		}
		if len(work) == 0 {
			break
		}

		next := o.scheduler.DispatchEscalations(ctx, req, work, seq)
		for i, inv := range next {
			visited[inv.ID] = chains[i]
		}
		seq += len(next)
		all = append(all, next...)
		wave = next
	}
	return all
}

// outerTimeout bounds one whole request: the slowest selected agent may
// run once per chain level, so the budget is that timeout times the chain
// length, capped at the configured ceiling.
func (o *Orchestrator) outerTimeout(candidates []Candidate) time.Duration {
	var slowest time.Duration
	for _, cand := range candidates {
		if desc, err := o.registry.Get(cand.AgentID); err == nil && desc.Timeout > slowest {
			slowest = desc.Timeout
		}
	}
	if slowest == 0 {
		if desc, err := o.registry.Fallback(); err == nil {
			slowest = desc.Timeout
		}
	}
	if slowest == 0 {
		return o.ceiling
	}

	budget := slowest * time.Duration(1+o.maxDepth)
	if budget > o.ceiling {
		return o.ceiling
	}
	return budget
}

// Status reports the registered agents, for the gateway's status route.
func (o *Orchestrator) Status() []domain.AgentStatus {
	return o.registry.List()
}
