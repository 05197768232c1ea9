package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"devops-sentinel/internal/domain"
	"devops-sentinel/internal/infra/tracer"
)

// EscalationWork is one escalation edge ready for dispatch, with the input
// derived from its source invocation's result.
type EscalationWork struct {
	Edge  domain.EscalationEdge
	Input string
}

// Scheduler launches bounded-concurrency invocations and collects them once
// terminal. Invocations are independent: failure or timeout of one never
// cancels its siblings, and a dispatch batch returns within the longest
// selected agent timeout plus collection overhead.
type Scheduler struct {
	registry *Registry
	invoker  domain.AgentInvoker
	bus      domain.EventBus
	logger   *slog.Logger
	fanout   int // max invocations per direct batch; 0 = candidate-list length

	semMu sync.Mutex
	sems  map[string]chan struct{} // per-agent concurrency caps
}

// NewScheduler creates a scheduler. fanout limits how many candidates of
// one batch are dispatched; zero means all of them.
func NewScheduler(registry *Registry, invoker domain.AgentInvoker, bus domain.EventBus, fanout int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		registry: registry,
		invoker:  invoker,
		bus:      bus,
		logger:   logger,
		fanout:   fanout,
		sems:     make(map[string]chan struct{}),
	}
}

// Dispatch runs one invocation per candidate concurrently, in
// classifier-confidence order, and returns them all in submission order
// once every one is terminal.
func (s *Scheduler) Dispatch(ctx context.Context, req *domain.Request, candidates []Candidate, startSeq int) []*domain.Invocation {
	limit := len(candidates)
	if s.fanout > 0 && s.fanout < limit {
		limit = s.fanout
	}

	invocations := make([]*domain.Invocation, 0, limit)
	for i, cand := range candidates[:limit] {
		invocations = append(invocations, &domain.Invocation{
			ID:         uuid.NewString(),
			RequestID:  req.ID,
			AgentID:    cand.AgentID,
			Input:      req.RawText,
			Confidence: cand.Confidence,
			Seq:        startSeq + i,
			State:      domain.StatePending,
		})
	}

	s.runAll(ctx, invocations)
	return invocations
}

// DispatchEscalations runs one invocation per escalation edge concurrently
// and returns them in submission order once terminal.
func (s *Scheduler) DispatchEscalations(ctx context.Context, req *domain.Request, work []EscalationWork, startSeq int) []*domain.Invocation {
	invocations := make([]*domain.Invocation, 0, len(work))
	for i, w := range work {
		invocations = append(invocations, &domain.Invocation{
			ID:        uuid.NewString(),
			RequestID: req.ID,
			AgentID:   w.Edge.TargetAgentID,
			Input:     w.Input,
			Seq:       startSeq + i,
			Depth:     w.Edge.Depth,
			SourceID:  w.Edge.SourceInvocationID,
			Reason:    w.Edge.Reason,
			State:     domain.StatePending,
		})
	}

	s.runAll(ctx, invocations)
	return invocations
}

// DispatchFallback runs the generic completion-only fallback agent. It is
// the path taken when classification produced no candidates.
func (s *Scheduler) DispatchFallback(ctx context.Context, req *domain.Request, seq int) *domain.Invocation {
	inv := &domain.Invocation{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		Input:     req.RawText,
		Seq:       seq,
		State:     domain.StatePending,
	}

	desc, err := s.registry.Fallback()
	if err != nil {
		s.finish(ctx, inv, nil, fmt.Errorf("%w: no fallback agent installed", domain.ErrAgentUnavailable))
		return inv
	}
	inv.AgentID = desc.ID

	s.bus.Publish(ctx, domain.Event{
		Type:      domain.EventFallbackInvoked,
		RequestID: req.ID,
		SessionID: req.SessionID,
		At:        time.Now(),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go s.run(ctx, inv, desc, &wg)
	wg.Wait()
	return inv
}

func (s *Scheduler) runAll(ctx context.Context, invocations []*domain.Invocation) {
	var wg sync.WaitGroup
	for _, inv := range invocations {
		desc, err := s.registry.Get(inv.AgentID)
		if err != nil {
			s.finish(ctx, inv, nil, fmt.Errorf("%w: %s", domain.ErrAgentUnavailable, inv.AgentID))
			continue
		}
		wg.Add(1)
		go s.run(ctx, inv, desc, &wg)
	}
	wg.Wait()
}

// run drives one invocation to a terminal state. The invocation is owned
// by this goroutine until it is terminal; callers read it only after the
// batch WaitGroup is done.
func (s *Scheduler) run(ctx context.Context, inv *domain.Invocation, desc *domain.AgentDescriptor, wg *sync.WaitGroup) {
	defer wg.Done()

	ctx, span := tracer.StartSpan(ctx, "scheduler.invocation",
		trace.WithAttributes(
			tracer.StringAttr("agent_id", inv.AgentID),
			tracer.IntAttr("depth", inv.Depth),
		),
	)
	defer span.End()

	if sem := s.semaphore(desc); sem != nil {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			s.finish(ctx, inv, nil, fmt.Errorf("%w: waiting for %s slot", domain.ErrAgentTimeout, desc.ID))
			return
		}
	}

	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inv.State = domain.StateRunning
	inv.StartedAt = time.Now()
	s.bus.Publish(ctx, domain.Event{
		Type:      domain.EventInvocationStarted,
		RequestID: inv.RequestID,
		At:        inv.StartedAt,
		Data:      map[string]any{"invocation_id": inv.ID, "agent_id": inv.AgentID, "depth": inv.Depth},
	})

	result, err := s.invoker.Invoke(ictx, desc, inv.Input)
	s.finish(ctx, inv, result, err)

	if inv.State != domain.StateSucceeded {
		tracer.RecordError(span, inv.Err)
	} else {
		tracer.SetOK(span)
	}
}

// finish transitions an invocation to its terminal state and emits the
// state transition event.
func (s *Scheduler) finish(ctx context.Context, inv *domain.Invocation, result *domain.AgentResult, err error) {
	inv.FinishedAt = time.Now()
	switch {
	case err == nil:
		inv.State = domain.StateSucceeded
		inv.Result = result
	case errors.Is(err, domain.ErrAgentTimeout) || errors.Is(err, context.DeadlineExceeded):
		inv.State = domain.StateTimedOut
		inv.Err = err
	default:
		inv.State = domain.StateFailed
		inv.Err = err
	}

	s.logger.Debug("invocation terminal",
		"invocation_id", inv.ID,
		"agent_id", inv.AgentID,
		"state", inv.State.String(),
		"depth", inv.Depth,
	)
	s.bus.Publish(ctx, domain.Event{
		Type:      domain.EventInvocationFinished,
		RequestID: inv.RequestID,
		At:        inv.FinishedAt,
		Data: map[string]any{
			"invocation_id": inv.ID,
			"agent_id":      inv.AgentID,
			"state":         inv.State.String(),
			"depth":         inv.Depth,
		},
	})
}

func (s *Scheduler) semaphore(desc *domain.AgentDescriptor) chan struct{} {
	if desc.MaxConcurrency <= 0 {
		return nil
	}

	s.semMu.Lock()
	defer s.semMu.Unlock()

	sem, ok := s.sems[desc.ID]
	if !ok {
		sem = make(chan struct{}, desc.MaxConcurrency)
		s.sems[desc.ID] = sem
	}
	return sem
}
