package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"devops-sentinel/internal/domain"
)

// DroppedEscalation records a proposal the coordinator refused, with the
// sentinel explaining why.
type DroppedEscalation struct {
	Edge domain.EscalationEdge
	Err  error
}

// Coordinator decides whether a terminal invocation warrants a follow-up
// invocation of a different agent, enforcing the depth bound and cycle
// prevention. Rules are declarative data on the source agent's descriptor.
type Coordinator struct {
	registry *Registry
	maxDepth int
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator with the given chain depth bound.
func NewCoordinator(registry *Registry, maxDepth int, bus domain.EventBus, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		registry: registry,
		maxDepth: maxDepth,
		bus:      bus,
		logger:   logger,
	}
}

// Propose evaluates the source agent's escalation rules against a terminal
// invocation. visited is the set of agent ids already in this chain,
// including the source itself. Refused proposals come back as drops; a
// drop never fails the root request.
//
// Timed-out invocations never escalate: they carry no reliable signal.
func (c *Coordinator) Propose(ctx context.Context, inv *domain.Invocation, visited map[string]bool) ([]domain.EscalationEdge, []DroppedEscalation) {
	if inv.State != domain.StateSucceeded {
		return nil, nil
	}

	desc, err := c.registry.Get(inv.AgentID)
	if err != nil {
		return nil, nil
	}

	var edges []domain.EscalationEdge
	var drops []DroppedEscalation
	for _, rule := range desc.Escalations {
		if !rule.Matches(inv.Result) {
			continue
		}

		edge := domain.EscalationEdge{
			SourceInvocationID: inv.ID,
			TargetAgentID:      rule.Target,
			Reason:             rule.Reason,
			Depth:              inv.Depth + 1,
		}

		switch {
		case edge.Depth > c.maxDepth:
			drops = append(drops, c.drop(ctx, inv, edge, domain.ErrEscalationDepth))
		case visited[rule.Target]:
			drops = append(drops, c.drop(ctx, inv, edge, domain.ErrEscalationCycle))
		default:
			if _, err := c.registry.Get(rule.Target); err != nil {
				drops = append(drops, c.drop(ctx, inv, edge, domain.ErrAgentNotFound))
				continue
			}
			edges = append(edges, edge)
			c.bus.Publish(ctx, domain.Event{
				Type:      domain.EventEscalationProposed,
				RequestID: inv.RequestID,
				At:        time.Now(),
				Data: map[string]any{
					"source_invocation_id": inv.ID,
					"source_agent_id":      inv.AgentID,
					"target_agent_id":      rule.Target,
					"reason":               rule.Reason,
					"depth":                edge.Depth,
				},
			})
		}
	}
	return edges, drops
}

func (c *Coordinator) drop(ctx context.Context, inv *domain.Invocation, edge domain.EscalationEdge, sentinel error) DroppedEscalation {
	err := fmt.Errorf("%w: %s -> %s", sentinel, inv.AgentID, edge.TargetAgentID)
	c.logger.Warn("escalation dropped",
		"source_agent_id", inv.AgentID,
		"target_agent_id", edge.TargetAgentID,
		"depth", edge.Depth,
		"error_code", string(domain.ErrorCodeOf(err)),
	)
	c.bus.Publish(ctx, domain.Event{
		Type:      domain.EventEscalationDropped,
		RequestID: inv.RequestID,
		At:        time.Now(),
		Data: map[string]any{
			"source_agent_id": inv.AgentID,
			"target_agent_id": edge.TargetAgentID,
			"depth":           edge.Depth,
			"error_code":      string(domain.ErrorCodeOf(err)),
		},
	})
	return DroppedEscalation{Edge: edge, Err: err}
}

// DeriveInput builds the escalated invocation's input from the source
// result, not from the raw user text.
func DeriveInput(sourceAgentID, reason string, result *domain.AgentResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Escalated from %s (%s).\n\nSource finding:\n%s", sourceAgentID, reason, result.Text)
	if len(result.Data) > 0 {
		if encoded, err := json.MarshalIndent(result.Data, "", "  "); err == nil {
			b.WriteString("\n\nSource data:\n")
			b.Write(encoded)
		}
	}
	return b.String()
}
