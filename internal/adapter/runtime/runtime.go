package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"devops-sentinel/internal/domain"
	"devops-sentinel/internal/infra/tracer"
)

// snapshotActions maps each capability family to the read action an
// invocation performs to gather structured platform data before its single
// completion round-trip.
var snapshotActions = map[domain.Capability]string{
	domain.CapabilityMonitoring: "check_health",
	domain.CapabilityCost:       "cost_summary",
	domain.CapabilityDeployment: "list_deployments",
	domain.CapabilityCluster:    "cluster_status",
}

// Adapter is the uniform invocation wrapper around each agent's external
// calls: bounded capability reads plus at most one completion round-trip.
// It is safe for concurrent use; collaborator clients come from the shared
// ClientCache and are never mutated per call.
type Adapter struct {
	completion domain.CompletionProvider
	cache      *ClientCache
	scopes     map[domain.Capability]string // credentials scope per family
	logger     *slog.Logger
}

// New creates a runtime adapter. The cache's factory must return a
// domain.CapabilityClient for capability service keys.
func New(completion domain.CompletionProvider, cache *ClientCache, scopes map[domain.Capability]string, logger *slog.Logger) *Adapter {
	return &Adapter{
		completion: completion,
		cache:      cache,
		scopes:     scopes,
		logger:     logger,
	}
}

// Invoke implements domain.AgentInvoker. Collaborator failures are
// translated into the domain taxonomy: context expiry becomes
// ErrAgentTimeout, a missing client binding becomes ErrAgentUnavailable,
// and any other collaborator error becomes ErrAgentExecution.
func (a *Adapter) Invoke(ctx context.Context, agent *domain.AgentDescriptor, input string) (*domain.AgentResult, error) {
	ctx, span := tracer.StartSpan(ctx, "runtime.invoke",
		trace.WithAttributes(tracer.StringAttr("agent_id", agent.ID)),
	)
	defer span.End()

	data := make(map[string]any)
	for _, cap := range agent.Capabilities {
		out, err := a.capabilitySnapshot(ctx, cap)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		for k, v := range out {
			data[k] = v
		}
	}

	text, err := a.completion.Complete(ctx, domain.CompletionRequest{
		ModelBinding: agent.ModelBinding,
		System:       agent.SystemPrompt,
		Prompt:       buildPrompt(input, data),
		Temperature:  agent.Temperature,
		MaxTokens:    agent.MaxTokens,
	})
	if err != nil {
		translated := translate(ctx, agent.ID, err)
		tracer.RecordError(span, translated)
		return nil, translated
	}

	tracer.SetOK(span)
	a.logger.Debug("invocation finished",
		"agent_id", agent.ID,
		"capabilities", len(agent.Capabilities),
		"chars", len(text),
	)
	return &domain.AgentResult{Text: text, Data: data}, nil
}

func (a *Adapter) capabilitySnapshot(ctx context.Context, cap domain.Capability) (map[string]any, error) {
	v, err := a.cache.Get(string(cap), a.scopes[cap])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrAgentUnavailable, cap, err)
	}
	client, ok := v.(domain.CapabilityClient)
	if !ok {
		return nil, fmt.Errorf("%w: %s: cached client has wrong type", domain.ErrAgentUnavailable, cap)
	}

	out, err := client.Call(ctx, domain.CapabilityCall{
		Capability: cap,
		Action:     snapshotActions[cap],
	})
	if err != nil {
		return nil, translate(ctx, string(cap), err)
	}
	return out, nil
}

// translate maps a collaborator error into the invocation taxonomy.
func translate(ctx context.Context, who string, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", domain.ErrAgentTimeout, who)
	case errors.Is(err, domain.ErrAgentUnavailable) || errors.Is(err, domain.ErrAgentTimeout):
		return err
	default:
		return fmt.Errorf("%w: %s: %s", domain.ErrAgentExecution, who, err)
	}
}

// buildPrompt appends the structured capability data to the derived input
// so the single completion call sees both.
func buildPrompt(input string, data map[string]any) string {
	if len(data) == 0 {
		return input
	}
	var b strings.Builder
	b.WriteString(input)
	b.WriteString("\n\nStructured platform data:\n")
	if encoded, err := json.MarshalIndent(data, "", "  "); err == nil {
		b.Write(encoded)
	}
	return b.String()
}
