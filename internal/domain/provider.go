package domain

import "context"

// CompletionRequest is a single AI completion round-trip.
type CompletionRequest struct {
	ModelBinding string  // opaque binding resolved by the provider
	System       string  // system prompt, may be empty
	Prompt       string
	Temperature  float64
	MaxTokens    int
}

// CompletionProvider is the AI completion collaborator. Implementations
// must support distinct model bindings per call.
type CompletionProvider interface {
	// Complete sends a request and returns the completion text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the provider's identifier (e.g., "bedrock").
	Name() string
}

// CapabilityCall is one read or write against a cloud capability family.
type CapabilityCall struct {
	Capability Capability
	Action     string
	Params     map[string]any
}

// CapabilityClient is one cloud capability collaborator. The core treats
// all families uniformly and never sees their wire protocol.
type CapabilityClient interface {
	Call(ctx context.Context, call CapabilityCall) (map[string]any, error)
	Family() Capability
}

// AgentInvoker executes one agent invocation end-to-end: bounded capability
// calls plus at most one completion round-trip.
type AgentInvoker interface {
	Invoke(ctx context.Context, agent *AgentDescriptor, input string) (*AgentResult, error)
}
