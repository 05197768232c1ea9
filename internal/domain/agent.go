package domain

import "time"

// Capability identifies a family of cloud platform calls an agent may use.
type Capability string

const (
	CapabilityMonitoring Capability = "monitoring"
	CapabilityCost       Capability = "cost"
	CapabilityDeployment Capability = "deployment"
	CapabilityCluster    Capability = "cluster"
)

// AgentDescriptor describes one registered agent: its capability set, its
// model binding, and its dispatch policy. Immutable once loaded from the
// definition source.
type AgentDescriptor struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Capabilities []Capability      `yaml:"capabilities,omitempty"`
	ModelBinding string            `yaml:"model_binding"`
	SystemPrompt string            `yaml:"system_prompt"`
	Temperature  float64           `yaml:"temperature"`
	MaxTokens    int               `yaml:"max_tokens"`
	Timeout      time.Duration     `yaml:"-"`
	MaxConcurrency int             `yaml:"max_concurrency"`
	Keywords     []string          `yaml:"keywords,omitempty"`
	Escalations  []EscalationRule  `yaml:"escalations,omitempty"`
	Metadata     map[string]string `yaml:"metadata,omitempty"`
}

// HasCapability reports whether the agent declares the given capability.
func (d *AgentDescriptor) HasCapability(c Capability) bool {
	for _, cap := range d.Capabilities {
		if cap == c {
			return true
		}
	}
	return false
}

// CompletionOnly reports whether the agent has no cloud capabilities.
func (d *AgentDescriptor) CompletionOnly() bool {
	return len(d.Capabilities) == 0
}

// EscalationRule is a declarative follow-up rule attached to an agent.
// When an invocation of this agent reaches the Succeeded state and the
// optional Flag key is truthy in the result data, the Target agent is
// proposed with the given Reason.
type EscalationRule struct {
	Flag   string `yaml:"flag,omitempty"` // result data key; empty matches any success
	Target string `yaml:"target"`
	Reason string `yaml:"reason"`
}

// Matches reports whether the rule fires for the given result.
// Timed-out and failed invocations never match; the caller filters those.
func (r EscalationRule) Matches(result *AgentResult) bool {
	if result == nil {
		return false
	}
	if r.Flag == "" {
		return true
	}
	v, ok := result.Data[r.Flag]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "false"
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return v != nil
	}
}

// AgentStatus is a read-only snapshot of one registered agent.
type AgentStatus struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	ModelBinding string       `json:"model_binding"`
	Capabilities []Capability `json:"capabilities,omitempty"`
}
