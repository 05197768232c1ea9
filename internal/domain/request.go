package domain

import "time"

// Request is one inbound operator message, immutable after creation.
type Request struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	RawText    string            `json:"raw_text"`
	ReceivedAt time.Time         `json:"received_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// InvocationState is the lifecycle state of a single agent invocation.
type InvocationState int

const (
	StatePending InvocationState = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateTimedOut
)

func (s InvocationState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is a final state.
func (s InvocationState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

// AgentResult is the output of one successful agent invocation.
// Text is the prose answer; Data carries structured values produced by
// capability calls (e.g. an "anomaly" flag from a monitoring sweep).
type AgentResult struct {
	Text string         `json:"text"`
	Data map[string]any `json:"data,omitempty"`
}

// Invocation is one execution attempt of an agent against derived input.
// Owned exclusively by the scheduler until terminal.
type Invocation struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"request_id"`
	AgentID    string          `json:"agent_id"`
	Input      string          `json:"input"`
	Confidence float64         `json:"confidence"`
	Seq        int             `json:"seq"`   // dispatch submission order within the request
	Depth      int             `json:"depth"` // 0 = direct, >0 = escalation chain depth
	SourceID   string          `json:"source_id,omitempty"` // escalation source invocation
	Reason     string          `json:"reason,omitempty"`    // escalation reason
	State      InvocationState `json:"state"`
	StartedAt  time.Time       `json:"started_at,omitzero"`
	FinishedAt time.Time       `json:"finished_at,omitzero"`
	Result     *AgentResult    `json:"result,omitempty"`
	Err        error           `json:"-"`
}

// Escalated reports whether the invocation was created by an escalation.
func (inv *Invocation) Escalated() bool { return inv.Depth > 0 }

// EscalationEdge records one proposed escalation between invocations.
type EscalationEdge struct {
	SourceInvocationID string `json:"source_invocation_id"`
	TargetAgentID      string `json:"target_agent_id"`
	Reason             string `json:"reason"`
	Depth              int    `json:"depth"`
}

// OverallStatus summarizes the fate of all invocations behind one response.
type OverallStatus string

const (
	StatusComplete OverallStatus = "complete"
	StatusDegraded OverallStatus = "degraded"
	StatusFailed   OverallStatus = "failed"
)

// InvocationSummary is the per-agent slice of an aggregated response.
type InvocationSummary struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
	Summary string `json:"summary"`
}

// AggregatedResponse is the single terminal response for one request.
type AggregatedResponse struct {
	SessionID     string              `json:"session_id"`
	RequestID     string              `json:"request_id"`
	OverallStatus OverallStatus       `json:"overall_status"`
	Text          string              `json:"text"`
	Results       []InvocationSummary `json:"per_agent_results"`
}
