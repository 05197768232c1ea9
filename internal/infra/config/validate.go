package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

var validCapabilities = map[string]bool{
	"monitoring": true,
	"cost":       true,
	"deployment": true,
	"cluster":    true,
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateOrchestrator(cfg, ve)
	validateAgents(cfg, ve)
	validateCapabilities(cfg, ve)
	validateFallback(cfg, ve)
	validateSession(cfg, ve)
	validateSweeps(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateOrchestrator(cfg *Config, ve *ValidationError) {
	o := cfg.Orchestrator
	if o.ConfidenceThreshold < 0 || o.ConfidenceThreshold > 1 {
		ve.Add("orchestrator.confidence_threshold must be in [0,1], got %v", o.ConfidenceThreshold)
	}
	if o.FanoutLimit < 0 {
		ve.Add("orchestrator.fanout_limit must be >= 0")
	}
	if o.MaxEscalationDepth < 1 {
		ve.Add("orchestrator.max_escalation_depth must be >= 1")
	}
	if _, err := ParseDuration(o.RequestCeiling, 0); err != nil {
		ve.Add("orchestrator.request_ceiling: %v", err)
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	if len(cfg.Agents) == 0 {
		ve.Add("at least one agent must be defined")
	}
	seen := make(map[string]bool)
	ids := make(map[string]bool)
	for _, a := range cfg.Agents {
		ids[a.ID] = true
	}
	for i, a := range cfg.Agents {
		if a.ID == "" {
			ve.Add("agents[%d].id must not be empty", i)
			continue
		}
		if seen[a.ID] {
			ve.Add("agents[%d]: duplicate agent id %q", i, a.ID)
		}
		seen[a.ID] = true
		if a.ModelBinding == "" {
			ve.Add("agent %q: model_binding must not be empty", a.ID)
		}
		if d, err := time.ParseDuration(a.Timeout); err != nil || d <= 0 {
			ve.Add("agent %q: invalid timeout %q", a.ID, a.Timeout)
		}
		for _, c := range a.Capabilities {
			if !validCapabilities[c] {
				ve.Add("agent %q: unknown capability %q", a.ID, c)
			}
		}
		for _, esc := range a.Escalations {
			if esc.Target == "" {
				ve.Add("agent %q: escalation target must not be empty", a.ID)
			} else if !ids[esc.Target] {
				ve.Add("agent %q: escalation target %q is not a defined agent", a.ID, esc.Target)
			}
			if esc.Target == a.ID {
				ve.Add("agent %q: escalation target must not be the agent itself", a.ID)
			}
		}
	}
}

func validateCapabilities(cfg *Config, ve *ValidationError) {
	declared := make(map[string]bool)
	for i, c := range cfg.Capabilities {
		if !validCapabilities[c.Family] {
			ve.Add("capabilities[%d]: unknown family %q", i, c.Family)
			continue
		}
		if declared[c.Family] {
			ve.Add("capabilities[%d]: duplicate family %q", i, c.Family)
		}
		declared[c.Family] = true
		if c.BaseURL == "" {
			ve.Add("capability %q: base_url must not be empty", c.Family)
		}
		if _, err := ParseDuration(c.Timeout, 0); err != nil {
			ve.Add("capability %q: %v", c.Family, err)
		}
	}
	// Every capability an agent declares needs a configured endpoint.
	for _, a := range cfg.Agents {
		for _, c := range a.Capabilities {
			if validCapabilities[c] && !declared[c] {
				ve.Add("agent %q requires capability %q but no endpoint is configured", a.ID, c)
			}
		}
	}
}

func validateFallback(cfg *Config, ve *ValidationError) {
	if cfg.Fallback.ModelBinding == "" && cfg.Completion.DefaultBinding == "" {
		ve.Add("fallback.model_binding or completion.default_binding must be set")
	}
	if _, err := ParseDuration(cfg.Fallback.Timeout, 0); err != nil {
		ve.Add("fallback.timeout: %v", err)
	}
}

func validateSession(cfg *Config, ve *ValidationError) {
	switch cfg.Session.Store {
	case "memory":
	case "redis":
		if cfg.Session.RedisURL == "" {
			ve.Add("session.redis_url must be set when session.store is redis")
		}
	default:
		ve.Add("session.store must be \"memory\" or \"redis\", got %q", cfg.Session.Store)
	}
	if _, err := ParseDuration(cfg.Session.TTL, 0); err != nil {
		ve.Add("session.ttl: %v", err)
	}
}

func validateSweeps(cfg *Config, ve *ValidationError) {
	for i, s := range cfg.Sweeps {
		if s.Schedule == "" {
			ve.Add("sweeps[%d]: schedule must not be empty", i)
		}
		if s.Text == "" {
			ve.Add("sweeps[%d]: text must not be empty", i)
		}
	}
}
