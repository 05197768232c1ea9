package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalYAML = `
completion:
  region: us-east-1
  default_binding: anthropic.claude-3-haiku
capabilities:
  - family: monitoring
    base_url: https://cloud.internal/monitoring
agents:
  - id: infrastructure_monitor
    name: Infrastructure Monitor
    model_binding: anthropic.claude-3-haiku
    capabilities: [monitoring]
    keywords: [health, monitor, status]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("default logger level = %q, want info", cfg.Logger.Level)
	}
	if cfg.Orchestrator.ConfidenceThreshold != 0.5 {
		t.Errorf("default threshold = %v, want 0.5", cfg.Orchestrator.ConfidenceThreshold)
	}
	if cfg.Orchestrator.MaxEscalationDepth != 3 {
		t.Errorf("default max depth = %d, want 3", cfg.Orchestrator.MaxEscalationDepth)
	}
	if cfg.Agents[0].Timeout != "45s" {
		t.Errorf("default agent timeout = %q, want 45s", cfg.Agents[0].Timeout)
	}
	if cfg.Session.Store != "memory" {
		t.Errorf("default session store = %q, want memory", cfg.Session.Store)
	}
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("SENTINEL_TEST_BINDING", "anthropic.claude-3-sonnet")
	yaml := strings.Replace(minimalYAML,
		"default_binding: anthropic.claude-3-haiku",
		"default_binding: ${SENTINEL_TEST_BINDING}", 1)
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Completion.DefaultBinding != "anthropic.claude-3-sonnet" {
		t.Errorf("env expansion failed: %q", cfg.Completion.DefaultBinding)
	}
}

func TestValidateRejectsBadAgent(t *testing.T) {
	yaml := `
completion:
  default_binding: b
agents:
  - id: a1
    model_binding: m
    timeout: nonsense
    capabilities: [teleportation]
    escalations:
      - target: a1
        reason: self loop
`
	_, err := Load(writeConfig(t, yaml))
	if err == nil {
		t.Fatal("expected validation error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	msg := ve.Error()
	for _, want := range []string{"invalid timeout", "unknown capability", "must not be the agent itself"} {
		if !strings.Contains(msg, want) {
			t.Errorf("validation message missing %q:\n%s", want, msg)
		}
	}
}

func TestValidateEscalationTargetMustExist(t *testing.T) {
	yaml := `
completion:
  default_binding: b
agents:
  - id: infrastructure_monitor
    model_binding: m
    escalations:
      - target: rca_analyzer
        reason: anomaly follow-up
`
	_, err := Load(writeConfig(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "is not a defined agent") {
		t.Errorf("expected undefined-target error, got %v", err)
	}
}

func TestValidateCapabilityEndpointRequired(t *testing.T) {
	yaml := `
completion:
  default_binding: b
agents:
  - id: cost_optimizer
    model_binding: m
    capabilities: [cost]
`
	_, err := Load(writeConfig(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "no endpoint is configured") {
		t.Errorf("expected missing-endpoint error, got %v", err)
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("", 42)
	if err != nil || d != 42 {
		t.Errorf("empty duration: got %v, %v", d, err)
	}
	if _, err := ParseDuration("bogus", 0); err == nil {
		t.Error("expected error for bogus duration")
	}
}
