package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggerConfig holds structured logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, noop
}

// GatewayConfig holds the websocket transport settings.
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // e.g. "127.0.0.1:8700"
}

// CompletionConfig configures the AI completion provider.
type CompletionConfig struct {
	Provider       string `yaml:"provider"` // "bedrock"
	Region         string `yaml:"region"`
	DefaultBinding string `yaml:"default_binding"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the completion circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32 `yaml:"max_failures"` // consecutive failures before the circuit opens
	Timeout     string `yaml:"timeout"`      // open-state duration, e.g. "30s"
	Interval    string `yaml:"interval"`     // closed-state failure-count reset period
}

// CapabilityConfig configures one cloud capability family endpoint.
type CapabilityConfig struct {
	Family     string  `yaml:"family"` // monitoring, cost, deployment, cluster
	BaseURL    string  `yaml:"base_url"`
	Scope      string  `yaml:"scope"` // credentials scope, e.g. subscription id
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
	Timeout    string  `yaml:"timeout"` // per-call HTTP timeout
}

// AgentConfig defines one agent in the definition source. Declaration order
// is significant: classifier ties are broken by it.
type AgentConfig struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	Description    string            `yaml:"description"`
	Capabilities   []string          `yaml:"capabilities,omitempty"`
	ModelBinding   string            `yaml:"model_binding"`
	SystemPrompt   string            `yaml:"system_prompt"`
	Temperature    float64           `yaml:"temperature"`
	MaxTokens      int               `yaml:"max_tokens"`
	Timeout        string            `yaml:"timeout"` // duration string, e.g. "45s"
	MaxConcurrency int               `yaml:"max_concurrency"`
	Keywords       []string          `yaml:"keywords,omitempty"`
	Escalations    []EscalationConfig `yaml:"escalations,omitempty"`
	Metadata       map[string]string `yaml:"metadata,omitempty"`
}

// EscalationConfig is one declarative escalation rule on an agent.
type EscalationConfig struct {
	Flag   string `yaml:"flag,omitempty"`
	Target string `yaml:"target"`
	Reason string `yaml:"reason"`
}

// OrchestratorConfig holds the orchestration core settings.
type OrchestratorConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // below this, the intent pass runs
	FanoutLimit         int     `yaml:"fanout_limit"`         // 0 = candidate-list length
	MaxEscalationDepth  int     `yaml:"max_escalation_depth"`
	RequestCeiling      string  `yaml:"request_ceiling"` // outer timeout ceiling, e.g. "5m"
	MaxHistory          int     `yaml:"max_history"`     // session history bound
}

// FallbackConfig configures the always-available completion-only fallback.
type FallbackConfig struct {
	ModelBinding string `yaml:"model_binding"`
	SystemPrompt string `yaml:"system_prompt"`
	Timeout      string `yaml:"timeout"`
}

// SessionConfig configures the session context store.
type SessionConfig struct {
	Store    string `yaml:"store"`     // "memory" or "redis"
	RedisURL string `yaml:"redis_url"` // e.g. "redis://localhost:6379/0"
	TTL      string `yaml:"ttl"`       // redis key TTL, e.g. "24h"
}

// SweepConfig is one recurring synthetic request injected by the sweeper.
type SweepConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression or duration string
	Text     string `yaml:"text"`
	Session  string `yaml:"session"` // target session id (default "sweep")
}

// Config is the top-level application configuration.
type Config struct {
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Completion   CompletionConfig   `yaml:"completion"`
	Capabilities []CapabilityConfig `yaml:"capabilities"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Fallback     FallbackConfig     `yaml:"fallback"`
	Session      SessionConfig      `yaml:"session"`
	Agents       []AgentConfig      `yaml:"agents"`
	Sweeps       []SweepConfig      `yaml:"sweeps,omitempty"`
}

// Load reads, env-expands, parses, applies defaults to, and validates the
// configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "text"
	}
	if cfg.Logger.Output == "" {
		cfg.Logger.Output = "stderr"
	}
	if cfg.Completion.Provider == "" {
		cfg.Completion.Provider = "bedrock"
	}
	if cfg.Orchestrator.ConfidenceThreshold == 0 {
		cfg.Orchestrator.ConfidenceThreshold = 0.5
	}
	if cfg.Orchestrator.MaxEscalationDepth == 0 {
		cfg.Orchestrator.MaxEscalationDepth = 3
	}
	if cfg.Orchestrator.RequestCeiling == "" {
		cfg.Orchestrator.RequestCeiling = "5m"
	}
	if cfg.Orchestrator.MaxHistory == 0 {
		cfg.Orchestrator.MaxHistory = 20
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = "memory"
	}
	if cfg.Session.TTL == "" {
		cfg.Session.TTL = "24h"
	}
	if cfg.Fallback.Timeout == "" {
		cfg.Fallback.Timeout = "30s"
	}
	for i := range cfg.Agents {
		if cfg.Agents[i].Timeout == "" {
			cfg.Agents[i].Timeout = "45s"
		}
		if cfg.Agents[i].MaxConcurrency == 0 {
			cfg.Agents[i].MaxConcurrency = 4
		}
		if cfg.Agents[i].MaxTokens == 0 {
			cfg.Agents[i].MaxTokens = 2000
		}
	}
	for i := range cfg.Capabilities {
		if cfg.Capabilities[i].RatePerSec == 0 {
			cfg.Capabilities[i].RatePerSec = 5
		}
		if cfg.Capabilities[i].Burst == 0 {
			cfg.Capabilities[i].Burst = 10
		}
		if cfg.Capabilities[i].Timeout == "" {
			cfg.Capabilities[i].Timeout = "15s"
		}
	}
	for i := range cfg.Sweeps {
		if cfg.Sweeps[i].Session == "" {
			cfg.Sweeps[i].Session = "sweep"
		}
	}
}

// ParseDuration parses a duration string, returning fallback when s is empty.
func ParseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
