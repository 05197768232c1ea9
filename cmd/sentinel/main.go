package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devops-sentinel/internal/adapter/capability"
	"devops-sentinel/internal/adapter/completion"
	"devops-sentinel/internal/adapter/gateway"
	"devops-sentinel/internal/adapter/runtime"
	"devops-sentinel/internal/adapter/sessionstore"
	"devops-sentinel/internal/domain"
	"devops-sentinel/internal/infra/config"
	"devops-sentinel/internal/infra/logger"
	"devops-sentinel/internal/infra/tracer"
	"devops-sentinel/internal/usecase"
	"devops-sentinel/internal/usecase/eventbus"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	bus := eventbus.New(log)
	defer bus.Close()

	provider, err := completion.NewBedrockProvider(cfg.Completion, log)
	if err != nil {
		return fmt.Errorf("completion: %w", err)
	}
	completer := completion.NewBreakerProvider(provider, cfg.Completion.Breaker, log)

	invoker, err := buildInvoker(cfg, completer, log)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg, log)
	if err != nil {
		return err
	}

	store, err := buildSessionStore(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}

	ceiling, err := config.ParseDuration(cfg.Orchestrator.RequestCeiling, 5*time.Minute)
	if err != nil {
		return fmt.Errorf("request ceiling: %w", err)
	}

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorParams{
		Classifier:  usecase.NewClassifier(registry, completer, cfg.Completion.DefaultBinding, cfg.Orchestrator.ConfidenceThreshold, log),
		Scheduler:   usecase.NewScheduler(registry, invoker, bus, cfg.Orchestrator.FanoutLimit, log),
		Coordinator: usecase.NewCoordinator(registry, cfg.Orchestrator.MaxEscalationDepth, bus, log),
		Aggregator:  usecase.NewAggregator(completer, cfg.Completion.DefaultBinding, log),
		Sessions:    usecase.NewSessionManager(store, cfg.Orchestrator.MaxHistory, log),
		Locker:      usecase.NewSessionLocker(),
		Registry:    registry,
		Bus:         bus,
		Logger:      log,
		MaxDepth:    cfg.Orchestrator.MaxEscalationDepth,
		Ceiling:     ceiling,
	})

	sweeper := usecase.NewSweeper(orchestrator, bus, log)
	for _, sweep := range cfg.Sweeps {
		if err := sweeper.Add(sweep); err != nil {
			return fmt.Errorf("sweep %q: %w", sweep.Name, err)
		}
	}
	sweeper.Start()
	defer sweeper.Stop()

	if !cfg.Gateway.Enabled {
		log.Info("gateway disabled, running sweeps only")
		<-ctx.Done()
		return nil
	}

	srv := gateway.NewServer(orchestrator, bus, cfg.Gateway.Addr, log)
	return srv.Start(ctx)
}

// buildInvoker wires the runtime adapter: one capability client per
// configured family, built lazily and shared through the client cache.
func buildInvoker(cfg *config.Config, completer domain.CompletionProvider, log *slog.Logger) (domain.AgentInvoker, error) {
	byFamily := make(map[string]config.CapabilityConfig, len(cfg.Capabilities))
	scopes := make(map[domain.Capability]string, len(cfg.Capabilities))
	for _, c := range cfg.Capabilities {
		byFamily[c.Family] = c
		scopes[domain.Capability(c.Family)] = c.Scope
	}

	cache := runtime.NewClientCache(func(service, _ string) (any, error) {
		c, ok := byFamily[service]
		if !ok {
			return nil, fmt.Errorf("no capability endpoint for family %q", service)
		}
		return capability.NewHTTPClient(c, log)
	})

	return runtime.New(completer, cache, scopes, log), nil
}

// buildRegistry loads agent descriptors from the definition source in
// declaration order and installs the completion-only fallback.
func buildRegistry(cfg *config.Config, log *slog.Logger) (*usecase.Registry, error) {
	registry := usecase.NewRegistry(log)
	for _, a := range cfg.Agents {
		desc, err := toDescriptor(a)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", a.ID, err)
		}
		if err := registry.Register(desc); err != nil {
			return nil, fmt.Errorf("agent %q: %w", a.ID, err)
		}
	}

	fallbackTimeout, err := config.ParseDuration(cfg.Fallback.Timeout, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("fallback timeout: %w", err)
	}
	binding := cfg.Fallback.ModelBinding
	if binding == "" {
		binding = cfg.Completion.DefaultBinding
	}
	registry.SetFallback(&domain.AgentDescriptor{
		ID:           "generic",
		Name:         "Generic Assistant",
		Description:  "completion-only fallback for unmatched requests",
		ModelBinding: binding,
		SystemPrompt: cfg.Fallback.SystemPrompt,
		Timeout:      fallbackTimeout,
	})
	return registry, nil
}

func toDescriptor(a config.AgentConfig) (*domain.AgentDescriptor, error) {
	timeout, err := config.ParseDuration(a.Timeout, 45*time.Second)
	if err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}

	caps := make([]domain.Capability, 0, len(a.Capabilities))
	for _, c := range a.Capabilities {
		caps = append(caps, domain.Capability(c))
	}
	rules := make([]domain.EscalationRule, 0, len(a.Escalations))
	for _, e := range a.Escalations {
		rules = append(rules, domain.EscalationRule{Flag: e.Flag, Target: e.Target, Reason: e.Reason})
	}

	return &domain.AgentDescriptor{
		ID:             a.ID,
		Name:           a.Name,
		Description:    a.Description,
		Capabilities:   caps,
		ModelBinding:   a.ModelBinding,
		SystemPrompt:   a.SystemPrompt,
		Temperature:    a.Temperature,
		MaxTokens:      a.MaxTokens,
		Timeout:        timeout,
		MaxConcurrency: a.MaxConcurrency,
		Keywords:       a.Keywords,
		Escalations:    rules,
		Metadata:       a.Metadata,
	}, nil
}

func buildSessionStore(ctx context.Context, cfg config.SessionConfig) (domain.SessionStore, error) {
	switch cfg.Store {
	case "", "memory":
		return sessionstore.NewMemory(), nil
	case "redis":
		ttl, err := config.ParseDuration(cfg.TTL, 24*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("session ttl: %w", err)
		}
		return sessionstore.NewRedis(ctx, cfg.RedisURL, ttl)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}
