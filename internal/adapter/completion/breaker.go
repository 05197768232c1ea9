package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"devops-sentinel/internal/domain"
	"devops-sentinel/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerProvider wraps a CompletionProvider with circuit breaker protection.
// When the wrapped provider fails repeatedly, the circuit opens and later
// calls fail fast without reaching the provider, so a degraded completion
// backend cannot soak up the per-agent timeout budget of every invocation.
type BreakerProvider struct {
	inner   domain.CompletionProvider
	breaker *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

// NewBreakerProvider wraps inner with a circuit breaker configured from cfg.
// Zero-valued settings fall back to defaults.
func NewBreakerProvider(inner domain.CompletionProvider, cfg config.BreakerConfig, logger *slog.Logger) *BreakerProvider {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout, err := config.ParseDuration(cfg.Timeout, defaultCBTimeout)
	if err != nil {
		timeout = defaultCBTimeout
	}
	interval, err := config.ParseDuration(cfg.Interval, defaultCBInterval)
	if err != nil {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "completion:" + inner.Name(),
		MaxRequests: 1, // one probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &BreakerProvider{inner: inner, breaker: cb, logger: logger}
}

// Complete implements domain.CompletionProvider.
func (p *BreakerProvider) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	text, err := p.breaker.Execute(func() (string, error) {
		return p.inner.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: circuit open for %s", domain.ErrCompletion, p.inner.Name())
		}
		return "", err
	}
	return text, nil
}

// Name implements domain.CompletionProvider.
func (p *BreakerProvider) Name() string { return p.inner.Name() }
