package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"devops-sentinel/internal/domain"
	"devops-sentinel/internal/infra/config"
)

// HTTPClient is a cloud capability client speaking JSON over HTTP to one
// capability family endpoint (monitoring, cost, deployment, cluster).
// Calls are rate limited so a single misbehaving invocation cannot storm
// the cloud API.
type HTTPClient struct {
	family  domain.Capability
	baseURL string
	scope   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHTTPClient builds a capability client from its endpoint config.
func NewHTTPClient(cfg config.CapabilityConfig, logger *slog.Logger) (*HTTPClient, error) {
	timeout, err := config.ParseDuration(cfg.Timeout, 15*time.Second)
	if err != nil {
		return nil, domain.WrapOp("capability.NewHTTPClient", err)
	}
	return &HTTPClient{
		family:  domain.Capability(cfg.Family),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		scope:   cfg.Scope,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		logger:  logger,
	}, nil
}

// Family implements domain.CapabilityClient.
func (c *HTTPClient) Family() domain.Capability { return c.family }

type callEnvelope struct {
	Action string         `json:"action"`
	Scope  string         `json:"scope,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Call implements domain.CapabilityClient. It posts one action to the
// family endpoint and decodes the structured response body.
func (c *HTTPClient) Call(ctx context.Context, call domain.CapabilityCall) (map[string]any, error) {
	if call.Capability != "" && call.Capability != c.family {
		return nil, domain.NewDomainError("capability.Call", domain.ErrInvalidInput,
			fmt.Sprintf("client serves %s, call targets %s", c.family, call.Capability))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s limiter: %s", domain.ErrRateLimit, c.family, err)
	}

	body, err := json.Marshal(callEnvelope{Action: call.Action, Scope: c.scope, Params: call.Params})
	if err != nil {
		return nil, domain.WrapOp("capability.Call", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, call.Action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, domain.WrapOp("capability.Call", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s/%s: %s", domain.ErrAgentTimeout, c.family, call.Action, err)
		}
		return nil, fmt.Errorf("%w: %s/%s: %s", domain.ErrCapability, c.family, call.Action, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("capability call",
		"family", string(c.family),
		"action", call.Action,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	if err := mapStatus(resp.StatusCode, c.family, call.Action); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %s", domain.ErrCapability, err)
	}

	result := make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("%w: decode body: %s", domain.ErrCapability, err)
		}
	}
	return result, nil
}

func mapStatus(status int, family domain.Capability, action string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s/%s", domain.ErrRateLimit, family, action)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s/%s: no such action", domain.ErrAgentUnavailable, family, action)
	default:
		return fmt.Errorf("%w: %s/%s: status %d", domain.ErrCapability, family, action, status)
	}
}
