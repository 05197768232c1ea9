package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"devops-sentinel/internal/domain"
	"devops-sentinel/internal/infra/tracer"
)

// Keyword scoring: one hit clears the base, every extra hit adds a step,
// capped below 1 so a keyword match never reads as certainty.
const (
	keywordBaseConfidence = 0.55
	keywordStepConfidence = 0.15
	keywordMaxConfidence  = 0.95
	intentConfidence      = 0.6
)

// Candidate is one classifier pick: an agent and how confident the
// classifier is that it should handle the request.
type Candidate struct {
	AgentID    string
	Confidence float64
}

// Classifier maps a raw request to an ordered candidate list. Keyword
// scoring against the registry's capability keywords runs first; when it is
// inconclusive, a single completion-based intent pass runs as fallback.
// Classification has no side effects.
type Classifier struct {
	registry   *Registry
	completion domain.CompletionProvider
	binding    string // model binding for the intent pass
	threshold  float64
	logger     *slog.Logger
}

// NewClassifier creates a classifier. threshold is the minimum confidence a
// keyword candidate needs before the intent pass is skipped.
func NewClassifier(registry *Registry, completion domain.CompletionProvider, binding string, threshold float64, logger *slog.Logger) *Classifier {
	return &Classifier{
		registry:   registry,
		completion: completion,
		binding:    binding,
		threshold:  threshold,
		logger:     logger,
	}
}

// Classify returns candidates ordered by confidence, ties broken by
// declaration order in the registry. An empty result means no match and
// sends the caller down the generic fallback path.
func (c *Classifier) Classify(ctx context.Context, req *domain.Request, sctx *domain.SessionContext) []Candidate {
	ctx, span := tracer.StartSpan(ctx, "classifier.classify",
		trace.WithAttributes(tracer.StringAttr("request_id", req.ID)),
	)
	defer span.End()

	candidates := c.keywordPass(req.RawText)

	if len(candidates) > 0 && candidates[0].Confidence >= c.threshold {
		span.SetAttributes(tracer.IntAttr("candidates", len(candidates)))
		tracer.SetOK(span)
		return candidates
	}

	// Keyword scoring was inconclusive: one bounded intent round-trip.
	if intent := c.intentPass(ctx, req, sctx); intent != nil {
		tracer.SetOK(span)
		return []Candidate{*intent}
	}

	// Drop sub-threshold keyword candidates rather than dispatching agents
	// the classifier does not believe in; empty triggers the fallback.
	c.logger.Debug("classification inconclusive",
		"request_id", req.ID,
		"keyword_candidates", len(candidates),
	)
	span.SetAttributes(tracer.IntAttr("candidates", 0))
	tracer.SetOK(span)
	return nil
}

// keywordPass scores every registered agent by keyword hits in the request
// text. Agents with zero hits are excluded. The sort is stable, so equal
// confidences keep registry declaration order.
func (c *Classifier) keywordPass(text string) []Candidate {
	lowered := strings.ToLower(text)

	var candidates []Candidate
	for _, d := range c.registry.All() {
		hits := 0
		for _, kw := range d.Keywords {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		conf := keywordBaseConfidence + keywordStepConfidence*float64(hits-1)
		if conf > keywordMaxConfidence {
			conf = keywordMaxConfidence
		}
		candidates = append(candidates, Candidate{AgentID: d.ID, Confidence: conf})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates
}

// intentPass asks the completion collaborator to pick one agent. Returns
// nil when the call fails or no registered agent is named in the reply.
func (c *Classifier) intentPass(ctx context.Context, req *domain.Request, sctx *domain.SessionContext) *Candidate {
	agents := c.registry.All()
	if len(agents) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("Pick the single best-suited agent for the operator request below. ")
	b.WriteString("Reply with exactly one agent id from this list, or \"none\".\n\nAgents:\n")
	for _, d := range agents {
		fmt.Fprintf(&b, "- %s: %s\n", d.ID, d.Description)
	}
	if sctx != nil && len(sctx.History) > 0 {
		last := sctx.History[len(sctx.History)-1]
		fmt.Fprintf(&b, "\nPrevious request in this session: %s\n", last.RequestText)
	}
	fmt.Fprintf(&b, "\nRequest: %s\n", req.RawText)

	reply, err := c.completion.Complete(ctx, domain.CompletionRequest{
		ModelBinding: c.binding,
		Prompt:       b.String(),
		MaxTokens:    50,
	})
	if err != nil {
		c.logger.Warn("intent pass failed", "request_id", req.ID, "error", err)
		return nil
	}

	lowered := strings.ToLower(reply)
	for _, d := range agents {
		if strings.Contains(lowered, strings.ToLower(d.ID)) {
			c.logger.Debug("intent pass matched agent", "request_id", req.ID, "agent_id", d.ID)
			return &Candidate{AgentID: d.ID, Confidence: intentConfidence}
		}
	}
	return nil
}
