package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"devops-sentinel/internal/domain"
)

const synthesisSystemPrompt = `You are the response compositor of a cloud operations assistant. Given the operator's request and the findings of one or more specialist agents, write a single coherent answer. Lead with the direct answer, then supporting detail. Mention degraded or failed agents briefly at the end. Output only the answer.`

// synthesisTimeout bounds the single prose-synthesis completion call so a
// slow model cannot stall an otherwise finished request.
const synthesisTimeout = 30 * time.Second

const summaryLimit = 200

// Aggregator merges all terminal invocations of one request into a single
// response. The synthesized prose may use one bounded completion call;
// when that fails the aggregator falls back to templated concatenation
// rather than failing the response.
type Aggregator struct {
	completion domain.CompletionProvider
	binding    string
	logger     *slog.Logger
}

// NewAggregator creates an aggregator using the given model binding for
// prose synthesis.
func NewAggregator(completion domain.CompletionProvider, binding string, logger *slog.Logger) *Aggregator {
	return &Aggregator{completion: completion, binding: binding, logger: logger}
}

// Aggregate builds the terminal response for the request. The response
// text is never empty, whatever happened to the invocations.
func (a *Aggregator) Aggregate(ctx context.Context, req *domain.Request, invocations []*domain.Invocation) *domain.AggregatedResponse {
	ordered := orderInvocations(invocations)

	resp := &domain.AggregatedResponse{
		SessionID:     req.SessionID,
		RequestID:     req.ID,
		OverallStatus: overallStatus(ordered),
		Results:       summarize(ordered),
	}
	resp.Text = a.synthesize(ctx, req, ordered, resp.OverallStatus)
	return resp
}

// overallStatus: Complete iff every invocation succeeded, Failed iff none
// did, Degraded otherwise. An empty set is Failed.
func overallStatus(invocations []*domain.Invocation) domain.OverallStatus {
	succeeded, finished := 0, 0
	for _, inv := range invocations {
		finished++
		if inv.State == domain.StateSucceeded {
			succeeded++
		}
	}
	switch {
	case finished > 0 && succeeded == finished:
		return domain.StatusComplete
	case succeeded > 0:
		return domain.StatusDegraded
	default:
		return domain.StatusFailed
	}
}

// orderInvocations imposes the response ordering: direct results first in
// classifier-confidence order, escalated results appended in escalation
// order. Ties preserve dispatch submission order.
func orderInvocations(invocations []*domain.Invocation) []*domain.Invocation {
	var direct, escalated []*domain.Invocation
	for _, inv := range invocations {
		if inv.Escalated() {
			escalated = append(escalated, inv)
		} else {
			direct = append(direct, inv)
		}
	}

	sort.SliceStable(direct, func(i, j int) bool {
		if direct[i].Confidence != direct[j].Confidence {
			return direct[i].Confidence > direct[j].Confidence
		}
		return direct[i].Seq < direct[j].Seq
	})
	sort.SliceStable(escalated, func(i, j int) bool {
		return escalated[i].Seq < escalated[j].Seq
	})

	return append(direct, escalated...)
}

func summarize(invocations []*domain.Invocation) []domain.InvocationSummary {
	summaries := make([]domain.InvocationSummary, 0, len(invocations))
	for _, inv := range invocations {
		summary := ""
		switch {
		case inv.Result != nil:
			summary = truncate(inv.Result.Text, summaryLimit)
		case inv.Err != nil:
			summary = truncate(inv.Err.Error(), summaryLimit)
		}
		summaries = append(summaries, domain.InvocationSummary{
			AgentID: inv.AgentID,
			Status:  inv.State.String(),
			Summary: summary,
		})
	}
	return summaries
}

func (a *Aggregator) synthesize(ctx context.Context, req *domain.Request, ordered []*domain.Invocation, status domain.OverallStatus) string {
	succeeded := collectSucceeded(ordered)
	if len(succeeded) == 0 {
		return apologyText(req, ordered)
	}

	// Single result with nothing degraded around it needs no compositor.
	if len(succeeded) == 1 && status == domain.StatusComplete && len(ordered) == 1 {
		return succeeded[0].Result.Text
	}

	sctx, cancel := context.WithTimeout(ctx, synthesisTimeout)
	defer cancel()

	text, err := a.completion.Complete(sctx, domain.CompletionRequest{
		ModelBinding: a.binding,
		System:       synthesisSystemPrompt,
		Prompt:       synthesisPrompt(req, ordered),
	})
	if err != nil || strings.TrimSpace(text) == "" {
		a.logger.Warn("synthesis call failed, using templated response",
			"request_id", req.ID,
			"error", err,
		)
		return templatedText(req, ordered)
	}
	return text
}

func collectSucceeded(invocations []*domain.Invocation) []*domain.Invocation {
	var out []*domain.Invocation
	for _, inv := range invocations {
		if inv.State == domain.StateSucceeded && inv.Result != nil {
			out = append(out, inv)
		}
	}
	return out
}

func synthesisPrompt(req *domain.Request, ordered []*domain.Invocation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Operator request: %s\n\nAgent findings:\n", req.RawText)
	for _, inv := range ordered {
		fmt.Fprintf(&b, "\n[%s] (%s)", inv.AgentID, inv.State)
		if inv.Reason != "" {
			fmt.Fprintf(&b, " escalated: %s", inv.Reason)
		}
		b.WriteString("\n")
		switch {
		case inv.Result != nil:
			b.WriteString(inv.Result.Text)
		case inv.Err != nil:
			b.WriteString(inv.Err.Error())
		}
		b.WriteString("\n")
	}
	return b.String()
}

// templatedText is the degraded synthesis path: plain concatenation of the
// ordered results.
func templatedText(req *domain.Request, ordered []*domain.Invocation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Results for: %s\n", req.RawText)
	for _, inv := range ordered {
		fmt.Fprintf(&b, "\n== %s (%s) ==\n", inv.AgentID, inv.State)
		switch {
		case inv.Result != nil:
			b.WriteString(inv.Result.Text)
			b.WriteString("\n")
		case inv.Err != nil:
			fmt.Fprintf(&b, "error: %s\n", inv.Err)
		}
	}
	return b.String()
}

// apologyText covers the no-success case; the response must still carry a
// best-effort explanation.
func apologyText(req *domain.Request, ordered []*domain.Invocation) string {
	var b strings.Builder
	b.WriteString("I could not complete this request: ")
	if len(ordered) == 0 {
		b.WriteString("no agent was available to handle it.")
	} else {
		parts := make([]string, 0, len(ordered))
		for _, inv := range ordered {
			parts = append(parts, fmt.Sprintf("%s %s", inv.AgentID, inv.State))
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString(".")
	}
	b.WriteString(" Please retry, or narrow the request.")
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
