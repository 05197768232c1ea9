package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"devops-sentinel/internal/domain"
)

func newTestClassifier(r *Registry, completion domain.CompletionProvider) *Classifier {
	return NewClassifier(r, completion, "test-model", 0.5, testLogger())
}

func testRequest(text string) *domain.Request {
	return &domain.Request{ID: "req-1", SessionID: "s1", RawText: text, ReceivedAt: time.Now()}
}

func TestClassifyKeywordScoring(t *testing.T) {
	r := buildRegistry(
		testDescriptor("infrastructure_monitor", []string{"health", "cpu", "alert"}),
		testDescriptor("cost_optimizer", []string{"cost", "spend"}),
	)
	c := newTestClassifier(r, &fakeCompletion{})

	got := c.Classify(context.Background(), testRequest("why is CPU high, any alert on health?"), nil)
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	if got[0].AgentID != "infrastructure_monitor" {
		t.Errorf("agent = %q", got[0].AgentID)
	}
	// Three keyword hits: base plus two steps.
	if got[0].Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", got[0].Confidence)
	}
}

func TestClassifyConfidenceCap(t *testing.T) {
	r := buildRegistry(
		testDescriptor("infrastructure_monitor", []string{"health", "cpu", "alert", "memory", "disk", "uptime"}),
	)
	c := newTestClassifier(r, &fakeCompletion{})

	got := c.Classify(context.Background(), testRequest("health cpu alert memory disk uptime"), nil)
	if len(got) != 1 || got[0].Confidence != keywordMaxConfidence {
		t.Fatalf("got %+v, want one candidate capped at %v", got, keywordMaxConfidence)
	}
}

func TestClassifyOrderingAndTies(t *testing.T) {
	r := buildRegistry(
		testDescriptor("cost_optimizer", []string{"cost"}),
		testDescriptor("deployment_manager", []string{"deploy", "rollout"}),
		testDescriptor("infrastructure_monitor", []string{"health"}),
	)
	c := newTestClassifier(r, &fakeCompletion{})

	got := c.Classify(context.Background(), testRequest("deploy cost check: health of the rollout"), nil)
	if len(got) != 3 {
		t.Fatalf("candidates = %d, want 3", len(got))
	}
	// Two hits beats one hit; the two one-hit agents keep declaration order.
	if got[0].AgentID != "deployment_manager" {
		t.Errorf("first = %q, want deployment_manager", got[0].AgentID)
	}
	if got[1].AgentID != "cost_optimizer" || got[2].AgentID != "infrastructure_monitor" {
		t.Errorf("tie order = %q, %q", got[1].AgentID, got[2].AgentID)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	r := buildRegistry(
		testDescriptor("cost_optimizer", []string{"cost"}),
		testDescriptor("infrastructure_monitor", []string{"health"}),
	)
	c := newTestClassifier(r, &fakeCompletion{})
	req := testRequest("cost and health please")

	first := c.Classify(context.Background(), req, nil)
	second := c.Classify(context.Background(), req, nil)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("classification not deterministic: %+v vs %+v", first, second)
	}
}

func TestClassifyIntentPass(t *testing.T) {
	r := buildRegistry(
		testDescriptor("rca_analyzer", nil),
		testDescriptor("cost_optimizer", []string{"cost"}),
	)
	completion := &fakeCompletion{reply: "rca_analyzer"}
	c := newTestClassifier(r, completion)

	got := c.Classify(context.Background(), testRequest("something is broken, figure out why"), nil)
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	if got[0].AgentID != "rca_analyzer" || got[0].Confidence != intentConfidence {
		t.Errorf("got %+v", got[0])
	}
	if completion.callCount() != 1 {
		t.Errorf("completion calls = %d, want 1", completion.callCount())
	}
}

func TestClassifyIntentPassSkippedWhenKeywordsConfident(t *testing.T) {
	r := buildRegistry(testDescriptor("cost_optimizer", []string{"cost"}))
	completion := &fakeCompletion{reply: "cost_optimizer"}
	c := newTestClassifier(r, completion)

	c.Classify(context.Background(), testRequest("what does this cost"), nil)
	if completion.callCount() != 0 {
		t.Errorf("completion calls = %d, want 0", completion.callCount())
	}
}

func TestClassifyEmptyOnNoMatch(t *testing.T) {
	r := buildRegistry(testDescriptor("cost_optimizer", []string{"cost"}))

	tests := []struct {
		name       string
		completion *fakeCompletion
	}{
		{"intent says none", &fakeCompletion{reply: "none"}},
		{"intent fails", &fakeCompletion{err: errors.New("model unavailable")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(r, tt.completion)
			got := c.Classify(context.Background(), testRequest("hello there"), nil)
			if len(got) != 0 {
				t.Errorf("candidates = %+v, want empty", got)
			}
		})
	}
}

func TestClassifyIntentUsesHistory(t *testing.T) {
	r := buildRegistry(testDescriptor("deployment_manager", nil))
	completion := &fakeCompletion{reply: "deployment_manager"}
	c := newTestClassifier(r, completion)

	sctx := &domain.SessionContext{SessionID: "s1"}
	sctx.Append(domain.Exchange{RequestText: "deploy v2 to staging", At: time.Now()}, 10)

	got := c.Classify(context.Background(), testRequest("and to prod too"), sctx)
	if len(got) != 1 || got[0].AgentID != "deployment_manager" {
		t.Fatalf("got %+v", got)
	}
}
