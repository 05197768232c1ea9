package completion

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"devops-sentinel/internal/domain"
)

type fakeConverse struct {
	lastInput *bedrockruntime.ConverseInput
	text      string
	err       error
}

func (f *fakeConverse) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastInput = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role: types.ConversationRoleAssistant,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: f.text},
				},
			},
		},
	}, nil
}

func TestCompleteUsesRequestBinding(t *testing.T) {
	fake := &fakeConverse{text: "all healthy"}
	p := newBedrockProviderWithClient("default-model", fake, slog.Default())

	text, err := p.Complete(context.Background(), domain.CompletionRequest{
		ModelBinding: "anthropic.claude-3-sonnet",
		System:       "You are an infrastructure monitor.",
		Prompt:       "Summarize cluster state",
		Temperature:  0.3,
		MaxTokens:    500,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "all healthy" {
		t.Errorf("text = %q", text)
	}
	if got := aws.ToString(fake.lastInput.ModelId); got != "anthropic.claude-3-sonnet" {
		t.Errorf("ModelId = %q", got)
	}
	if fake.lastInput.System == nil {
		t.Error("system prompt not forwarded")
	}
	if got := aws.ToInt32(fake.lastInput.InferenceConfig.MaxTokens); got != 500 {
		t.Errorf("MaxTokens = %d", got)
	}
}

func TestCompleteDefaultBinding(t *testing.T) {
	fake := &fakeConverse{text: "ok"}
	p := newBedrockProviderWithClient("default-model", fake, slog.Default())

	if _, err := p.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := aws.ToString(fake.lastInput.ModelId); got != "default-model" {
		t.Errorf("ModelId = %q, want default-model", got)
	}
}

type stubAPIError struct{ code string }

func (e *stubAPIError) Error() string                 { return e.code }
func (e *stubAPIError) ErrorCode() string             { return e.code }
func (e *stubAPIError) ErrorMessage() string          { return e.code }
func (e *stubAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestCompleteErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"throttle", &stubAPIError{code: "ThrottlingException"}, domain.ErrRateLimit},
		{"missing model", &stubAPIError{code: "ResourceNotFoundException"}, domain.ErrAgentUnavailable},
		{"generic", errors.New("connection reset"), domain.ErrCompletion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newBedrockProviderWithClient("m", &fakeConverse{err: tt.err}, slog.Default())
			_, err := p.Complete(context.Background(), domain.CompletionRequest{Prompt: "x"})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want sentinel %v", err, tt.want)
			}
		})
	}
}
