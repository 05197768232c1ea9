package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/trace"

	"devops-sentinel/internal/domain"
	"devops-sentinel/internal/infra/config"
	"devops-sentinel/internal/infra/tracer"
)

// converseAPI abstracts the Bedrock runtime method for testability.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements domain.CompletionProvider via the AWS Bedrock
// Converse API. The model binding of each request selects the model, so one
// provider serves every agent.
type BedrockProvider struct {
	defaultBinding string
	client         converseAPI
	logger         *slog.Logger
}

// NewBedrockProvider creates a Bedrock provider using the default AWS
// credential chain.
func NewBedrockProvider(cfg config.CompletionConfig, logger *slog.Logger) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &BedrockProvider{
		defaultBinding: cfg.DefaultBinding,
		client:         bedrockruntime.NewFromConfig(awsCfg),
		logger:         logger,
	}, nil
}

// newBedrockProviderWithClient creates a BedrockProvider with an injected
// client (for testing).
func newBedrockProviderWithClient(defaultBinding string, client converseAPI, logger *slog.Logger) *BedrockProvider {
	return &BedrockProvider{defaultBinding: defaultBinding, client: client, logger: logger}
}

// Complete implements domain.CompletionProvider.
func (p *BedrockProvider) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	binding := req.ModelBinding
	if binding == "" {
		binding = p.defaultBinding
	}

	ctx, span := tracer.StartSpan(ctx, "completion.complete",
		trace.WithAttributes(tracer.StringAttr("completion.binding", binding)),
	)
	defer span.End()

	output, err := p.client.Converse(ctx, toConverseInput(binding, req))
	if err != nil {
		mapped := mapBedrockError(err)
		tracer.RecordError(span, mapped)
		return "", mapped
	}

	text := fromConverseOutput(output)
	tracer.SetOK(span)
	p.logger.Debug("completion finished",
		"binding", binding,
		"chars", len(text),
	)
	return text, nil
}

// Name implements domain.CompletionProvider.
func (p *BedrockProvider) Name() string { return "bedrock" }

func toConverseInput(binding string, req domain.CompletionRequest) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(binding),
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: req.Prompt},
			},
		}},
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	input.InferenceConfig = &types.InferenceConfiguration{
		MaxTokens: aws.Int32(int32(maxTokens)),
	}
	if req.Temperature > 0 {
		input.InferenceConfig.Temperature = aws.Float32(float32(req.Temperature))
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}

	return input
}

func fromConverseOutput(output *bedrockruntime.ConverseOutput) string {
	outMsg, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	for _, block := range outMsg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			return text.Value
		}
	}
	return ""
}

func mapBedrockError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return fmt.Errorf("%w: %s", domain.ErrRateLimit, err)
		case "ResourceNotFoundException":
			return fmt.Errorf("%w: %s", domain.ErrAgentUnavailable, err)
		}
	}

	return fmt.Errorf("%w: %s", domain.ErrCompletion, err)
}
