package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// BedrockInvoker is the slice of the Bedrock runtime client the provider uses.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider runs Claude models on AWS Bedrock.
type BedrockProvider struct {
	client    BedrockInvoker
	modelID   string
	maxTokens int
}

type bedrockBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockMessage struct {
	Role    string         `json:"role"`
	Content []bedrockBlock `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature"`
}

type bedrockResponse struct {
	Content    []bedrockBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// bedrockRetryables is the SDK's own notion of a transient failure.
var bedrockRetryables = retry.IsErrorRetryables(retry.DefaultRetryables)

// NewBedrockProvider loads the default AWS configuration for region. The
// SDK retryer is disabled so each call is exactly one request.
func NewBedrockProvider(ctx context.Context, region, modelID string, maxTokens int) (*BedrockProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewBedrockProviderWithClient(bedrockruntime.NewFromConfig(cfg), modelID, maxTokens), nil
}

// NewBedrockProviderWithClient wraps an existing invoker.
func NewBedrockProviderWithClient(client BedrockInvoker, modelID string, maxTokens int) *BedrockProvider {
	if modelID == "" {
		modelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &BedrockProvider{client: client, modelID: modelID, maxTokens: maxTokens}
}

// Name implements Provider.
func (b *BedrockProvider) Name() string { return "bedrock" }

// ChatComplete implements Provider.
func (b *BedrockProvider) ChatComplete(ctx context.Context, messages []Message) (string, error) {
	system, turns := splitSystem(messages)
	req := bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        b.maxTokens,
		System:           system,
	}
	for _, m := range turns {
		role := m.Role
		if role != RoleAssistant {
			role = RoleUser
		}
		req.Messages = append(req.Messages, bedrockMessage{
			Role:    role,
			Content: []bedrockBlock{{Type: "text", Text: m.Content}},
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		err = fmt.Errorf("bedrock invoke: %w", err)
		if bedrockRetryables.IsErrorRetryable(err) == aws.TrueTernary {
			return "", transient(err, 0)
		}
		return "", err
	}

	var resp bedrockResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	var text string
	for _, c := range resp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("bedrock returned no text (stop_reason=%s)", resp.StopReason)
	}
	return text, nil
}
