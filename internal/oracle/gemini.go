package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider runs Google Gemini models through the genai SDK.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGeminiProvider creates a Gemini API client. baseURL overrides the API
// endpoint for proxies and tests.
func NewGeminiProvider(ctx context.Context, apiKey, model, baseURL string, maxTokens int) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("gemini model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	}
	// The OpenAI default base URL does not apply to Gemini.
	if u := strings.TrimSpace(baseURL); u != "" && !strings.Contains(u, "openai.com") {
		cc.HTTPOptions.BaseURL = u
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client, model: strings.TrimSpace(model), maxTokens: int32(maxTokens)}, nil
}

// Name implements Provider.
func (g *GeminiProvider) Name() string { return "gemini" }

// ChatComplete implements Provider.
func (g *GeminiProvider) ChatComplete(ctx context.Context, messages []Message) (string, error) {
	system, turns := splitSystem(messages)

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}

	cfg := &genai.GenerateContentConfig{
		CandidateCount:  1,
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: g.maxTokens,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", classifyGeminiErr(err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	return text, nil
}

// classifyGeminiErr marks quota and server failures as transient. The SDK
// does not retry content generation on its own.
func classifyGeminiErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return transient(fmt.Errorf("gemini transient error %d: %w", apiErr.Code, err), 0)
		}
	}
	return fmt.Errorf("gemini: %w", err)
}
