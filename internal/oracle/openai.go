package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/httpretry"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient httpretry.HTTPDoer
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIProvider creates a provider that makes one HTTP attempt per call.
func NewOpenAIProvider(baseURL, apiKey, model string, maxTokens int) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient replaces the HTTP client.
func (o *OpenAIProvider) WithHTTPClient(c httpretry.HTTPDoer) *OpenAIProvider {
	o.httpClient = c
	return o
}

// Name implements Provider.
func (o *OpenAIProvider) Name() string { return "openai" }

// ChatComplete implements Provider.
func (o *OpenAIProvider) ChatComplete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(openAIRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("openai request: %w", err)
		}
		return "", transient(fmt.Errorf("openai request: %w", err), 0)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transient(fmt.Errorf("read response: %w", err), 0)
	}

	var out openAIResponse
	err = json.Unmarshal(raw, &out)
	switch {
	case err != nil:
		err = fmt.Errorf("openai status %d: unparseable body", resp.StatusCode)
	case out.Error != nil:
		err = fmt.Errorf("openai error (%s): %s", out.Error.Type, out.Error.Message)
	case resp.StatusCode != http.StatusOK:
		err = fmt.Errorf("openai status %d", resp.StatusCode)
	case len(out.Choices) == 0:
		err = fmt.Errorf("openai returned no choices")
	default:
		return out.Choices[0].Message.Content, nil
	}
	if httpretry.IsRetryableStatus(resp.StatusCode) {
		return "", transient(err, httpretry.ParseRetryAfter(resp.Header.Get("Retry-After")))
	}
	return "", err
}
