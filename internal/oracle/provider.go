// Package oracle is the classification gateway in front of the external
// inference service. Every call shares one sliding-window budget, and every
// capability returns a well-formed result even when the model misbehaves.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/config"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrOracleUnavailable is returned when no provider is configured or the
	// provider call failed.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrNoJSON is returned when no structured payload can be recovered from
	// a model response.
	ErrNoJSON = errors.New("no json in model response")
)

// TransientError marks a provider failure that another attempt may fix,
// such as throttling or a 5xx. Providers make a single attempt; the gateway
// decides whether to retry.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

func transient(err error, retryAfter time.Duration) error {
	return &TransientError{Err: err, RetryAfter: retryAfter}
}

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the raw inference capability: prompt messages in, model text out.
type Provider interface {
	Name() string
	ChatComplete(ctx context.Context, messages []Message) (string, error)
}

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.OracleConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("oracle: openai provider requires an api key")
		}
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	case "bedrock":
		return NewBedrockProvider(ctx, cfg.Region, cfg.Model, cfg.MaxTokens)
	case "gemini":
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("oracle: unknown provider %q", cfg.Provider)
	}
}

// splitSystem separates the system prompt from the conversation turns, for
// providers that take it as a separate field.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}
