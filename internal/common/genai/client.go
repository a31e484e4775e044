// Package genai talks to the text-completion service used to generate queries
// and narrate their results.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nlquery-agent/internal/common/config"
	"nlquery-agent/internal/common/logger"
)

var ErrCompletionUnavailable = errors.New("COMPLETION_UNAVAILABLE")

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Options are per-call model settings. A zero Model falls back to the client default.
type Options struct {
	Model       string
	Temperature float64
}

// Client returns the raw completion text for a prompt.
type Client interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, prompt string, opts Options) (string, error)

func (f ClientFunc) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}

// New builds the configured provider client, decorated with retries when max_retries > 0.
func New(cfg config.GenAIConfig, log logger.Logger) (Client, error) {
	timeout := config.GetDuration(cfg.Timeout)

	var base Client
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOllama:
		base = NewOllamaClient(cfg.BaseURL, cfg.Model, timeout)
	case ProviderOpenAI:
		c, err := NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Model, timeout)
		if err != nil {
			return nil, err
		}
		base = c
	default:
		return nil, fmt.Errorf("unknown genai provider %q", cfg.Provider)
	}

	if cfg.MaxRetries <= 0 {
		return base, nil
	}
	return NewRetryingClient(base, cfg.MaxRetries, config.GetDuration(cfg.RetryBaseDelay), log), nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrCompletionUnavailable, err)
}
