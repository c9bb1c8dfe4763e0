// Package llm provides the model client used by the model-assisted
// collaborators: booking extraction, case analysis and vehicle
// classification.
//
// Every provider implements Completer. Callers own the deadline; clients
// retry transient failures (transport errors, HTTP 429, 5xx) with
// exponential backoff until the context expires or retries run out.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Completer sends a system prompt and a user prompt to a model and
// returns the raw text reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Provider names.
const (
	ProviderDisabled   = "disabled"
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderCompatible = "compatible"
)

var (
	// ErrNoProvider is returned when no model provider is configured.
	ErrNoProvider = errors.New("no model provider configured")

	// ErrEmptyResponse is returned when the model replied with no content.
	ErrEmptyResponse = errors.New("empty response from model")

	// ErrTruncated is returned when the reply hit the token limit, which
	// leaves JSON replies unparseable.
	ErrTruncated = errors.New("model reply truncated at token limit")
)

// Config selects and configures a provider.
type Config struct {
	Provider      string
	Model         string
	APIKey        string `json:"-"`
	BaseURL       string
	Timeout       time.Duration
	RatePerMinute int
	MaxRetries    int
}

// Default configuration values.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 1024
	defaultTimeout          = 30 * time.Second
	defaultMaxRetries       = 2
	defaultBaseBackoff      = 500 * time.Millisecond
	defaultRatePerMinute    = 50
	defaultBurst            = 5
	defaultTemperature      = 0.1
)

// New returns the Completer for cfg.Provider. The disabled provider
// yields ErrNoProvider so callers can wire a nil collaborator.
func New(cfg Config) (Completer, error) {
	switch cfg.Provider {
	case "", ProviderDisabled:
		return nil, ErrNoProvider
	case ProviderAnthropic:
		c, err := NewAnthropic(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderOpenAI:
		c, err := NewOpenAI(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderCompatible:
		c, err := NewCompatible(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// Func adapts a function to Completer.
type Func func(ctx context.Context, system, prompt string) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

func (c Config) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return defaultMaxRetries
}

func (c Config) ratePerMinute() int {
	if c.RatePerMinute > 0 {
		return c.RatePerMinute
	}
	return defaultRatePerMinute
}
