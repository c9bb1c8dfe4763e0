package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"
)

// Compatible is a Completer over any OpenAI-compatible endpoint (vLLM,
// Ollama, LocalAI) through langchaingo.
type Compatible struct {
	model   llms.Model
	limiter *rate.Limiter
}

// NewCompatible creates a Compatible client. BaseURL is required.
func NewCompatible(cfg Config) (*Compatible, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("compatible provider requires base_url")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("compatible provider requires model")
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for unauthenticated servers
		apiKey = "placeholder"
	}

	m, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI-compatible client: %w", err)
	}

	return NewCompatibleFromModel(m, cfg), nil
}

// NewCompatibleFromModel wraps an existing langchaingo model.
func NewCompatibleFromModel(m llms.Model, cfg Config) *Compatible {
	return &Compatible{
		model:   m,
		limiter: newLimiter(cfg.ratePerMinute()),
	}
}

// Complete implements Completer. langchaingo performs its own HTTP
// handling, so only the rate limit applies here.
func (c *Compatible) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	msgs := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	resp, err := c.model.GenerateContent(ctx, msgs,
		llms.WithTemperature(defaultTemperature),
		llms.WithMaxTokens(defaultMaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

var _ Completer = (*Compatible)(nil)
