package llm

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

// Anthropic is a Completer over the Anthropic Messages API.
type Anthropic struct {
	api   *jsonAPI
	model string
}

// NewAnthropic creates an Anthropic client. An API key is required.
func NewAnthropic(cfg Config) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key required")
	}
	api := newJSONAPI(ProviderAnthropic, defaultAnthropicBaseURL, cfg)
	api.authorize = func(h http.Header) {
		h.Set("X-API-Key", cfg.APIKey)
		h.Set("Anthropic-Version", anthropicVersion)
	}
	api.errorMessage = func(body []byte) string {
		var e struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return e.Error.Message
	}
	return &Anthropic{api: api, model: cmp.Or(cfg.Model, defaultAnthropicModel)}, nil
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type anthropicReply struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete implements Completer.
func (a *Anthropic) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := anthropicRequest{
		Model:       a.model,
		System:      system,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}
	var reply anthropicReply
	if err := a.api.post(ctx, "/v1/messages", req, &reply); err != nil {
		return "", err
	}
	if reply.StopReason == "max_tokens" {
		return "", ErrTruncated
	}

	var sb strings.Builder
	for _, block := range reply.Content {
		if block.Type == "text" || block.Type == "" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

var _ Completer = (*Anthropic)(nil)
