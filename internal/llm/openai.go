package llm

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// OpenAI is a Completer over the OpenAI Chat Completions API. Replies are
// requested in JSON mode.
type OpenAI struct {
	api   *jsonAPI
	model string
}

// NewOpenAI creates an OpenAI client. An API key is required.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key required")
	}
	api := newJSONAPI(ProviderOpenAI, defaultOpenAIBaseURL, cfg)
	api.authorize = func(h http.Header) {
		h.Set("Authorization", "Bearer "+cfg.APIKey)
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
	return &OpenAI{api: api, model: cmp.Or(cfg.Model, defaultOpenAIModel)}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type openAIReply struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Complete implements Completer.
func (o *OpenAI) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := openAIRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}
	req.ResponseFormat.Type = "json_object"

	var reply openAIReply
	if err := o.api.post(ctx, "/v1/chat/completions", req, &reply); err != nil {
		return "", err
	}
	if len(reply.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	choice := reply.Choices[0]
	if choice.FinishReason == "length" {
		return "", ErrTruncated
	}
	if choice.Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return choice.Message.Content, nil
}

var _ Completer = (*OpenAI)(nil)
