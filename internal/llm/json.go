package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidResponse is returned when a model reply does not carry a
// decodable JSON object.
var ErrInvalidResponse = errors.New("invalid model response")

// ExtractJSON returns the JSON object embedded in a model reply. Markdown
// code fences and surrounding prose are dropped.
func ExtractJSON(content string) (string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object found", ErrInvalidResponse)
	}
	return content[start : end+1], nil
}

// DecodeJSON extracts the JSON object from content and unmarshals it
// into v.
func DecodeJSON(content string, v any) error {
	raw, err := ExtractJSON(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// DecodeObject decodes the JSON object in content into a map with
// null-valued fields removed.
func DecodeObject(content string) (map[string]any, error) {
	var m map[string]any
	if err := DecodeJSON(content, &m); err != nil {
		return nil, err
	}
	for k, v := range m {
		if v == nil {
			delete(m, k)
		}
	}
	return m, nil
}
