package config

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

const redacted = "[REDACTED]"

// Duration decodes from Go duration text ("1m30s") or a bare number of
// seconds ("90"), and encodes back to duration text.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		secs, nerr := strconv.ParseUint(s, 10, 32)
		if nerr != nil {
			return fmt.Errorf("invalid duration %q", s)
		}
		parsed = time.Duration(secs) * time.Second
	}
	if parsed < 0 {
		return fmt.Errorf("negative duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Secret is a credential read from config, such as the model API key or
// the booking client secret. Every fmt verb and both the JSON and text
// encodings print [REDACTED]; Value returns the credential.
type Secret string

func (s Secret) Value() string { return string(s) }

func (s Secret) IsSet() bool { return s != "" }

// String returns [REDACTED], or "" when unset so empty fields stay
// recognizable in dumps.
func (s Secret) String() string {
	if !s.IsSet() {
		return ""
	}
	return redacted
}

// Format covers %#v and %q, which would otherwise bypass String.
func (s Secret) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, s.String())
}

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
