package logging

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/refundd/internal/config"
)

// Config holds logging configuration.
type Config struct {
	Level     zapcore.Level
	Format    string
	Output    OutputConfig
	Sampling  SamplingConfig
	Caller    bool
	Fields    map[string]string
	Redaction RedactionConfig
}

// OutputConfig controls where records are written.
type OutputConfig struct {
	Stdout bool
	// Stderr moves the stream to stderr, for processes whose stdout carries
	// a protocol.
	Stderr bool
	OTEL   bool
}

// SamplingConfig caps repeated warn-and-below messages per tick.
type SamplingConfig struct {
	Enabled    bool
	Tick       config.Duration
	Initial    int
	Thereafter int
}

// RedactionConfig lists the keys masked whole and the patterns masked
// inside string values.
type RedactionConfig struct {
	Enabled  bool
	Keys     []string
	Patterns []string
}

const maxPatternLen = 200

// cardPattern matches 13 to 19 digit card numbers, optionally grouped by
// spaces or dashes.
const cardPattern = `\b(?:\d[ -]?){12,18}\d\b`

// NewDefaultConfig returns the daemon's production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{Stdout: true},
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       config.Duration(time.Second),
			Initial:    100,
			Thereafter: 10,
		},
		Caller: true,
		Fields: map[string]string{"service": "refundd"},
		Redaction: RedactionConfig{
			Enabled: true,
			Keys: []string{
				"password", "secret", "token", "api_key", "authorization",
				"client_secret", "access_token", "card_number", "customer_email",
			},
			Patterns: []string{
				`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`,
				`(?i)api[_-]?key\s*[=:]\s*\S+`,
				cardPattern,
			},
		},
	}
}

// Validate checks c for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be json or console, got %q", c.Format)
	}
	if !c.Output.Stdout && !c.Output.OTEL {
		return errors.New("at least one output must be enabled")
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick.Duration() <= 0 {
			return errors.New("sampling tick must be positive")
		}
		if c.Sampling.Initial < 1 || c.Sampling.Thereafter < 0 {
			return fmt.Errorf("sampling initial must be >= 1 and thereafter >= 0, got %d/%d",
				c.Sampling.Initial, c.Sampling.Thereafter)
		}
	}
	if c.Redaction.Enabled {
		if _, err := compilePatterns(c.Redaction.Patterns); err != nil {
			return err
		}
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return fmt.Errorf("constant field %q must have a key and a value", k)
		}
	}
	return nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern longer than %d chars", maxPatternLen)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
