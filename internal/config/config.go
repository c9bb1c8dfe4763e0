// Package config provides configuration loading for refundd.
//
// Configuration is assembled by koanf from built-in defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the complete refundd configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Triage    TriageConfig    `koanf:"triage"`
	LLM       LLMConfig       `koanf:"llm"`
	Policy    PolicyConfig    `koanf:"policy"`
	Bookings  BookingsConfig  `koanf:"bookings"`
	Events    EventsConfig    `koanf:"events"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TriageConfig tunes the decision pipeline.
type TriageConfig struct {
	// ModelTimeout bounds every model call made while deciding a ticket.
	ModelTimeout time.Duration `koanf:"model_timeout"`
	// ReviewConfidence is the rule confidence at or below which a terminal
	// rule decision is still sent to case analysis (low, medium or high).
	ReviewConfidence string `koanf:"review_confidence"`
	// ScrubRules is a TOML redaction rule file applied to ticket text before
	// it reaches the model. Empty uses the built-in rules.
	ScrubRules string `koanf:"scrub_rules"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider      string        `koanf:"provider"` // disabled, anthropic, openai, compatible
	Model         string        `koanf:"model"`
	APIKey        Secret        `koanf:"api_key"`
	BaseURL       string        `koanf:"base_url"`
	Timeout       time.Duration `koanf:"timeout"`
	RatePerMinute int           `koanf:"rate_per_minute"`
	MaxRetries    int           `koanf:"max_retries"`
}

// PolicyConfig locates the policy rule table. An empty path uses the
// table compiled into the binary.
type PolicyConfig struct {
	Path string `koanf:"path"`
}

// BookingsConfig configures the booking API client. An empty base URL
// disables booking lookups.
type BookingsConfig struct {
	BaseURL      string        `koanf:"base_url"`
	TokenURL     string        `koanf:"token_url"`
	ClientID     string        `koanf:"client_id"`
	ClientSecret Secret        `koanf:"client_secret"`
	Scopes       []string      `koanf:"scopes"`
	Timeout      time.Duration `koanf:"timeout"`
}

// EventsConfig configures decision event publishing.
type EventsConfig struct {
	Sink          string   `koanf:"sink"` // none, nats, kafka
	NATSURL       string   `koanf:"nats_url"`
	SubjectPrefix string   `koanf:"subject_prefix"`
	KafkaBrokers  []string `koanf:"kafka_brokers"`
	Topic         string   `koanf:"topic"`
}

// LoggingConfig holds the logging settings exposed through configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// TelemetryConfig holds the OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"`
	Protocol     string  `koanf:"protocol"`
	Insecure     bool    `koanf:"insecure"`
	CAFile       string  `koanf:"ca_file"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8086,
			ShutdownTimeout: 10 * time.Second,
		},
		Triage: TriageConfig{
			ModelTimeout:     10 * time.Second,
			ReviewConfidence: "low",
		},
		LLM: LLMConfig{
			Provider:      "disabled",
			Timeout:       30 * time.Second,
			RatePerMinute: 50,
			MaxRetries:    2,
		},
		Bookings: BookingsConfig{
			Timeout: 15 * time.Second,
		},
		Events: EventsConfig{
			Sink:          "none",
			SubjectPrefix: "refundd.decisions",
			Topic:         "refund-decisions",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:     "localhost:4317",
			Protocol:     "grpc",
			Insecure:     true,
			SamplingRate: 1.0,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}

	if c.Triage.ModelTimeout <= 0 {
		errs = append(errs, errors.New("triage.model_timeout must be positive"))
	}
	switch strings.ToLower(c.Triage.ReviewConfidence) {
	case "low", "medium", "high":
	default:
		errs = append(errs, fmt.Errorf("triage.review_confidence must be low, medium or high, got %q", c.Triage.ReviewConfidence))
	}

	switch c.LLM.Provider {
	case "", "disabled":
	case "anthropic", "openai":
		if !c.LLM.APIKey.IsSet() {
			errs = append(errs, fmt.Errorf("llm.api_key is required for provider %s", c.LLM.Provider))
		}
	case "compatible":
		if c.LLM.BaseURL == "" {
			errs = append(errs, errors.New("llm.base_url is required for provider compatible"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.LLM.BaseURL != "" {
		if err := validateURL(c.LLM.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("llm.base_url: %w", err))
		}
	}

	if c.Bookings.BaseURL != "" {
		if err := validateURL(c.Bookings.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("bookings.base_url: %w", err))
		}
		if c.Bookings.TokenURL != "" && (c.Bookings.ClientID == "" || !c.Bookings.ClientSecret.IsSet()) {
			errs = append(errs, errors.New("bookings.client_id and bookings.client_secret are required with bookings.token_url"))
		}
	}

	switch c.Events.Sink {
	case "", "none":
	case "nats":
		if c.Events.NATSURL == "" {
			errs = append(errs, errors.New("events.nats_url is required for sink nats"))
		}
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("events.kafka_brokers is required for sink kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events sink %q", c.Events.Sink))
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
