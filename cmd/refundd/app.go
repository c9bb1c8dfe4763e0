package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/bookings"
	"github.com/fyrsmithlabs/refundd/internal/config"
	"github.com/fyrsmithlabs/refundd/internal/events"
	"github.com/fyrsmithlabs/refundd/internal/extraction"
	httpapi "github.com/fyrsmithlabs/refundd/internal/http"
	"github.com/fyrsmithlabs/refundd/internal/llm"
	"github.com/fyrsmithlabs/refundd/internal/logging"
	"github.com/fyrsmithlabs/refundd/internal/mcp"
	"github.com/fyrsmithlabs/refundd/internal/policy"
	"github.com/fyrsmithlabs/refundd/internal/rules"
	"github.com/fyrsmithlabs/refundd/internal/secrets"
	"github.com/fyrsmithlabs/refundd/internal/telemetry"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
	"github.com/fyrsmithlabs/refundd/internal/triage"
)

// app holds the wired triage core and the infrastructure it needs.
type app struct {
	logger       *logging.Logger
	telemetry    *telemetry.Telemetry
	extractor    extraction.Extractor
	orchestrator *triage.Orchestrator
	bookings     *bookings.Client
	notifier     *events.Notifier
}

// newApp builds the core from cfg. Optional collaborators (model,
// booking API, event sink) are wired only when configured.
func newApp(ctx context.Context, cfg *config.Config, stdio bool) (*app, error) {
	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logCfg, err := loggingConfig(cfg, stdio, tel.LoggerProvider() != nil)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", h.Reason))
	}

	a := &app{logger: logger, telemetry: tel}
	if err := a.wire(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg *config.Config) error {
	zl := a.logger.Underlying()

	table, err := loadPolicy(cfg.Policy.Path)
	if err != nil {
		return err
	}

	completer, err := llm.New(llm.Config{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		APIKey:        cfg.LLM.APIKey.Value(),
		BaseURL:       cfg.LLM.BaseURL,
		Timeout:       cfg.LLM.Timeout,
		RatePerMinute: cfg.LLM.RatePerMinute,
		MaxRetries:    cfg.LLM.MaxRetries,
	})
	switch {
	case errors.Is(err, llm.ErrNoProvider):
		a.logger.Info(ctx, "model provider disabled; decisions use rules and patterns only")
		completer = nil
	case err != nil:
		return fmt.Errorf("initializing model client: %w", err)
	}

	review, ok := ticket.ParseConfidence(cfg.Triage.ReviewConfidence)
	if !ok {
		return fmt.Errorf("invalid triage.review_confidence %q", cfg.Triage.ReviewConfidence)
	}

	scrubCfg, err := secrets.LoadConfig(cfg.Triage.ScrubRules)
	if err != nil {
		return err
	}
	scrubber, err := secrets.New(scrubCfg)
	if err != nil {
		return fmt.Errorf("compiling scrub rules: %w", err)
	}

	// Interfaces stay nil when no model is configured.
	var (
		model    extraction.ModelExtractor
		analyzer triage.CaseAnalyzer
	)
	ruleOpts := []rules.Option{
		rules.WithLogger(zl),
		rules.WithModelTimeout(cfg.Triage.ModelTimeout),
	}
	if completer != nil {
		model = extraction.NewLLMExtractor(completer, scrubber, zl)
		analyzer = triage.NewLLMCaseAnalyzer(completer, table.Text(), scrubber, zl)
		ruleOpts = append(ruleOpts, rules.WithVehicleClassifier(rules.NewLLMVehicleClassifier(completer)))
	}

	a.extractor = extraction.NewStructuredExtractor(model,
		extraction.WithLogger(zl),
		extraction.WithModelTimeout(cfg.Triage.ModelTimeout),
	)

	orchOpts := []triage.Option{
		triage.WithLogger(zl),
		triage.WithModelTimeout(cfg.Triage.ModelTimeout),
		triage.WithReviewConfidence(review),
		triage.WithTracer(a.telemetry.Tracer(triage.InstrumentationName)),
	}
	if analyzer != nil {
		orchOpts = append(orchOpts, triage.WithCaseAnalyzer(analyzer))
	}
	a.orchestrator = triage.NewOrchestrator(a.extractor, rules.NewEngine(table, ruleOpts...), orchOpts...)

	if cfg.Bookings.BaseURL != "" {
		a.bookings, err = bookings.New(ctx, bookings.Config{
			BaseURL:      cfg.Bookings.BaseURL,
			TokenURL:     cfg.Bookings.TokenURL,
			ClientID:     cfg.Bookings.ClientID,
			ClientSecret: cfg.Bookings.ClientSecret,
			Scopes:       cfg.Bookings.Scopes,
			Timeout:      cfg.Bookings.Timeout,
		}, zl)
		if err != nil {
			return fmt.Errorf("initializing booking client: %w", err)
		}
	}

	pub, err := events.New(events.Config{
		Sink:          cfg.Events.Sink,
		NATSURL:       cfg.Events.NATSURL,
		SubjectPrefix: cfg.Events.SubjectPrefix,
		KafkaBrokers:  cfg.Events.KafkaBrokers,
		Topic:         cfg.Events.Topic,
	}, zl)
	if err != nil {
		return fmt.Errorf("initializing event publisher: %w", err)
	}
	a.notifier = events.NewNotifier(pub, zl)

	a.logger.Info(ctx, "triage core ready",
		zap.String("policy_version", table.Version()),
		zap.Bool("model_enabled", completer != nil),
		zap.String("review_confidence", string(review)),
	)
	return nil
}

// httpCore adapts the app to the HTTP API. Booking collaborators are set
// only when configured so the interfaces stay nil otherwise.
func (a *app) httpCore() httpapi.Core {
	core := httpapi.Core{
		Decider:   a.orchestrator,
		Extractor: a.extractor,
		Notifier:  a.notifier,
	}
	if a.bookings != nil {
		core.Bookings = a.bookings
		core.Verifier = a.bookings
	}
	return core
}

func (a *app) mcpCore() mcp.Core {
	core := mcp.Core{
		Decider:   a.orchestrator,
		Extractor: a.extractor,
		Notifier:  a.notifier,
	}
	if a.bookings != nil {
		core.Verifier = a.bookings
	}
	return core
}

// Close flushes events, telemetry and logs.
func (a *app) Close() {
	ctx := context.Background()
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Warn(ctx, "closing event publisher", zap.Error(err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func loadPolicy(path string) (*policy.Table, error) {
	if path == "" {
		return policy.Default()
	}
	table, err := policy.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading policy table %s: %w", path, err)
	}
	return table, nil
}

// loggingConfig maps the configuration file's logging section onto the
// logger's production defaults.
func loggingConfig(cfg *config.Config, stdio, otelAvailable bool) (*logging.Config, error) {
	lc := logging.NewDefaultConfig()

	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging.level: %w", err)
	}
	lc.Level = level
	lc.Format = cfg.Logging.Format
	lc.Fields["version"] = version
	lc.Output.Stderr = stdio
	lc.Output.OTEL = cfg.Telemetry.Enabled && otelAvailable
	return lc, nil
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = cfg.Telemetry.Protocol
	tc.Insecure = cfg.Telemetry.Insecure
	tc.CAFile = cfg.Telemetry.CAFile
	tc.SamplingRate = cfg.Telemetry.SamplingRate
	tc.ServiceVersion = version
	return tc
}
