package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/duplicates"
	"github.com/fyrsmithlabs/refundd/internal/extraction"
	"github.com/fyrsmithlabs/refundd/internal/guard"
	"github.com/fyrsmithlabs/refundd/internal/reasons"
	"github.com/fyrsmithlabs/refundd/internal/secrets"
	"github.com/fyrsmithlabs/refundd/internal/triage"
)

// Decider produces refund decisions. *triage.Orchestrator implements it.
type Decider interface {
	Decide(ctx context.Context, req triage.Request) triage.FinalDecision
}

// Verifier looks up a booking for the guard. *bookings.Client implements it.
type Verifier interface {
	Verify(ctx context.Context, bookingID, claimedEventDate string) (*guard.VerifiedBooking, error)
}

// DecisionNotifier is told about every decision. *events.Notifier
// implements it.
type DecisionNotifier interface {
	Notify(ctx context.Context, ticketID string, fd triage.FinalDecision)
}

// Core bundles the components the tools call. Decider is required; the
// rest fall back to their defaults or are skipped.
type Core struct {
	Decider    Decider
	Extractor  extraction.Extractor
	Duplicates *duplicates.Resolver
	Guard      *guard.Guard
	Reasons    triage.ReasonClassifier
	Verifier   Verifier
	Notifier   DecisionNotifier
	Scrubber   secrets.Scrubber
}

// Server is an MCP server over the refund triage core.
type Server struct {
	mcp          *mcp.Server
	core         Core
	metrics      *toolMetrics
	outcomes     *OutcomeMetrics
	toolRegistry *ToolRegistry
	logger       *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "refundd")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "refundd",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server over core.
func NewServer(cfg *Config, core Core) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if core.Decider == nil {
		return nil, fmt.Errorf("decider is required")
	}
	if core.Extractor == nil {
		core.Extractor = extraction.NewStructuredExtractor(nil, extraction.WithLogger(cfg.Logger))
	}
	if core.Duplicates == nil {
		core.Duplicates = duplicates.NewResolver(cfg.Logger)
	}
	if core.Guard == nil {
		core.Guard = guard.New()
	}
	if core.Reasons == nil {
		core.Reasons = reasons.NewClassifier()
	}
	if core.Scrubber == nil {
		core.Scrubber = secrets.MustNew(nil)
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:          mcpServer,
		core:         core,
		metrics:      newToolMetrics(otel.Meter(instrumentationName), cfg.Logger),
		outcomes:     GetOutcomeMetrics(cfg.Logger),
		toolRegistry: NewToolRegistry(),
		logger:       cfg.Logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session over t and returns once the session is
// initialized.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

// Tools returns the registry describing the registered tools.
func (s *Server) Tools() *ToolRegistry {
	return s.toolRegistry
}
