// Refundd is the refund triage daemon for parking-reservation support
// tickets.
//
// It serves the decision API over HTTP, or the same core as MCP tools on
// stdio for the conversational support agent.
//
// Configuration is loaded from ~/.config/refundd/config.yaml (or -config)
// and environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the HTTP API
//	refundd
//
//	# Serve MCP tools on stdio
//	refundd mcp
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9090 LLM_PROVIDER=anthropic LLM_API_KEY=... refundd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/config"
	httpapi "github.com/fyrsmithlabs/refundd/internal/http"
	"github.com/fyrsmithlabs/refundd/internal/mcp"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/refundd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	mode := "serve"
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		case "mcp":
			mode = "mcp"
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  refundd           Start the HTTP API\n")
			fmt.Fprintf(os.Stderr, "  refundd mcp       Serve MCP tools on stdio\n")
			fmt.Fprintf(os.Stderr, "  refundd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, mode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("refundd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run loads configuration, builds the triage core and serves it until ctx
// is cancelled.
func run(ctx context.Context, configPath, mode string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// stdout carries the MCP protocol in stdio mode.
	a, err := newApp(ctx, cfg, mode == "mcp")
	if err != nil {
		return err
	}
	defer a.Close()

	if mode == "mcp" {
		return runStdio(ctx, a)
	}
	return serveHTTP(ctx, cfg, a)
}

func serveHTTP(ctx context.Context, cfg *config.Config, a *app) error {
	logger := a.logger.Underlying()

	srv, err := httpapi.NewServer(a.httpCore(), logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	a.logger.Info(ctx, "refundd started",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("version", version),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("bookings_enabled", a.bookings != nil),
		zap.String("events_sink", cfg.Events.Sink),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	a.logger.Info(ctx, "refundd stopped")
	return nil
}

// runStdio serves the MCP tools on stdin/stdout until the client
// disconnects or ctx is cancelled.
func runStdio(ctx context.Context, a *app) error {
	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "refundd",
		Version: version,
		Logger:  a.logger.Underlying(),
	}, a.mcpCore())
	if err != nil {
		return fmt.Errorf("creating mcp server: %w", err)
	}

	// stdout is the protocol channel
	fmt.Fprintf(os.Stderr, "refundd mcp mode started (version %s)\n", version)

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server error: %w", err)
	}
	return nil
}
