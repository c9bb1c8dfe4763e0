// Package main implements refundctl, a CLI for the refundd HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

// Output formats.
const (
	outputTable = "table"
	outputJSON  = "json"
)

// options holds the persistent flags.
type options struct {
	server  string
	output  string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "refundctl",
		Short: "CLI for the refundd refund triage API",
		Long: `refundctl talks to a running refundd daemon. It decides refund tickets,
analyzes duplicate bookings, classifies cancellation reasons, checks
server health and shows a live metrics dashboard.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case outputTable, outputJSON:
				return nil
			default:
				return fmt.Errorf("--output must be %q or %q, got %q", outputTable, outputJSON, opts.output)
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.server, "server", "http://127.0.0.1:8086", "refundd server URL")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "output format: table or json")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		newDecideCmd(opts),
		newDuplicatesCmd(opts),
		newClassifyCmd(opts),
		newHealthCmd(opts),
		newMonitorCmd(opts),
	)
	return root
}

// apiError is the error body echo returns.
type apiError struct {
	Message string `json:"message"`
}

// call sends body (if non-nil) to the server and decodes the JSON reply
// into out.
func (o *options) call(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}

	url := strings.TrimRight(o.server, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: o.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Message != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, ae.Message)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}
