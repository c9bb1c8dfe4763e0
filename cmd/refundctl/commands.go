package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/refundd/internal/duplicates"
	httpapi "github.com/fyrsmithlabs/refundd/internal/http"
	"github.com/fyrsmithlabs/refundd/internal/monitor"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
	"github.com/fyrsmithlabs/refundd/internal/triage"
)

func newDecideCmd(opts *options) *cobra.Command {
	var (
		req       triage.Request
		notesFile string
	)

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Decide a refund ticket",
		Long: `Send a support ticket to refundd and print the refund decision.

Examples:
  # Decide from subject and description
  refundctl decide --ticket-id 48213 --subject "Cancel" --description "Booking PW-509266779 on 2025-11-25"

  # Use a saved conversation for extraction
  refundctl decide --ticket-id 48213 --subject "Refund" --description "see thread" --notes-file thread.txt

  # JSON output
  refundctl decide --ticket-id 48213 --subject "Cancel" --description "..." -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(req.Ticket.TicketID) == "" {
				return fmt.Errorf("--ticket-id is required")
			}
			if notesFile != "" {
				notes, err := readInput(cmd, notesFile)
				if err != nil {
					return err
				}
				req.Notes = ticket.Ptr(string(notes))
			}

			var fd triage.FinalDecision
			if err := opts.call(cmd.Context(), http.MethodPost, "/api/v1/decisions", req, &fd); err != nil {
				return err
			}
			if opts.output == outputJSON {
				return printJSON(cmd.OutOrStdout(), fd)
			}
			renderDecision(cmd.OutOrStdout(), fd)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Ticket.TicketID, "ticket-id", "", "support ticket id (required)")
	cmd.Flags().StringVar(&req.Ticket.Subject, "subject", "", "ticket subject")
	cmd.Flags().StringVar(&req.Ticket.Description, "description", "", "ticket description")
	cmd.Flags().StringVar(&req.Ticket.Status, "status", "", "ticket status")
	cmd.Flags().StringVar(&notesFile, "notes-file", "", "file with the conversation history, or - for stdin")
	return cmd
}

func newDuplicatesCmd(opts *options) *cobra.Command {
	var body httpapi.DuplicatesRequest

	cmd := &cobra.Command{
		Use:   "duplicates [bookings.json]",
		Short: "Analyze bookings for duplicates",
		Long: `Analyze a customer's bookings for duplicates.

The file holds either a JSON array of bookings or an object with a
"bookings" array. Without a file, --email looks the bookings up through
the server's booking API.

Examples:
  refundctl duplicates bookings.json
  cat bookings.json | refundctl duplicates -
  refundctl duplicates --email jane@example.com --from 2025-11-20 --to 2025-11-30`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				data, err := readInput(cmd, args[0])
				if err != nil {
					return err
				}
				if body.Bookings, err = parseBookings(data); err != nil {
					return err
				}
			}
			if len(body.Bookings) == 0 && strings.TrimSpace(body.CustomerEmail) == "" {
				return fmt.Errorf("provide a bookings file or --email")
			}

			var res duplicates.Result
			if err := opts.call(cmd.Context(), http.MethodPost, "/api/v1/duplicates", body, &res); err != nil {
				return err
			}
			if opts.output == outputJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			renderDuplicates(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&body.CustomerEmail, "email", "", "customer email to look bookings up by")
	cmd.Flags().StringVar(&body.From, "from", "", "lookup window start date")
	cmd.Flags().StringVar(&body.To, "to", "", "lookup window end date")
	return cmd
}

// parseBookings accepts a bare array or a {"bookings": [...]} object.
func parseBookings(data []byte) ([]duplicates.CandidateBooking, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []duplicates.CandidateBooking
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("invalid bookings file: %w", err)
		}
		return list, nil
	}
	var wrapped httpapi.DuplicatesRequest
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("invalid bookings file: %w", err)
	}
	return wrapped.Bookings, nil
}

func newClassifyCmd(opts *options) *cobra.Command {
	var body httpapi.ClassifyRequest

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify decision reasoning into a cancellation reason code",
		Long: `Map decision reasoning and an applied policy label to a canonical
cancellation reason code.

Examples:
  refundctl classify --reasoning "The garage was full" --policy "Oversold"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(body.Reasoning) == "" && strings.TrimSpace(body.Policy) == "" {
				return fmt.Errorf("--reasoning or --policy is required")
			}

			var resp httpapi.ClassifyResponse
			if err := opts.call(cmd.Context(), http.MethodPost, "/api/v1/reasons/classify", body, &resp); err != nil {
				return err
			}
			if opts.output == outputJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			renderClassification(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&body.Reasoning, "reasoning", "", "decision reasoning text")
	cmd.Flags().StringVar(&body.Policy, "policy", "", "applied policy label")
	return cmd
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check refundd server health",
		Long: `Check the health status of the refundd HTTP server.

Examples:
  refundctl health
  refundctl health --server http://localhost:9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpapi.HealthResponse
			if err := opts.call(cmd.Context(), http.MethodGet, "/health", nil, &resp); err != nil {
				return err
			}
			if opts.output == outputJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", resp.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "Server URL: %s\n", opts.server)
			return nil
		},
	}
}

func newMonitorCmd(opts *options) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live dashboard of decision metrics",
		Long: `Open a terminal dashboard that polls the server's /metrics endpoint and
shows decision rates, escalations, latency and model failures.

Examples:
  refundctl monitor
  refundctl monitor --interval 2s --server http://localhost:9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			return monitor.Run(strings.TrimRight(opts.server, "/"), interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "refresh interval")
	return cmd
}
