package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/fyrsmithlabs/refundd/internal/duplicates"
	httpapi "github.com/fyrsmithlabs/refundd/internal/http"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
	"github.com/fyrsmithlabs/refundd/internal/triage"
)

const reasoningWidth = 72

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: text.Colors{text.Bold}},
		{Number: 2, WidthMax: reasoningWidth},
	})
	return tw
}

func renderDecision(w io.Writer, fd triage.FinalDecision) {
	tw := newTable(w)
	tw.SetTitle("Refund decision")
	tw.AppendRows([]table.Row{
		{"Decision", fd.Decision},
		{"Confidence", fd.Confidence},
		{"Method", fd.MethodUsed},
		{"Policy", fd.PolicyApplied},
		{"Cancellation reason", orDash(ticket.Value(fd.CancellationReason))},
		{"Booking found", fd.BookingInfoFound},
	})
	if b := fd.BookingInfo; b != nil {
		tw.AppendRows([]table.Row{
			{"Booking ID", orDash(ticket.Value(b.BookingID))},
			{"Event date", orDash(ticket.Value(b.EventDate))},
			{"Booking type", b.Type()},
		})
	}
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"Reasoning", fd.Reasoning})
	if len(fd.KeyFactors) > 0 {
		tw.AppendRow(table.Row{"Key factors", "- " + strings.Join(fd.KeyFactors, "\n- ")})
	}
	tw.AppendFooter(table.Row{"Request", fmt.Sprintf("%s (%d ms)", fd.RequestID, fd.ProcessingTimeMS)})
	tw.Render()
}

func renderDuplicates(w io.Writer, res duplicates.Result) {
	tw := newTable(w)
	tw.SetTitle("Duplicate analysis")
	tw.AppendRows([]table.Row{
		{"Action", res.Action},
		{"Duplicates", res.HasDuplicates},
		{"Count", res.DuplicateCount},
		{"Used booking", orDash(res.UsedBookingID)},
		{"Refund booking", orDash(res.UnusedBookingID)},
		{"Bookings", orDash(strings.Join(res.AllBookingIDs, ", "))},
	})
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"Explanation", res.Explanation})
	tw.Render()
}

func renderClassification(w io.Writer, resp httpapi.ClassifyResponse) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Cancellation reason", "Valid"})
	tw.AppendRow(table.Row{resp.CancellationReason, resp.Valid})
	tw.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
