package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMetrics = `# HELP refundd_triage_decisions_total Refund decisions by outcome and method.
# TYPE refundd_triage_decisions_total counter
refundd_triage_decisions_total{decision="Approved",method="rules"} 6
refundd_triage_decisions_total{decision="Denied",method="rules"} 2
refundd_triage_decisions_total{decision="Approved",method="hybrid"} 1
refundd_triage_decisions_total{decision="Needs Human Review",method="extraction_failed"} 1
# HELP refundd_triage_decision_duration_seconds Decision latency.
# TYPE refundd_triage_decision_duration_seconds histogram
refundd_triage_decision_duration_seconds_bucket{method="rules",le="0.1"} 7
refundd_triage_decision_duration_seconds_bucket{method="rules",le="1"} 8
refundd_triage_decision_duration_seconds_bucket{method="rules",le="+Inf"} 8
refundd_triage_decision_duration_seconds_sum{method="rules"} 1.2
refundd_triage_decision_duration_seconds_count{method="rules"} 8
refundd_triage_decision_duration_seconds_bucket{method="hybrid",le="0.1"} 0
refundd_triage_decision_duration_seconds_bucket{method="hybrid",le="1"} 0
refundd_triage_decision_duration_seconds_bucket{method="hybrid",le="+Inf"} 2
refundd_triage_decision_duration_seconds_sum{method="hybrid"} 9
refundd_triage_decision_duration_seconds_count{method="hybrid"} 2
# HELP refundd_triage_case_analysis_failures_total Case analysis failures.
# TYPE refundd_triage_case_analysis_failures_total counter
refundd_triage_case_analysis_failures_total 1
# HELP refundd_extraction_extractions_total Extractions.
# TYPE refundd_extraction_extractions_total counter
refundd_extraction_extractions_total{confidence="high",found="true",method="pattern"} 8
refundd_extraction_extractions_total{confidence="low",found="false",method="pattern"} 2
# HELP refundd_extraction_model_failures_total Model failures.
# TYPE refundd_extraction_model_failures_total counter
refundd_extraction_model_failures_total 3
# HELP go_goroutines Number of goroutines that currently exist.
# TYPE go_goroutines gauge
go_goroutines 17
# HELP go_memstats_alloc_bytes Number of bytes allocated and still in use.
# TYPE go_memstats_alloc_bytes gauge
go_memstats_alloc_bytes 1.048576e+07
# HELP process_start_time_seconds Start time of the process since unix epoch in seconds.
# TYPE process_start_time_seconds gauge
process_start_time_seconds 1.7631e+09
`

func TestParseSnapshot(t *testing.T) {
	now := time.Unix(1763108100, 0)
	snap, err := ParseSnapshot(strings.NewReader(sampleMetrics), now)
	require.NoError(t, err)

	assert.Equal(t, 10.0, snap.DecisionsTotal)
	assert.Equal(t, 7.0, snap.Approved)
	assert.Equal(t, 2.0, snap.Denied)
	assert.Equal(t, 1.0, snap.NeedsReview)
	assert.InDelta(t, 0.9, snap.AutomationRate(), 1e-9)
	assert.Equal(t, map[string]float64{"rules": 8, "hybrid": 1, "extraction_failed": 1}, snap.ByMethod)
	assert.Equal(t, []string{"rules", "extraction_failed", "hybrid"}, snap.Methods())

	assert.Equal(t, 10.0, snap.ExtractionsTotal)
	assert.Equal(t, 8.0, snap.ExtractionsFound)
	assert.Equal(t, 3.0, snap.ModelFailures)
	assert.Equal(t, 1.0, snap.CaseFailures)
	assert.Equal(t, 0.0, snap.RecoveredPanics)

	// 10 samples; the 95th percentile lands in the +Inf bucket
	assert.Equal(t, 1.0, snap.DecisionLatencyP95)

	assert.Equal(t, 17, snap.Goroutines)
	assert.InDelta(t, 10.0, snap.MemoryMB, 1e-9)
	assert.Equal(t, 8100*time.Second, snap.Uptime)
	assert.Equal(t, now, snap.ScrapedAt)
}

func TestParseSnapshot_Empty(t *testing.T) {
	snap, err := ParseSnapshot(strings.NewReader(""), time.Now())
	require.NoError(t, err)
	assert.Zero(t, snap.DecisionsTotal)
	assert.Zero(t, snap.AutomationRate())
	assert.Zero(t, snap.DecisionLatencyP95)
	assert.Empty(t, snap.Methods())
}

func TestParseSnapshot_Malformed(t *testing.T) {
	_, err := ParseSnapshot(strings.NewReader("refundd_triage_decisions_total{decision=\"Approved\" 1\n"), time.Now())
	assert.Error(t, err)
}

func TestMetricsClient_Scrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(sampleMetrics))
	}))
	defer srv.Close()

	c := NewMetricsClient(srv.URL + "/")
	snap, err := c.Scrape(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, snap.DecisionsTotal)
	assert.False(t, snap.ScrapedAt.IsZero())
}

func TestMetricsClient_ScrapeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewMetricsClient(srv.URL).Scrape(context.Background())
	assert.ErrorContains(t, err, "503")

	srv.Close()
	_, err = NewMetricsClient(srv.URL).Scrape(context.Background())
	assert.Error(t, err)
}

func TestRatePerMinute(t *testing.T) {
	tests := []struct {
		name      string
		prev, cur float64
		elapsed   time.Duration
		want      float64
	}{
		{"steady", 10, 20, 30 * time.Second, 20},
		{"no change", 5, 5, time.Minute, 0},
		{"counter reset", 50, 3, time.Minute, 0},
		{"zero elapsed", 1, 2, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ratePerMinute(tt.prev, tt.cur, tt.elapsed), 1e-9)
		})
	}
}
