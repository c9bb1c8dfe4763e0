package monitor

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

// Metric families read from the refundd /metrics endpoint.
const (
	metricDecisions        = "refundd_triage_decisions_total"
	metricDecisionDuration = "refundd_triage_decision_duration_seconds"
	metricCaseFailures     = "refundd_triage_case_analysis_failures_total"
	metricPanics           = "refundd_triage_recovered_panics_total"
	metricExtractions      = "refundd_extraction_extractions_total"
	metricModelFailures    = "refundd_extraction_model_failures_total"
	metricGoroutines       = "go_goroutines"
	metricResidentMemory   = "process_resident_memory_bytes"
	metricHeapAlloc        = "go_memstats_alloc_bytes"
	metricStartTime        = "process_start_time_seconds"
)

// Decision label values as exported by the triage counters.
const (
	labelApproved    = "Approved"
	labelDenied      = "Denied"
	labelNeedsReview = "Needs Human Review"
)

// MetricsClient scrapes a refundd server's Prometheus endpoint.
type MetricsClient struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// NewMetricsClient creates a new metrics client for the server at baseURL.
func NewMetricsClient(baseURL string) *MetricsClient {
	return &MetricsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
		now: time.Now,
	}
}

// Snapshot is one scrape of the triage counters. Counter values are
// cumulative since the server started.
type Snapshot struct {
	DecisionsTotal float64
	Approved       float64
	Denied         float64
	NeedsReview    float64
	ByMethod       map[string]float64

	ExtractionsTotal   float64
	ExtractionsFound   float64
	ModelFailures      float64
	CaseFailures       float64
	RecoveredPanics    float64
	DecisionLatencyP95 float64

	Goroutines int
	MemoryMB   float64
	Uptime     time.Duration

	ScrapedAt time.Time
}

// AutomationRate is the share of decisions that did not need a human.
func (s Snapshot) AutomationRate() float64 {
	if s.DecisionsTotal == 0 {
		return 0
	}
	return (s.Approved + s.Denied) / s.DecisionsTotal
}

// Methods returns the method labels ordered by count, highest first.
func (s Snapshot) Methods() []string {
	out := make([]string, 0, len(s.ByMethod))
	for m := range s.ByMethod {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.ByMethod[out[i]] != s.ByMethod[out[j]] {
			return s.ByMethod[out[i]] > s.ByMethod[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// Scrape fetches and parses the /metrics page.
func (c *MetricsClient) Scrape(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/metrics", nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	snap, err := ParseSnapshot(resp.Body, c.now())
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ParseSnapshot reads Prometheus text exposition from r.
func ParseSnapshot(r io.Reader, now time.Time) (Snapshot, error) {
	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse metrics: %w", err)
	}

	snap := Snapshot{
		ByMethod:  map[string]float64{},
		ScrapedAt: now,
	}

	if mf := families[metricDecisions]; mf != nil {
		for _, m := range mf.GetMetric() {
			v := m.GetCounter().GetValue()
			snap.DecisionsTotal += v
			snap.ByMethod[label(m, "method")] += v
			switch label(m, "decision") {
			case labelApproved:
				snap.Approved += v
			case labelDenied:
				snap.Denied += v
			case labelNeedsReview:
				snap.NeedsReview += v
			}
		}
	}

	if mf := families[metricExtractions]; mf != nil {
		for _, m := range mf.GetMetric() {
			v := m.GetCounter().GetValue()
			snap.ExtractionsTotal += v
			if label(m, "found") == "true" {
				snap.ExtractionsFound += v
			}
		}
	}

	snap.ModelFailures = sumCounter(families[metricModelFailures])
	snap.CaseFailures = sumCounter(families[metricCaseFailures])
	snap.RecoveredPanics = sumCounter(families[metricPanics])
	snap.DecisionLatencyP95 = histogramQuantile(0.95, families[metricDecisionDuration])

	if mf := families[metricGoroutines]; mf != nil && len(mf.GetMetric()) > 0 {
		snap.Goroutines = int(mf.GetMetric()[0].GetGauge().GetValue())
	}

	// process_* collectors are Linux only; fall back to the heap size.
	switch {
	case gaugeValue(families[metricResidentMemory]) > 0:
		snap.MemoryMB = gaugeValue(families[metricResidentMemory]) / (1024 * 1024)
	default:
		snap.MemoryMB = gaugeValue(families[metricHeapAlloc]) / (1024 * 1024)
	}

	if start := gaugeValue(families[metricStartTime]); start > 0 {
		snap.Uptime = max(now.Sub(time.Unix(int64(start), 0)).Truncate(time.Second), 0)
	}

	return snap, nil
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func sumCounter(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

func gaugeValue(mf *dto.MetricFamily) float64 {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

// histogramQuantile merges all series of a histogram family and returns the
// upper bound of the first bucket reaching quantile q.
func histogramQuantile(q float64, mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}

	buckets := map[float64]uint64{}
	var count uint64
	for _, m := range mf.GetMetric() {
		h := m.GetHistogram()
		count += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			buckets[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if count == 0 {
		return 0
	}

	bounds := make([]float64, 0, len(buckets))
	for ub := range buckets {
		bounds = append(bounds, ub)
	}
	sort.Float64s(bounds)

	target := uint64(math.Ceil(q * float64(count)))
	for _, ub := range bounds {
		if buckets[ub] >= target && !math.IsInf(ub, 1) {
			return ub
		}
	}
	// Everything landed in +Inf; report the largest finite bound.
	for i := len(bounds) - 1; i >= 0; i-- {
		if !math.IsInf(bounds[i], 1) {
			return bounds[i]
		}
	}
	return 0
}

// ratePerMinute converts the delta between two cumulative counter values
// into a per-minute rate.
func ratePerMinute(prev, cur float64, elapsed time.Duration) float64 {
	if elapsed <= 0 || cur < prev {
		return 0
	}
	return (cur - prev) / elapsed.Minutes()
}
