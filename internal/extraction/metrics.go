package extraction

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExtractionsTotal counts extractions.
	// Labels: method (pattern, llm, none), confidence (low, medium, high), found (true, false)
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refundd",
			Subsystem: "extraction",
			Name:      "extractions_total",
			Help:      "Total number of booking extractions by method and confidence",
		},
		[]string{"method", "confidence", "found"},
	)

	// ModelFailuresTotal counts model extraction failures.
	ModelFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "refundd",
			Subsystem: "extraction",
			Name:      "model_failures_total",
			Help:      "Total number of failed model-assisted extractions",
		},
	)

	// ExtractionDuration tracks extraction latency.
	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "refundd",
			Subsystem: "extraction",
			Name:      "duration_seconds",
			Help:      "Duration of booking extraction in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func observeExtraction(res Result, d time.Duration) {
	found := "false"
	if res.Found {
		found = "true"
	}
	ExtractionsTotal.WithLabelValues(string(res.Method), string(res.Confidence), found).Inc()
	ExtractionDuration.WithLabelValues(string(res.Method)).Observe(d.Seconds())
	if res.Method == MethodLLM && res.Error != "" {
		ModelFailuresTotal.Inc()
	}
}
