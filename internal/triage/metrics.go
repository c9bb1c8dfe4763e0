package triage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts final decisions.
	// Labels: decision (Approved, Denied, Needs Human Review), method (rules, hybrid, ...)
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refundd",
			Subsystem: "triage",
			Name:      "decisions_total",
			Help:      "Total number of refund decisions by outcome and method",
		},
		[]string{"decision", "method"},
	)

	// DecisionDuration tracks end-to-end decision latency.
	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "refundd",
			Subsystem: "triage",
			Name:      "decision_duration_seconds",
			Help:      "Duration of refund decisions in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"method"},
	)

	// CaseAnalysisFailuresTotal counts failed case-analysis calls.
	CaseAnalysisFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "refundd",
			Subsystem: "triage",
			Name:      "case_analysis_failures_total",
			Help:      "Total number of failed model-assisted case analyses",
		},
	)

	// RecoveredPanicsTotal counts panics recovered inside the pipeline.
	// Labels: stage (extraction, rules, analysis, reason)
	RecoveredPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refundd",
			Subsystem: "triage",
			Name:      "recovered_panics_total",
			Help:      "Total number of panics recovered by the orchestrator",
		},
		[]string{"stage"},
	)
)

func observeDecision(fd FinalDecision, d time.Duration) {
	DecisionsTotal.WithLabelValues(string(fd.Decision), string(fd.MethodUsed)).Inc()
	DecisionDuration.WithLabelValues(string(fd.MethodUsed)).Observe(d.Seconds())
}
