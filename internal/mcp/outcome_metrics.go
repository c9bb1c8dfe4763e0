package mcp

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/refundd/internal/duplicates"
	"github.com/fyrsmithlabs/refundd/internal/ticket"
	"github.com/fyrsmithlabs/refundd/internal/triage"
)

const outcomeInstrumentationName = "github.com/fyrsmithlabs/refundd/outcomes"

// OutcomeMetrics tracks how much support work the agent tools take off
// human reviewers.
type OutcomeMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Decisions issued without a human
	automated metric.Int64Counter
	escalated metric.Int64Counter

	// Duplicate claims that ended in a refund recommendation
	duplicateRefunds metric.Int64Counter

	// Automated outcomes blocked for unverified bookings
	guardBlocked metric.Int64Counter

	mu          sync.RWMutex
	initialized bool
}

var (
	globalOutcomeMetrics *OutcomeMetrics
	outcomeMetricsOnce   sync.Once
)

// GetOutcomeMetrics returns the global OutcomeMetrics instance.
func GetOutcomeMetrics(logger *zap.Logger) *OutcomeMetrics {
	outcomeMetricsOnce.Do(func() {
		globalOutcomeMetrics = newOutcomeMetrics(logger)
	})
	return globalOutcomeMetrics
}

func newOutcomeMetrics(logger *zap.Logger) *OutcomeMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &OutcomeMetrics{
		meter:  otel.Meter(outcomeInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *OutcomeMetrics) init() {
	var err error

	m.automated, err = m.meter.Int64Counter(
		"refundd.decisions.automated_total",
		metric.WithDescription("Refund decisions issued as Approved or Denied without human review"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		m.logger.Warn("failed to create automated decisions counter", zap.Error(err))
	}

	m.escalated, err = m.meter.Int64Counter(
		"refundd.decisions.escalated_total",
		metric.WithDescription("Refund decisions routed to a human reviewer, labeled by method"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		m.logger.Warn("failed to create escalated decisions counter", zap.Error(err))
	}

	m.duplicateRefunds, err = m.meter.Int64Counter(
		"refundd.duplicates.refunds_recommended_total",
		metric.WithDescription("Duplicate-booking claims resolved with a refund recommendation"),
		metric.WithUnit("{claim}"),
	)
	if err != nil {
		m.logger.Warn("failed to create duplicate refunds counter", zap.Error(err))
	}

	m.guardBlocked, err = m.meter.Int64Counter(
		"refundd.guard.blocked_total",
		metric.WithDescription("Guard checks that blocked an automated outcome"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		m.logger.Warn("failed to create guard blocked counter", zap.Error(err))
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
}

func (m *OutcomeMetrics) ready() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// RecordDecision counts fd as automated or escalated.
func (m *OutcomeMetrics) RecordDecision(ctx context.Context, fd triage.FinalDecision) {
	if !m.ready() {
		return
	}

	if fd.Decision == ticket.NeedsHumanReview {
		if m.escalated != nil {
			m.escalated.Add(ctx, 1, metric.WithAttributes(
				attribute.String("method", string(fd.MethodUsed)),
			))
		}
		return
	}
	if m.automated != nil {
		m.automated.Add(ctx, 1, metric.WithAttributes(
			attribute.String("decision", string(fd.Decision)),
		))
	}
}

// RecordDuplicateResult counts results that are safe to refund.
func (m *OutcomeMetrics) RecordDuplicateResult(ctx context.Context, res duplicates.Result) {
	if !m.ready() || m.duplicateRefunds == nil || !res.SafeToRefund() {
		return
	}
	m.duplicateRefunds.Add(ctx, 1)
}

// RecordGuardBlock records a guard check that escalated.
func (m *OutcomeMetrics) RecordGuardBlock(ctx context.Context, verified bool) {
	if !m.ready() || m.guardBlocked == nil {
		return
	}
	m.guardBlocked.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("verified", verified),
	))
}
