package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/refundd/internal/http"

// requestMetrics records OpenTelemetry request metrics for the API. The
// Prometheus scrape served on /metrics is separate.
type requestMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

func newRequestMetrics(meter metric.Meter, logger *zap.Logger) *requestMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &requestMetrics{}
	var err error
	if m.requests, err = meter.Int64Counter("refundd.http.requests",
		metric.WithDescription("API requests by route, method and status class"),
		metric.WithUnit("{request}"),
	); err != nil {
		logger.Warn("creating request counter", zap.Error(err))
		m.requests = noop.Int64Counter{}
	}
	if m.latency, err = meter.Float64Histogram("refundd.http.duration",
		metric.WithDescription("API request latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30),
	); err != nil {
		logger.Warn("creating latency histogram", zap.Error(err))
		m.latency = noop.Float64Histogram{}
	}
	if m.inflight, err = meter.Int64UpDownCounter("refundd.http.inflight",
		metric.WithDescription("API requests currently executing"),
		metric.WithUnit("{request}"),
	); err != nil {
		logger.Warn("creating inflight counter", zap.Error(err))
		m.inflight = noop.Int64UpDownCounter{}
	}
	return m
}

// middleware records every request against its matched route.
func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			began := time.Now()
			m.inflight.Add(ctx, 1)
			defer m.inflight.Add(ctx, -1)

			err := next(c)

			// the error handler writes the response after the chain returns
			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			attrs := metric.WithAttributes(
				attribute.String("route", routeLabel(c.Path())),
				attribute.String("method", c.Request().Method),
				attribute.String("status_class", statusClass(status)),
			)
			m.requests.Add(ctx, 1, attrs)
			m.latency.Record(ctx, time.Since(began).Seconds(), attrs)
			return err
		}
	}
}

// routeLabel keeps label cardinality bounded: echo reports the route
// pattern, and unmatched paths share one label.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	}
	return "other"
}
