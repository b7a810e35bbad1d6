package http

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/agentd/internal/http"

// HTTPMetrics holds the OTEL request instruments.
type HTTPMetrics struct {
	requestsTotal  metric.Int64Counter
	requestDur     metric.Float64Histogram
	activeRequests metric.Int64UpDownCounter
}

// NewHTTPMetrics creates instruments on meter, or on the global provider
// when nil. Instruments that fail to register are skipped with a warning.
func NewHTTPMetrics(meter metric.Meter, logger *logging.Logger) *HTTPMetrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx := context.Background()
	m := &HTTPMetrics{}
	var err error

	m.requestsTotal, err = meter.Int64Counter(
		"agentd.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create requests counter", zap.Error(err))
	}

	// Runs execute synchronously, so the upper buckets cover whole pipelines.
	m.requestDur, err = meter.Float64Histogram(
		"agentd.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 5, 30, 120),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}

	m.activeRequests, err = meter.Int64UpDownCounter(
		"agentd.http.active_requests",
		metric.WithDescription("HTTP requests in progress"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create active requests gauge", zap.Error(err))
	}
	return m
}

// MetricsMiddleware records request metrics. Routes are labeled by their
// pattern so path parameters do not inflate cardinality.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()
			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, 1)
				defer m.activeRequests.Add(ctx, -1)
			}

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", routeLabel(c.Path())),
				attribute.Int("status", c.Response().Status),
			)
			if m.requestsTotal != nil {
				m.requestsTotal.Add(ctx, 1, attrs)
			}
			if m.requestDur != nil {
				m.requestDur.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return nil
		}
	}
}

func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
