package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

const instrumentationName = "github.com/fyrsmithlabs/agentd/internal/mcp"

var errToolResult = errors.New("tool returned an error result")

// Metrics holds the MCP tool instruments.
type Metrics struct {
	invocations    metric.Int64Counter
	duration       metric.Float64Histogram
	errors         metric.Int64Counter
	activeRequests metric.Int64UpDownCounter
}

// NewMetrics creates instruments on meter, or on the global provider when nil.
func NewMetrics(meter metric.Meter, logger *logging.Logger) *Metrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx := context.Background()
	m := &Metrics{}
	var err error

	m.invocations, err = meter.Int64Counter(
		"agentd.mcp.tool.invocations_total",
		metric.WithDescription("MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create invocations counter", zap.Error(err))
	}

	m.duration, err = meter.Float64Histogram(
		"agentd.mcp.tool.duration_seconds",
		metric.WithDescription("Duration of MCP tool invocations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"agentd.mcp.tool.errors_total",
		metric.WithDescription("MCP tool errors by reason"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create errors counter", zap.Error(err))
	}

	m.activeRequests, err = meter.Int64UpDownCounter(
		"agentd.mcp.tool.active_requests",
		metric.WithDescription("MCP tool calls in progress"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create active requests gauge", zap.Error(err))
	}
	return m
}

// RecordInvocation records one tool call.
func (m *Metrics) RecordInvocation(ctx context.Context, tool string, d time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("tool", tool)}
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
	}
	if err != nil && m.errors != nil {
		attrs = append(attrs, attribute.String("reason", categorizeError(err)))
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// IncrementActive marks a tool call as started.
func (m *Metrics) IncrementActive(ctx context.Context, tool string) {
	if m.activeRequests != nil {
		m.activeRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
	}
}

// DecrementActive marks a tool call as finished.
func (m *Metrics) DecrementActive(ctx context.Context, tool string) {
	if m.activeRequests != nil {
		m.activeRequests.Add(ctx, -1, metric.WithAttributes(attribute.String("tool", tool)))
	}
}

func categorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errToolResult):
		return "pipeline_error"
	case errors.Is(err, orchestrator.ErrStageTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case strings.Contains(strings.ToLower(err.Error()), "invalid"):
		return "validation_error"
	default:
		return "internal_error"
	}
}
