package workflows

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/agentd/internal/workflows"

// Metrics records activity outcomes. A nil *Metrics records nothing.
type Metrics struct {
	runs             metric.Int64Counter
	activityDuration metric.Float64Histogram
	activityErrors   metric.Int64Counter
}

// NewMetrics creates instruments on meter, or on the global provider when nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	m := &Metrics{}
	var err error

	m.runs, err = meter.Int64Counter(
		"agentd.workflows.pipeline.runs",
		metric.WithDescription("Pipeline runs executed by the worker, by terminal state"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.activityDuration, err = meter.Float64Histogram(
		"agentd.workflows.activity.duration",
		metric.WithDescription("Duration of workflow activities"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.activityErrors, err = meter.Int64Counter(
		"agentd.workflows.activity.errors",
		metric.WithDescription("Failed workflow activities"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordActivity records an activity's duration and failure.
func (m *Metrics) RecordActivity(ctx context.Context, step Step, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("activity", string(step)))
	m.activityDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.activityErrors.Add(ctx, 1, attrs)
	}
}
