package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/fyrsmithlabs/agentd/internal/orchestrator"

// Metrics holds the pipeline's OTEL instruments.
type Metrics struct {
	runsTotal     metric.Int64Counter
	runsActive    metric.Int64UpDownCounter
	stageDuration metric.Float64Histogram
	stageFailures metric.Int64Counter
}

// NewMetrics creates instruments on meter, or on the global provider when nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.runsTotal, err = meter.Int64Counter(
		"agentd.pipeline.runs.total",
		metric.WithDescription("Pipeline runs by terminal state"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.runsActive, err = meter.Int64UpDownCounter(
		"agentd.pipeline.runs.active",
		metric.WithDescription("Pipeline runs in progress"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.stageDuration, err = meter.Float64Histogram(
		"agentd.pipeline.stage.duration.seconds",
		metric.WithDescription("Stage execution time in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	m.stageFailures, err = meter.Int64Counter(
		"agentd.pipeline.stage.failures.total",
		metric.WithDescription("Stage failures by stage"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) runStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.runsActive.Add(ctx, 1)
}

func (m *Metrics) runFinished(ctx context.Context, state State) {
	if m == nil {
		return
	}
	m.runsActive.Add(ctx, -1)
	m.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(state))))
}

func (m *Metrics) stageDone(ctx context.Context, stage Stage, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
		m.stageFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(stage))))
	}
	m.stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("status", status),
	))
}
