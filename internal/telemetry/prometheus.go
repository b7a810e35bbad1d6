package telemetry

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// PipelineMetrics exposes run and stage counters in Prometheus format. It is
// fed by orchestrator progress events.
type PipelineMetrics struct {
	registry *prometheus.Registry
	active   sync.Map // run ID -> struct{}

	RunsTotal     *prometheus.CounterVec
	RunsInFlight  prometheus.Gauge
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
}

// NewPipelineMetrics registers the collectors on a fresh registry that also
// carries the Go and process collectors.
func NewPipelineMetrics() *PipelineMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &PipelineMetrics{
		registry: reg,
		// Labels: state (done, rejected, failed, cancelled)
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentd",
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Completed pipeline runs by terminal state",
			},
			[]string{"state"},
		),
		RunsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "agentd",
				Subsystem: "pipeline",
				Name:      "runs_in_flight",
				Help:      "Pipeline runs currently executing",
			},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "agentd",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage", "status"},
		),
		StageFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentd",
				Subsystem: "pipeline",
				Name:      "stage_failures_total",
				Help:      "Failed pipeline stages",
			},
			[]string{"stage"},
		),
	}
}

// Observe records one progress event. It has the orchestrator.ProgressCallback
// signature.
func (m *PipelineMetrics) Observe(_ context.Context, ev orchestrator.Event) {
	switch ev.Kind {
	case orchestrator.EventStageStarted:
		if _, loaded := m.active.LoadOrStore(ev.RunID, struct{}{}); !loaded {
			m.RunsInFlight.Inc()
		}
	case orchestrator.EventStageCompleted:
		m.StageDuration.WithLabelValues(ev.Stage.String(), "ok").Observe(ev.Duration.Seconds())
	case orchestrator.EventStageFailed:
		m.StageDuration.WithLabelValues(ev.Stage.String(), "failed").Observe(ev.Duration.Seconds())
		m.StageFailures.WithLabelValues(ev.Stage.String()).Inc()
	case orchestrator.EventRunFinished:
		if _, ok := m.active.LoadAndDelete(ev.RunID); ok {
			m.RunsInFlight.Dec()
		}
		m.RunsTotal.WithLabelValues(string(ev.State)).Inc()
	}
}

// Registry returns the underlying registry.
func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
