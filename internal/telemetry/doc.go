// Package telemetry wires OpenTelemetry tracing and metrics for agentd and
// exposes pipeline counters to Prometheus.
//
// OTLP export is optional and off by default:
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
//	defer tel.Shutdown(ctx)
//	metrics, err := orchestrator.NewMetrics(tel.Meter(orchestrator.InstrumentationName))
//	orch := orchestrator.New(stages,
//	    orchestrator.WithTracer(tel.Tracer(orchestrator.InstrumentationName)),
//	    orchestrator.WithMetrics(metrics),
//	)
//
// Prometheus metrics are always available through PipelineMetrics, which
// subscribes to progress events:
//
//	pm := telemetry.NewPipelineMetrics()
//	orch := orchestrator.New(stages, orchestrator.OnProgress(pm.Observe))
//	mux.Handle("/metrics", pm.Handler())
package telemetry
