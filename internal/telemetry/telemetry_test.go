package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled always valid", func(c *Config) { c.Endpoint = "" }, ""},
		{"enabled local", func(c *Config) { c.Enabled = true }, ""},
		{"missing endpoint", func(c *Config) { c.Enabled = true; c.Endpoint = "" }, "endpoint is required"},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, "protocol"},
		{"insecure remote", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, "insecure export"},
		{"secure remote", func(c *Config) { c.Enabled = true; c.Insecure = false; c.Endpoint = "otel.example.com:4317" }, ""},
		{"ipv6 loopback", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, ""},
		{"http scheme local", func(c *Config) { c.Enabled = true; c.Endpoint = "http://127.0.0.1:4318" }, ""},
		{"sample rate", func(c *Config) { c.Enabled = true; c.SampleRate = 1.5 }, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg := FromAppConfig(config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "localhost:4318",
		Protocol:    "http/protobuf",
		Insecure:    true,
		ServiceName: "agentd-test",
		SampleRate:  0.5,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, "agentd-test", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.InDelta(t, 0.5, cfg.SampleRate, 0.0001)
	assert.NoError(t, cfg.Validate())
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.ServiceName = ""

	tel, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_WithInMemoryExporter(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	exporter := tracetest.NewInMemoryExporter()

	tel, err := New(context.Background(), cfg, WithTraceExporter(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	_, span := tel.Tracer("test").Start(context.Background(), "unit")
	span.End()
	require.NoError(t, tel.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "unit", spans[0].Name)
	assert.True(t, tel.IsEnabled())
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})
	assert.True(t, tel.Health().Degraded)
	assert.False(t, tel.IsEnabled())
}

func TestTestTelemetry_RecordsOrchestratorRun(t *testing.T) {
	tt := NewTestTelemetry()
	metrics, err := orchestrator.NewMetrics(tt.Meter(orchestrator.InstrumentationName))
	require.NoError(t, err)

	orch := orchestrator.New(orchestrator.DefaultStages(),
		orchestrator.WithTracer(tt.Tracer(orchestrator.InstrumentationName)),
		orchestrator.WithMetrics(metrics),
	)
	res := orch.Run(context.Background(), "Build a CLI")
	require.Equal(t, orchestrator.StateDone, res.State)

	require.NotNil(t, tt.SpanByName("pipeline.run"))
	tt.AssertSpanAttribute(t, "pipeline.run", "state", string(orchestrator.StateDone))
	assert.Equal(t, int64(1), tt.Sum(t, "agentd.pipeline.runs.total", attribute.String("state", "done")))
}

func TestPipelineMetrics_Observe(t *testing.T) {
	pm := NewPipelineMetrics()
	orch := orchestrator.New(orchestrator.DefaultStages(), orchestrator.OnProgress(pm.Observe))

	orch.Run(context.Background(), "Build a CLI")
	orch.Run(context.Background(), "\xff")

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.RunsTotal.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.RunsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.StageFailures.WithLabelValues("analyze")))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.RunsInFlight))
}

func TestPipelineMetrics_CancelledBeforeStart(t *testing.T) {
	pm := NewPipelineMetrics()
	pm.Observe(context.Background(), orchestrator.Event{
		RunID: "r1", Kind: orchestrator.EventRunFinished, State: orchestrator.StateCancelled, Time: time.Now(),
	})

	assert.Equal(t, 0.0, testutil.ToFloat64(pm.RunsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.RunsTotal.WithLabelValues("cancelled")))
}

func TestPipelineMetrics_Handler(t *testing.T) {
	pm := NewPipelineMetrics()
	pm.Observe(context.Background(), orchestrator.Event{RunID: "r1", Kind: orchestrator.EventRunFinished, State: orchestrator.StateDone})

	srv := httptest.NewServer(pm.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `agentd_pipeline_runs_total{state="done"} 1`)
}
