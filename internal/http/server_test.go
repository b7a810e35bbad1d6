package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/telemetry"
)

func setupTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	orch := orchestrator.New(orchestrator.DefaultStages())
	s, err := NewServer(orch, logging.NewNop(), nil, opts...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	orch := orchestrator.New(orchestrator.DefaultStages())

	t.Run("defaults", func(t *testing.T) {
		s, err := NewServer(orch, logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", s.config.Host)
		assert.Equal(t, 9090, s.config.Port)
	})

	t.Run("nil pipeline", func(t *testing.T) {
		_, err := NewServer(nil, logging.NewNop(), nil)
		assert.ErrorContains(t, err, "pipeline cannot be nil")
	})

	t.Run("nil logger", func(t *testing.T) {
		_, err := NewServer(orch, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})
}

func TestHandleHealth(t *testing.T) {
	rec := do(t, setupTestServer(t), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleAgent(t *testing.T) {
	rec := do(t, setupTestServer(t), http.MethodGet, "/api/v1/agent", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AgentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, orchestrator.DefaultAgentName, resp.Name)
	assert.Len(t, resp.Capabilities, 5)
	assert.Equal(t, "orchestrator.DefaultAnalyzer", resp.Strategies[orchestrator.StageAnalyze])
}

func TestHandleCreateRun(t *testing.T) {
	s := setupTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/runs", `{"request":"Build a CLI tool"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		RunID string            `json:"run_id"`
		State string            `json:"state"`
		Final map[string]string `json:"final"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "done", got.State)
	assert.Equal(t, "# Placeholder code", got.Final["main.py"])
	assert.NotEmpty(t, got.RunID)

	again := do(t, s, http.MethodGet, "/api/v1/runs/"+got.RunID, "")
	assert.Equal(t, http.StatusOK, again.Code)
	assert.JSONEq(t, rec.Body.String(), again.Body.String())
}

func TestHandleCreateRun_FailedRun(t *testing.T) {
	stages := orchestrator.DefaultStages()
	stages.Analyzer = orchestrator.AnalyzerFunc(func(context.Context, orchestrator.Request) (orchestrator.RequirementSet, error) {
		return orchestrator.RequirementSet{}, errors.New("model unavailable")
	})
	s, err := NewServer(orchestrator.New(stages), logging.NewNop(), nil)
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/api/v1/runs", `{"request":"Build a CLI tool"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"failed"`)
}

func TestHandleCreateRun_BadBody(t *testing.T) {
	rec := do(t, setupTestServer(t), http.MethodPost, "/api/v1/runs", `{"request":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetRun_NotFound(t *testing.T) {
	rec := do(t, setupTestServer(t), http.MethodGet, "/api/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	pm := telemetry.NewPipelineMetrics()
	orch := orchestrator.New(orchestrator.DefaultStages(), orchestrator.OnProgress(pm.Observe))
	s, err := NewServer(orch, logging.NewNop(), nil, WithMetricsHandler(pm.Handler()))
	require.NoError(t, err)

	do(t, s, http.MethodPost, "/api/v1/runs", `{"request":"Build a CLI tool"}`)
	rec := do(t, s, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `agentd_pipeline_runs_total{state="done"} 1`)
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	s := setupTestServer(t, WithHTTPMetrics(NewHTTPMetrics(mp.Meter(instrumentationName), nil)))

	do(t, s, http.MethodGet, "/health", "")
	do(t, s, http.MethodGet, "/api/v1/runs/abc", "")
	do(t, s, http.MethodGet, "/api/v1/runs/def", "")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "agentd.http.requests_total" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				route, _ := dp.Attributes.Value(attribute.Key("route"))
				counts[route.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), counts["/health"])
	assert.Equal(t, int64(2), counts["/api/v1/runs/:id"])
}

func TestRunStore_Evicts(t *testing.T) {
	rs := NewRunStore(2)
	for _, id := range []string{"a", "b", "c"} {
		rs.Put(&orchestrator.Result{RunID: id})
	}

	assert.Equal(t, 2, rs.Len())
	_, ok := rs.Get("a")
	assert.False(t, ok)
	_, ok = rs.Get("c")
	assert.True(t, ok)
}

func TestServer_StartShutdown(t *testing.T) {
	orch := orchestrator.New(orchestrator.DefaultStages())
	s, err := NewServer(orch, logging.NewNop(), &Config{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	require.Eventually(t, func() bool { return s.echo.ListenerAddr() != nil }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Shutdown(context.Background()))
	assert.NoError(t, <-errCh)
}
