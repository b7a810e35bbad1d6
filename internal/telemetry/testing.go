package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans and metrics in memory.
type TestTelemetry struct {
	*Telemetry

	SpanRecorder *tracetest.SpanRecorder
	Reader       *sdkmetric.ManualReader
}

// NewTestTelemetry creates telemetry backed by in-memory exporters. It does
// not touch the global providers.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	recorder := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()

	return &TestTelemetry{
		Telemetry: &Telemetry{
			config:         cfg,
			tracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)),
			meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		},
		SpanRecorder: recorder,
		Reader:       reader,
	}
}

// SpanByName returns the first ended span with name, or nil.
func (t *TestTelemetry) SpanByName(name string) sdktrace.ReadOnlySpan {
	for _, span := range t.SpanRecorder.Ended() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

// AssertSpanAttribute fails tb unless the named span carries key=expected.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, spanName, key string, expected any) {
	tb.Helper()
	span := t.SpanByName(spanName)
	if span == nil {
		tb.Fatalf("span %q not found", spanName)
	}
	for _, attr := range span.Attributes() {
		if string(attr.Key) == key {
			if got := attr.Value.AsInterface(); got != expected {
				tb.Errorf("span %q attribute %q: got %v, want %v", spanName, key, got, expected)
			}
			return
		}
	}
	tb.Errorf("span %q missing attribute %q", spanName, key)
}

// Collect gathers the current metrics.
func (t *TestTelemetry) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := t.Reader.Collect(ctx, &rm)
	return rm, err
}

// Sum returns the total of an int64 sum metric across points matching attrs.
func (t *TestTelemetry) Sum(tb testing.TB, name string, attrs ...attribute.KeyValue) int64 {
	tb.Helper()
	rm, err := t.Collect(context.Background())
	if err != nil {
		tb.Fatalf("collect: %v", err)
	}
	want := attribute.NewSet(attrs...)
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if matches(dp.Attributes, want) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func matches(have attribute.Set, want attribute.Set) bool {
	iter := want.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		v, ok := have.Value(kv.Key)
		if !ok || v != kv.Value {
			return false
		}
	}
	return true
}
