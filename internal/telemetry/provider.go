package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func newResource(cfg *Config) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)
}

func newTraceExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	if cfg.Protocol == "http/protobuf" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(stripScheme(cfg.Endpoint))}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func newTracerProvider(cfg *Config, res *resource.Resource, exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
}

// Cumulative temporality keeps Prometheus-compatible backends happy
// regardless of OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE.
func cumulative(sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func newMetricExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	if cfg.Protocol == "http/protobuf" {
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(stripScheme(cfg.Endpoint)),
			otlpmetrichttp.WithTemporalitySelector(cumulative),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithTemporalitySelector(cumulative),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func newMeterProvider(cfg *Config, res *resource.Resource, exporter sdkmetric.Exporter) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.MetricsInterval))),
	)
}

// Option overrides exporters, mainly for tests.
type Option func(*options)

type options struct {
	traceExporter  sdktrace.SpanExporter
	metricExporter sdkmetric.Exporter
}

// WithTraceExporter replaces the OTLP span exporter.
func WithTraceExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.traceExporter = exp }
}

// WithMetricExporter replaces the OTLP metric exporter.
func WithMetricExporter(exp sdkmetric.Exporter) Option {
	return func(o *options) { o.metricExporter = exp }
}

func (o *options) exporters(ctx context.Context, cfg *Config) error {
	var err error
	if o.traceExporter == nil {
		if o.traceExporter, err = newTraceExporter(ctx, cfg); err != nil {
			return fmt.Errorf("creating trace exporter: %w", err)
		}
	}
	if o.metricExporter == nil {
		if o.metricExporter, err = newMetricExporter(ctx, cfg); err != nil {
			return fmt.Errorf("creating metric exporter: %w", err)
		}
	}
	return nil
}
