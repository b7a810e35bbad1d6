package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the tracer and meter providers. Export failures never stop
// the pipeline: the instance degrades to the global no-op providers.
type Telemetry struct {
	config *Config

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logProvider    log.LoggerProvider

	degraded atomic.Bool
	reason   atomic.Value // string
}

// New validates cfg and installs providers when telemetry is enabled.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.exporters(ctx, cfg); err != nil {
		t.setDegraded(err)
		return t, nil
	}

	res := newResource(cfg)
	t.tracerProvider = newTracerProvider(cfg, res, o.traceExporter)
	t.meterProvider = newMeterProvider(cfg, res, o.metricExporter)

	otel.SetTracerProvider(t.tracerProvider)
	otel.SetMeterProvider(t.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// Tracer returns a tracer, falling back to the global provider.
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter, falling back to the global provider.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// LoggerProvider returns the provider for the otelzap bridge, or nil.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil {
		return nil
	}
	return t.logProvider
}

// SetLoggerProvider sets the provider handed to the logging package.
func (t *Telemetry) SetLoggerProvider(lp log.LoggerProvider) {
	if t != nil {
		t.logProvider = lp
	}
}

// Shutdown flushes and stops the providers, bounded by the configured
// timeout when ctx has no deadline.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ForceFlush exports pending spans and metrics.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace flush: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter flush: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HealthStatus reports whether export is active.
type HealthStatus struct {
	Enabled  bool   `json:"enabled"`
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// Health returns the current status. A nil Telemetry is degraded.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Degraded: true, Reason: "not initialized"}
	}
	reason, _ := t.reason.Load().(string)
	return HealthStatus{
		Enabled:  t.config != nil && t.config.Enabled,
		Degraded: t.degraded.Load(),
		Reason:   reason,
	}
}

// IsEnabled reports whether export is enabled and not degraded.
func (t *Telemetry) IsEnabled() bool {
	h := t.Health()
	return h.Enabled && !h.Degraded
}

func (t *Telemetry) setDegraded(err error) {
	t.degraded.Store(true)
	t.reason.Store(err.Error())
}
