package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentd/internal/agent"
	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/events"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/sink"
	"github.com/fyrsmithlabs/agentd/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/agentd"

// app holds everything a command needs to run the pipeline.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	metrics   *telemetry.PipelineMetrics
	events    *events.Publisher
	sink      *sink.GitSink
	pipeline  *orchestrator.Orchestrator
}

// newApp loads configuration and wires the pipeline with its observers.
// Logs go to logOut so that stdout stays free for reports and MCP traffic.
func newApp(ctx context.Context, opts *rootOptions, logOut io.Writer) (*app, error) {
	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}

	a := &app{cfg: cfg}

	a.telemetry, err = telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	lc, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("configuring logger: %w", err)
	}
	lc.Output.Writer = zapcore.AddSync(logOut)
	a.logger, err = logging.NewLogger(lc, a.telemetry.LoggerProvider())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	if h := a.telemetry.Health(); h.Degraded {
		a.logger.Warn(ctx, "telemetry degraded, continuing without export", zap.String("reason", h.Reason))
	}

	orchMetrics, err := orchestrator.NewMetrics(a.telemetry.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("creating pipeline metrics: %w", err)
	}
	a.metrics = telemetry.NewPipelineMetrics()

	pipeOpts := []orchestrator.Option{
		orchestrator.WithTracer(a.telemetry.Tracer(instrumentationName)),
		orchestrator.WithMetrics(orchMetrics),
		orchestrator.OnProgress(a.metrics.Observe),
	}

	if cfg.NATS.Enabled {
		a.events, err = events.Connect(cfg.NATS, a.logger)
		if err != nil {
			a.close()
			return nil, err
		}
		pipeOpts = append(pipeOpts, orchestrator.OnProgress(a.events.Callback()))
		a.logger.Info(ctx, "publishing run events", zap.String("url", cfg.NATS.URL), zap.String("prefix", cfg.NATS.SubjectPrefix))
	}

	if cfg.Sink.Enabled {
		a.sink, err = sink.New(cfg.Sink, a.logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("creating sink: %w", err)
		}
	}

	a.pipeline, err = agent.New(cfg, agent.Deps{Logger: a.logger}, pipeOpts...)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("assembling pipeline: %w", err)
	}
	return a, nil
}

// persist writes a Done run through the sink when one is configured.
func (a *app) persist(ctx context.Context, res *orchestrator.Result) (*sink.Result, error) {
	if a.sink == nil || res.State != orchestrator.StateDone {
		return nil, nil
	}
	out, err := a.sink.Write(ctx, res.RunID, res.Final)
	if err != nil {
		return nil, fmt.Errorf("persisting artifacts: %w", err)
	}
	return &out, nil
}

// close releases connections and flushes telemetry within a fixed deadline.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.events != nil {
		if err := a.events.Close(); err != nil && a.logger != nil {
			a.logger.Warn(ctx, "closing nats connection", zap.Error(err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil && a.logger != nil {
		a.logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
