package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/logging"
)

// Orchestrator runs the five-stage pipeline. It holds no per-run state, so a
// single instance may serve concurrent runs provided its strategies do.
type Orchestrator struct {
	stages       Stages
	agent        Agent
	logger       *logging.Logger
	tracer       trace.Tracer
	metrics      *Metrics
	stageTimeout time.Duration
	timeouts     map[Stage]time.Duration
	callbacks    []ProgressCallback
	newRunID     func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStageTimeout bounds every stage. Zero disables the bound.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.stageTimeout = d
	}
}

// WithStageTimeouts overrides the bound for individual stages.
func WithStageTimeouts(timeouts map[Stage]time.Duration) Option {
	return func(o *Orchestrator) {
		for s, d := range timeouts {
			o.timeouts[s] = d
		}
	}
}

// WithTracer sets the tracer used for run and stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithMetrics sets the OTEL instruments.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithAgent sets the agent profile reported with each run.
func WithAgent(a Agent) Option {
	return func(o *Orchestrator) {
		o.agent = a.Clone()
	}
}

// OnProgress registers a callback for progress events.
func OnProgress(cb ProgressCallback) Option {
	return func(o *Orchestrator) {
		if cb != nil {
			o.callbacks = append(o.callbacks, cb)
		}
	}
}

// WithRunIDGenerator replaces the UUID run ID source.
func WithRunIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newRunID = fn
		}
	}
}

// New creates an orchestrator. Nil strategies fall back to the defaults.
func New(stages Stages, opts ...Option) *Orchestrator {
	metrics, _ := NewMetrics(nil)

	o := &Orchestrator{
		stages:   stages.withDefaults(),
		agent:    DefaultAgent(),
		logger:   logging.NewNop(),
		tracer:   otel.Tracer(InstrumentationName),
		metrics:  metrics,
		timeouts: make(map[Stage]time.Duration),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("orchestrator")
	return o
}

// Agent returns a copy of the agent profile.
func (o *Orchestrator) Agent() Agent { return o.agent.Clone() }

// Stages returns the configured strategies.
func (o *Orchestrator) Stages() Stages { return o.stages }

// TimeoutFor returns the effective bound for stage.
func (o *Orchestrator) TimeoutFor(stage Stage) time.Duration {
	if d, ok := o.timeouts[stage]; ok {
		return d
	}
	return o.stageTimeout
}

// Run executes the pipeline for req. It never returns nil; failures are
// reported through the result's State and Err.
func (o *Orchestrator) Run(ctx context.Context, req Request) *Result {
	runID := o.newRunID()
	ctx = logging.WithRunID(ctx, runID)

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("agent", o.agent.Name),
	))
	defer span.End()

	res := &Result{
		RunID:     runID,
		Agent:     o.agent.Name,
		State:     StateIdle,
		Request:   req,
		History:   []State{StateIdle},
		StartedAt: time.Now(),
	}
	o.metrics.runStarted(ctx)
	o.logger.Info(ctx, "pipeline started", zap.String("agent", o.agent.Name))

	o.execute(ctx, res)
	o.finish(ctx, span, res)
	return res
}

func (o *Orchestrator) execute(ctx context.Context, res *Result) {
	req := res.Request

	reqs, ok := runStage(ctx, o, res, StageAnalyze, req,
		func(ctx context.Context) (RequirementSet, error) {
			if err := req.Validate(); err != nil {
				return RequirementSet{}, err
			}
			out, err := o.stages.Analyzer.Analyze(ctx, req)
			return out.Clone(), err
		},
		func(out RequirementSet) error { return out.Validate() },
		[]zap.Field{zap.String("request", string(req))},
		func(out RequirementSet) []zap.Field { return []zap.Field{zap.Object("requirements", out)} },
	)
	if !ok {
		return
	}
	res.Requirements = reqs.Clone()

	plan, ok := runStage(ctx, o, res, StagePlan, reqs,
		func(ctx context.Context) (Plan, error) {
			if err := reqs.Validate(); err != nil {
				return Plan{}, err
			}
			out, err := o.stages.Planner.Plan(ctx, reqs.Clone())
			return out.Clone(), err
		},
		func(out Plan) error {
			if out.Len() == 0 {
				return ErrEmptyPlan
			}
			return nil
		},
		[]zap.Field{zap.Object("requirements", reqs)},
		func(out Plan) []zap.Field { return []zap.Field{zap.Object("plan", out)} },
	)
	if !ok {
		return
	}
	res.Plan = plan.Clone()

	artifacts, ok := runStage(ctx, o, res, StageGenerate, plan,
		func(ctx context.Context) (ArtifactSet, error) {
			out, err := o.stages.Generator.Generate(ctx, plan.Clone())
			return out.Clone(), err
		},
		func(out ArtifactSet) error {
			if out.Len() == 0 {
				return ErrEmptyArtifacts
			}
			return nil
		},
		[]zap.Field{zap.Object("plan", plan)},
		func(out ArtifactSet) []zap.Field { return []zap.Field{zap.Strings("artifacts", out.Names())} },
	)
	if !ok {
		return
	}
	res.Artifacts = artifacts.Clone()

	report, ok := runStage(ctx, o, res, StageValidate, artifacts,
		func(ctx context.Context) (ValidationReport, error) {
			out, err := o.stages.Validator.Validate(ctx, artifacts.Clone())
			return out.Clone(), err
		},
		func(out ValidationReport) error { return out.Check() },
		[]zap.Field{zap.Array("artifacts", artifacts)},
		func(out ValidationReport) []zap.Field { return []zap.Field{zap.Object("report", out)} },
	)
	if !ok {
		return
	}
	res.Report = report.Clone()

	if !report.Valid {
		res.Final = artifacts.Clone()
		o.transition(res, StateRejected)
		return
	}

	optimized, ok := runStage(ctx, o, res, StageOptimize, artifacts,
		func(ctx context.Context) (ArtifactSet, error) {
			out, err := o.stages.Optimizer.Optimize(ctx, artifacts.Clone(), report.Clone())
			return out.Clone(), err
		},
		func(out ArtifactSet) error {
			if !out.SameKeys(artifacts) {
				return ErrKeySetChanged
			}
			return nil
		},
		[]zap.Field{zap.Array("before", artifacts)},
		func(out ArtifactSet) []zap.Field { return []zap.Field{zap.Array("after", out)} },
	)
	if !ok {
		return
	}
	res.Final = optimized
	o.transition(res, StateDone)
}

// runStage invokes one stage and records its outcome on res. It returns false
// when the run has reached a terminal state.
func runStage[In, Out any](
	ctx context.Context,
	o *Orchestrator,
	res *Result,
	stage Stage,
	input In,
	call func(context.Context) (Out, error),
	check func(Out) error,
	inFields []zap.Field,
	outFields func(Out) []zap.Field,
) (Out, bool) {
	var zero Out

	if err := ctx.Err(); err != nil {
		o.cancel(res, err)
		return zero, false
	}

	o.transition(res, stage.State())
	o.emit(ctx, Event{RunID: res.RunID, Kind: EventStageStarted, Stage: stage, State: res.State})

	sctx, span := o.tracer.Start(logging.WithStage(ctx, string(stage)), "pipeline."+string(stage), trace.WithAttributes(
		attribute.String("stage", string(stage)),
	))
	defer span.End()

	started := time.Now()
	out, err := invoke(sctx, stage, o.TimeoutFor(stage), call)
	if err == nil && check != nil {
		err = check(out)
	}
	elapsed := time.Since(started)
	o.metrics.stageDone(ctx, stage, elapsed, err)

	rec := StageRecord{Stage: stage, Status: StageOK, StartedAt: started, Duration: elapsed}
	fields := append([]zap.Field{zap.String("stage", string(stage)), zap.Duration("duration", elapsed)}, inFields...)

	if err != nil {
		stageErr := NewStageError(stage, input, err)
		rec.Status = StageFailed
		rec.Error = stageErr.Error()
		res.Stages = append(res.Stages, rec)

		span.RecordError(stageErr)
		span.SetStatus(codes.Error, stageErr.Error())
		o.logger.Error(ctx, "stage failed", append(fields, zap.Error(stageErr))...)
		o.emit(ctx, Event{RunID: res.RunID, Kind: EventStageFailed, Stage: stage, State: res.State, Duration: elapsed, Error: stageErr.Error()})

		if ctxErr := ctx.Err(); ctxErr != nil {
			o.cancel(res, ctxErr)
			return zero, false
		}
		res.Err = stageErr
		o.transition(res, StateFailed)
		return zero, false
	}

	res.Stages = append(res.Stages, rec)
	o.logger.Info(ctx, "stage completed", append(fields, outFields(out)...)...)
	o.emit(ctx, Event{RunID: res.RunID, Kind: EventStageCompleted, Stage: stage, State: res.State, Duration: elapsed})

	if ctxErr := ctx.Err(); ctxErr != nil {
		o.cancel(res, ctxErr)
		return zero, false
	}
	return out, true
}

// invoke runs call on its own goroutine so a stage that ignores its context
// cannot hold the pipeline past its timeout. Panics become errors.
func invoke[Out any](ctx context.Context, stage Stage, timeout time.Duration, call func(context.Context) (Out, error)) (Out, error) {
	var zero Out

	var (
		sctx    context.Context
		cancel  context.CancelFunc
		expired <-chan time.Time
	)
	if timeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, timeout)
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	} else {
		sctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type outcome struct {
		out Out
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &panicError{value: r}}
			}
		}()
		out, err := call(sctx)
		done <- outcome{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, &timeoutError{stage: stage, err: context.DeadlineExceeded}
		}
		return r.out, r.err
	case <-expired:
		return zero, &timeoutError{stage: stage, err: context.DeadlineExceeded}
	}
}

func (o *Orchestrator) transition(res *Result, to State) {
	res.State = to
	res.History = append(res.History, to)
}

func (o *Orchestrator) cancel(res *Result, err error) {
	res.Err = err
	o.transition(res, StateCancelled)
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, res *Result) {
	for _, stage := range AllStages() {
		if _, ran := res.Record(stage); !ran {
			res.Stages = append(res.Stages, StageRecord{Stage: stage, Status: StageSkipped})
		}
	}
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	res.Fingerprint = Fingerprint(res.Plan, res.Final, res.Report)
	res.Duration = time.Since(res.StartedAt)

	span.SetAttributes(attribute.String("state", string(res.State)))
	if res.State == StateFailed {
		span.SetStatus(codes.Error, res.Error)
	}

	fields := []zap.Field{
		zap.String("state", string(res.State)),
		zap.Duration("duration", res.Duration),
	}
	switch res.State {
	case StateFailed:
		o.logger.Error(ctx, "pipeline failed", append(fields, zap.Error(res.Err))...)
	case StateCancelled:
		o.logger.Warn(ctx, "pipeline cancelled", append(fields, zap.Error(res.Err))...)
	case StateRejected:
		o.logger.Info(ctx, "pipeline rejected", append(fields, zap.Strings("issues", res.Report.Issues))...)
	default:
		o.logger.Info(ctx, "pipeline finished", append(fields, zap.String("fingerprint", res.Fingerprint))...)
	}

	o.metrics.runFinished(ctx, res.State)
	o.emit(ctx, Event{RunID: res.RunID, Kind: EventRunFinished, State: res.State, Duration: res.Duration, Error: res.Error})
}

func (o *Orchestrator) emit(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	for _, cb := range o.callbacks {
		cb(ctx, ev)
	}
}
