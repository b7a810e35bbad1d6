package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentd/internal/logging"
)

type mockOptimizer struct {
	mock.Mock
}

func (m *mockOptimizer) Optimize(ctx context.Context, artifacts ArtifactSet, report ValidationReport) (ArtifactSet, error) {
	args := m.Called(ctx, artifacts, report)
	return args.Get(0).(ArtifactSet), args.Error(1)
}

func TestDefaultStrategies(t *testing.T) {
	ctx := context.Background()
	d := DefaultStages()

	for _, req := range []Request{"", "Build a REST API", "¿qué? 数据 🚀"} {
		reqs, err := d.Analyzer.Analyze(ctx, req)
		require.NoError(t, err)
		require.NoError(t, reqs.Validate())
		assert.True(t, reqs.IsEmpty())

		plan, err := d.Planner.Plan(ctx, reqs)
		require.NoError(t, err)
		assert.Equal(t, DefaultPlanSteps, plan.Steps)
	}

	plan, err := d.Planner.Plan(ctx, NewRequirementSet([]string{"auth"}, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultPlanSteps, plan.Steps, "default plan ignores its input")

	arts, err := d.Generator.Generate(ctx, NewPlan())
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py", "config.yaml"}, arts.Names())

	report, err := d.Validator.Validate(ctx, arts)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Issues)

	optimized, err := d.Optimizer.Optimize(ctx, arts, report)
	require.NoError(t, err)
	assert.True(t, arts.Equal(optimized))
}

func TestRun_DefaultPipeline(t *testing.T) {
	o := New(DefaultStages())

	res := o.Run(context.Background(), "Build a REST API")

	require.Equal(t, StateDone, res.State)
	require.NoError(t, res.Err)
	assert.Equal(t, DefaultAgentName, res.Agent)
	assert.Len(t, res.Plan.Steps, 5)
	assert.Equal(t, 2, res.Artifacts.Len())
	assert.True(t, res.Report.Valid)
	assert.True(t, res.Final.Equal(res.Artifacts))
	assert.Equal(t, []State{
		StateIdle, StateAnalyzing, StatePlanning, StateGenerating, StateValidating, StateOptimizing, StateDone,
	}, res.History)

	require.Len(t, res.Stages, 5)
	for i, stage := range AllStages() {
		assert.Equal(t, stage, res.Stages[i].Stage)
		assert.Equal(t, StageOK, res.Stages[i].Status)
	}
	assert.Len(t, res.Fingerprint, 64)
	_, err := uuid.Parse(res.RunID)
	assert.NoError(t, err)
}

func TestRun_Idempotent(t *testing.T) {
	o := New(DefaultStages())

	first := o.Run(context.Background(), "Build a REST API")
	second := o.Run(context.Background(), "Build a REST API")

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.True(t, first.Plan.Equal(second.Plan))
	assert.True(t, first.Final.Equal(second.Final))
	assert.True(t, first.Report.Equal(second.Report))
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestRun_RejectedSkipsOptimizer(t *testing.T) {
	spy := &mockOptimizer{}
	o := New(Stages{
		Validator: ValidatorFunc(func(context.Context, ArtifactSet) (ValidationReport, error) {
			return Invalid("syntax error"), nil
		}),
		Optimizer: spy,
	})

	res := o.Run(context.Background(), "Build a REST API")

	require.Equal(t, StateRejected, res.State)
	assert.NoError(t, res.Err, "rejection is not an error")
	assert.False(t, res.Report.Valid)
	assert.Equal(t, []string{"syntax error"}, res.Report.Issues)
	assert.True(t, res.Final.Equal(DefaultArtifacts()))
	assert.True(t, res.Final.Equal(res.Artifacts))
	assert.True(t, res.State.Succeeded())

	rec, ok := res.Record(StageOptimize)
	require.True(t, ok)
	assert.Equal(t, StageSkipped, rec.Status)

	spy.AssertNotCalled(t, "Optimize", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_OptimizerCalledWhenValid(t *testing.T) {
	spy := &mockOptimizer{}
	improved := DefaultArtifacts().With("main.py", "print('hi')\n")
	spy.On("Optimize", mock.Anything, mock.Anything, mock.Anything).Return(improved, nil).Once()

	res := New(Stages{Optimizer: spy}).Run(context.Background(), "x")

	require.Equal(t, StateDone, res.State)
	assert.True(t, res.Final.Equal(improved))
	assert.True(t, res.Artifacts.Equal(DefaultArtifacts()), "pre-optimization set is kept")
	spy.AssertExpectations(t)
}

func TestRun_AnalyzerFailsOnEmptyRequest(t *testing.T) {
	planned := false
	o := New(Stages{
		Analyzer: AnalyzerFunc(func(_ context.Context, req Request) (RequirementSet, error) {
			if req == "" {
				return RequirementSet{}, errors.New("empty request")
			}
			return EmptyRequirementSet(), nil
		}),
		Planner: PlannerFunc(func(context.Context, RequirementSet) (Plan, error) {
			planned = true
			return NewPlan("x"), nil
		}),
	})

	res := o.Run(context.Background(), "")

	require.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, ErrAnalysis)

	se, ok := res.StageError()
	require.True(t, ok)
	assert.Equal(t, StageAnalyze, se.Stage)
	assert.Equal(t, Request(""), se.Input)
	assert.EqualError(t, se.Cause, "empty request")
	assert.False(t, planned, "no later stage runs")
	assert.Equal(t, []State{StateIdle, StateAnalyzing, StateFailed}, res.History)
	assert.NotEmpty(t, res.Error)
}

func TestRun_InvalidRequest(t *testing.T) {
	res := New(DefaultStages()).Run(context.Background(), Request("\xff\xfe"))

	require.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, ErrAnalysis)
	assert.ErrorIs(t, res.Err, ErrInvalidRequest)
}

func TestRun_ContractViolations(t *testing.T) {
	tests := []struct {
		name      string
		stages    Stages
		wantKind  error
		wantCause error
	}{
		{
			name: "malformed requirements",
			stages: Stages{Analyzer: AnalyzerFunc(func(context.Context, Request) (RequirementSet, error) {
				return RequirementSet{Requirements: []string{"a"}}, nil
			})},
			wantKind:  ErrAnalysis,
			wantCause: ErrMalformedRequirements,
		},
		{
			name: "empty plan",
			stages: Stages{Planner: PlannerFunc(func(context.Context, RequirementSet) (Plan, error) {
				return Plan{}, nil
			})},
			wantKind:  ErrPlanning,
			wantCause: ErrEmptyPlan,
		},
		{
			name: "empty artifact set",
			stages: Stages{Generator: GeneratorFunc(func(context.Context, Plan) (ArtifactSet, error) {
				return ArtifactSet{}, nil
			})},
			wantKind:  ErrGeneration,
			wantCause: ErrEmptyArtifacts,
		},
		{
			name: "invalid report without issues",
			stages: Stages{Validator: ValidatorFunc(func(context.Context, ArtifactSet) (ValidationReport, error) {
				return ValidationReport{Valid: false}, nil
			})},
			wantKind:  ErrValidationInternal,
			wantCause: ErrInconsistentReport,
		},
		{
			name: "optimizer drops an artifact",
			stages: Stages{Optimizer: OptimizerFunc(func(_ context.Context, a ArtifactSet, _ ValidationReport) (ArtifactSet, error) {
				return MustArtifactSet(a.Artifacts()[0]), nil
			})},
			wantKind:  ErrOptimization,
			wantCause: ErrKeySetChanged,
		},
		{
			name: "optimizer adds an artifact",
			stages: Stages{Optimizer: OptimizerFunc(func(_ context.Context, a ArtifactSet, _ ValidationReport) (ArtifactSet, error) {
				return a.With("extra.txt", "x"), nil
			})},
			wantKind:  ErrOptimization,
			wantCause: ErrKeySetChanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(tt.stages).Run(context.Background(), "Build a REST API")

			require.Equal(t, StateFailed, res.State)
			assert.ErrorIs(t, res.Err, tt.wantKind)
			assert.ErrorIs(t, res.Err, tt.wantCause)
		})
	}
}

func TestRun_StrategyErrorsMapToStageKinds(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		stage  Stage
		stages Stages
		kind   error
	}{
		{StagePlan, Stages{Planner: PlannerFunc(func(context.Context, RequirementSet) (Plan, error) { return Plan{}, boom })}, ErrPlanning},
		{StageGenerate, Stages{Generator: GeneratorFunc(func(context.Context, Plan) (ArtifactSet, error) { return ArtifactSet{}, boom })}, ErrGeneration},
		{StageValidate, Stages{Validator: ValidatorFunc(func(context.Context, ArtifactSet) (ValidationReport, error) { return ValidationReport{}, boom })}, ErrValidationInternal},
		{StageOptimize, Stages{Optimizer: OptimizerFunc(func(context.Context, ArtifactSet, ValidationReport) (ArtifactSet, error) { return ArtifactSet{}, boom })}, ErrOptimization},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			res := New(tt.stages).Run(context.Background(), "x")

			require.Equal(t, StateFailed, res.State)
			assert.ErrorIs(t, res.Err, tt.kind)
			assert.ErrorIs(t, res.Err, boom)
			se, ok := res.StageError()
			require.True(t, ok)
			assert.Equal(t, tt.stage, se.Stage)
			assert.False(t, se.Timeout())
		})
	}
}

func TestRun_PanicBecomesStageError(t *testing.T) {
	o := New(Stages{Generator: GeneratorFunc(func(context.Context, Plan) (ArtifactSet, error) {
		panic("generator exploded")
	})})

	res := o.Run(context.Background(), "x")

	require.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, ErrGeneration)
	assert.Contains(t, res.Err.Error(), "generator exploded")
}

func TestRun_StageTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	o := New(Stages{
		Generator: GeneratorFunc(func(context.Context, Plan) (ArtifactSet, error) {
			<-release // ignores its context
			return DefaultArtifacts(), nil
		}),
	}, WithStageTimeout(time.Second), WithStageTimeouts(map[Stage]time.Duration{StageGenerate: 20 * time.Millisecond}))

	start := time.Now()
	res := o.Run(context.Background(), "x")

	assert.Less(t, time.Since(start), time.Second)
	require.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, ErrGeneration)
	assert.ErrorIs(t, res.Err, ErrStageTimeout)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)

	se, ok := res.StageError()
	require.True(t, ok)
	assert.True(t, se.Timeout())
	assert.Equal(t, StageGenerate, se.Stage)
}

func TestRun_StageTimeoutHonoredByContext(t *testing.T) {
	o := New(Stages{
		Analyzer: AnalyzerFunc(func(ctx context.Context, _ Request) (RequirementSet, error) {
			<-ctx.Done()
			return RequirementSet{}, ctx.Err()
		}),
	}, WithStageTimeout(10*time.Millisecond))

	res := o.Run(context.Background(), "x")

	require.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, ErrAnalysis)
	assert.ErrorIs(t, res.Err, ErrStageTimeout)
}

func TestRun_CancelledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	planned := false
	o := New(Stages{
		Analyzer: AnalyzerFunc(func(context.Context, Request) (RequirementSet, error) {
			cancel()
			return EmptyRequirementSet(), nil
		}),
		Planner: PlannerFunc(func(context.Context, RequirementSet) (Plan, error) {
			planned = true
			return NewPlan("x"), nil
		}),
	})

	res := o.Run(ctx, "x")

	require.Equal(t, StateCancelled, res.State)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.False(t, planned)
	assert.Equal(t, []State{StateIdle, StateAnalyzing, StateCancelled}, res.History)

	rec, ok := res.Record(StageAnalyze)
	require.True(t, ok)
	assert.Equal(t, StageOK, rec.Status, "a stage is never interrupted mid-flight")
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(DefaultStages()).Run(ctx, "x")

	require.Equal(t, StateCancelled, res.State)
	assert.Equal(t, []State{StateIdle, StateCancelled}, res.History)
	for _, rec := range res.Stages {
		assert.Equal(t, StageSkipped, rec.Status)
	}
}

func TestRun_HandoffIsolation(t *testing.T) {
	o := New(Stages{
		Analyzer: AnalyzerFunc(func(context.Context, Request) (RequirementSet, error) {
			return NewRequirementSet([]string{"auth"}, nil, nil), nil
		}),
		Planner: PlannerFunc(func(_ context.Context, reqs RequirementSet) (Plan, error) {
			reqs.Requirements[0] = "mutated by planner"
			return NewPlan("Step 1: Implement auth"), nil
		}),
		Generator: GeneratorFunc(func(_ context.Context, plan Plan) (ArtifactSet, error) {
			plan.Steps[0] = "mutated by generator"
			return DefaultArtifacts(), nil
		}),
	})

	res := o.Run(context.Background(), "x")

	require.Equal(t, StateDone, res.State)
	assert.Equal(t, []string{"auth"}, res.Requirements.Requirements)
	assert.Equal(t, []string{"Step 1: Implement auth"}, res.Plan.Steps)
}

func TestRun_StageContext(t *testing.T) {
	var seen []string
	o := New(Stages{
		Analyzer: AnalyzerFunc(func(ctx context.Context, _ Request) (RequirementSet, error) {
			seen = append(seen, logging.StageFromContext(ctx), logging.RunIDFromContext(ctx))
			return NewRequirementSet([]string{"auth"}, nil, nil), nil
		}),
		Planner: PlannerFunc(func(ctx context.Context, _ RequirementSet) (Plan, error) {
			seen = append(seen, logging.StageFromContext(ctx))
			return NewPlan("Step 1: Implement auth"), nil
		}),
	}, WithRunIDGenerator(func() string { return "run-ctx" }))

	res := o.Run(context.Background(), "x")

	require.Equal(t, StateDone, res.State)
	assert.Equal(t, []string{"analyze", "run-ctx", "plan"}, seen)
}

func TestRun_OneLogRecordPerStage(t *testing.T) {
	tl := logging.NewTestLogger()
	o := New(DefaultStages(), WithLogger(tl.Logger), WithRunIDGenerator(func() string { return "run-1" }))

	res := o.Run(context.Background(), "Build a REST API")
	require.Equal(t, StateDone, res.State)

	for _, stage := range AllStages() {
		entries := tl.StageEntries(string(stage))
		require.Len(t, entries, 1, "stage %s", stage)
		assert.Equal(t, "stage completed", entries[0].Message)
		assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
		assert.Equal(t, "run-1", entries[0].ContextMap()["run.id"])
	}

	tl.AssertField(t, "stage completed", "request", "Build a REST API")
	tl.AssertField(t, "stage completed", "artifacts", []interface{}{"main.py", "config.yaml"})
	tl.AssertLogged(t, zapcore.InfoLevel, "pipeline finished")
}

func TestRun_FailedStageLogsOnce(t *testing.T) {
	tl := logging.NewTestLogger()
	o := New(Stages{Planner: PlannerFunc(func(context.Context, RequirementSet) (Plan, error) {
		return Plan{}, errors.New("no plan")
	})}, WithLogger(tl.Logger))

	o.Run(context.Background(), "x")

	entries := tl.StageEntries(string(StagePlan))
	require.Len(t, entries, 1)
	assert.Equal(t, "stage failed", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Empty(t, tl.StageEntries(string(StageGenerate)))
	tl.AssertLogged(t, zapcore.ErrorLevel, "pipeline failed")
}

func TestRun_ProgressEvents(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	o := New(DefaultStages(), OnProgress(func(_ context.Context, ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}))

	res := o.Run(context.Background(), "x")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 11) // started and completed per stage, plus run finished
	assert.Equal(t, EventStageStarted, events[0].Kind)
	assert.Equal(t, StageAnalyze, events[0].Stage)
	assert.Equal(t, StateAnalyzing, events[0].State)
	assert.Equal(t, EventStageCompleted, events[9].Kind)
	assert.Equal(t, StageOptimize, events[9].Stage)

	last := events[10]
	assert.Equal(t, EventRunFinished, last.Kind)
	assert.Equal(t, StateDone, last.State)
	for _, ev := range events {
		assert.Equal(t, res.RunID, ev.RunID)
		assert.False(t, ev.Time.IsZero())
	}
}

func TestRun_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	New(DefaultStages(), WithTracer(tp.Tracer("test"))).Run(context.Background(), "x")

	names := make(map[string]bool)
	var root sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		names[s.Name()] = true
		if s.Name() == "pipeline.run" {
			root = s
		}
	}
	require.NotNil(t, root)
	for _, stage := range AllStages() {
		assert.True(t, names["pipeline."+string(stage)], "missing span for %s", stage)
	}
	for _, s := range sr.Ended() {
		if s.Name() != "pipeline.run" {
			assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID())
		}
	}
}

func TestRun_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	o := New(DefaultStages(), WithMetrics(m))
	o.Run(context.Background(), "x")
	o.Run(context.Background(), "y")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			found[md.Name] = true
			if md.Name == "agentd.pipeline.runs.total" {
				sum, ok := md.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Len(t, sum.DataPoints, 1)
				assert.EqualValues(t, 2, sum.DataPoints[0].Value)
			}
		}
	}
	assert.True(t, found["agentd.pipeline.runs.total"])
	assert.True(t, found["agentd.pipeline.stage.duration.seconds"])
}

func TestRun_ConcurrentRuns(t *testing.T) {
	o := New(DefaultStages())

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Run(context.Background(), Request(fmt.Sprintf("request %d", i)))
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, res := range results {
		require.Equal(t, StateDone, res.State)
		assert.False(t, seen[res.RunID])
		seen[res.RunID] = true
		assert.Equal(t, results[0].Fingerprint, res.Fingerprint)
	}
}

func TestNew_FillsNilStrategies(t *testing.T) {
	o := New(Stages{})
	desc := o.Stages().Describe()

	assert.Equal(t, "orchestrator.DefaultAnalyzer", desc[StageAnalyze])
	assert.Equal(t, "orchestrator.DefaultOptimizer", desc[StageOptimize])
	assert.Equal(t, DefaultAgentName, o.Agent().Name)
}

func TestWithAgent(t *testing.T) {
	agent := Agent{Name: "Builder", Capabilities: []string{"go"}}
	o := New(DefaultStages(), WithAgent(agent))
	agent.Capabilities[0] = "changed"

	res := o.Run(context.Background(), "x")
	assert.Equal(t, "Builder", res.Agent)
	assert.Equal(t, []string{"go"}, o.Agent().Capabilities)
}
