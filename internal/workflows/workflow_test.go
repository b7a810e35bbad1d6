package workflows

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/sink"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) Write(ctx context.Context, runID string, set orchestrator.ArtifactSet) (sink.Result, error) {
	args := m.Called(ctx, runID, set)
	return args.Get(0).(sink.Result), args.Error(1)
}

func TestPipelineWorkflow_RealActivities(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	gitSink, err := sink.New(config.SinkConfig{Dir: t.TempDir(), Commit: true, AuthorName: "agentd", AuthorEmail: "agentd@localhost"}, nil)
	require.NoError(t, err)
	acts := &Activities{Pipeline: orchestrator.New(orchestrator.DefaultStages()), Sink: gitSink}
	Register(env, acts)

	env.ExecuteWorkflow(PipelineWorkflow, PipelineInput{Request: "Build a CLI tool", Persist: true})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out PipelineOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, "done", out.Run.State)
	assert.Equal(t, orchestrator.DefaultPlanSteps, out.Run.Plan)
	require.NotNil(t, out.Persist)
	assert.Len(t, out.Persist.Files, 2)
	assert.NotEmpty(t, out.Persist.Commit)
	assert.Empty(t, out.Errors)
}

func TestPipelineWorkflow_SkipsPersistWhenNotDone(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var a *Activities
	env.RegisterWorkflow(PipelineWorkflow)
	env.RegisterActivity(&Activities{})
	env.OnActivity(a.RunPipeline, mock.Anything, "Build a CLI tool").Return(&RunSummary{
		RunID: "r1", State: "rejected", Issues: []string{"syntax error"},
	}, nil).Once()

	env.ExecuteWorkflow(PipelineWorkflow, PipelineInput{Request: "Build a CLI tool", Persist: true})

	require.NoError(t, env.GetWorkflowError())
	var out PipelineOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, "rejected", out.Run.State)
	assert.Nil(t, out.Persist)
	env.AssertExpectations(t)
}

func TestPipelineWorkflow_PipelineActivityNotRetried(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var a *Activities
	env.RegisterWorkflow(PipelineWorkflow)
	env.RegisterActivity(&Activities{})
	env.OnActivity(a.RunPipeline, mock.Anything, mock.Anything).Return(nil, errors.New("worker lost")).Once()

	env.ExecuteWorkflow(PipelineWorkflow, PipelineInput{Request: "x"})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_pipeline failed")
	env.AssertExpectations(t)
}

func TestPipelineWorkflow_PersistFailureIsReported(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	writer := &mockWriter{}
	writer.On("Write", mock.Anything, mock.Anything, mock.Anything).Return(sink.Result{}, sink.ErrUnsafeName)

	Register(env, &Activities{Pipeline: orchestrator.New(orchestrator.DefaultStages()), Sink: writer})
	env.ExecuteWorkflow(PipelineWorkflow, PipelineInput{Request: "Build a CLI tool", Persist: true})

	require.NoError(t, env.GetWorkflowError())
	var out PipelineOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, "done", out.Run.State)
	assert.Nil(t, out.Persist)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "persist_artifacts failed")
	writer.AssertNumberOfCalls(t, "Write", 1)
}

func TestActivities_PersistWithoutSink(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	env.RegisterActivity(&Activities{})

	var a *Activities
	_, err := env.ExecuteActivity(a.PersistArtifacts, PersistInput{RunID: "r1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no artifact sink configured")
}

func TestActivities_RunPipeline(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	stages := orchestrator.DefaultStages()
	stages.Analyzer = orchestrator.AnalyzerFunc(func(context.Context, orchestrator.Request) (orchestrator.RequirementSet, error) {
		return orchestrator.RequirementSet{}, errors.New("model unavailable")
	})
	env.RegisterActivity(&Activities{Pipeline: orchestrator.New(stages)})

	var a *Activities
	val, err := env.ExecuteActivity(a.RunPipeline, "Build a CLI tool")
	require.NoError(t, err)

	var summary RunSummary
	require.NoError(t, val.Get(&summary))
	assert.Equal(t, "failed", summary.State)
	assert.Equal(t, "analyze", summary.FailedStage)
}

func TestSummarize(t *testing.T) {
	res := orchestrator.New(orchestrator.DefaultStages()).Run(context.Background(), "Build a CLI tool")
	s := Summarize(res)

	assert.Equal(t, res.RunID, s.RunID)
	assert.Equal(t, []ArtifactFile{
		{Name: "main.py", Content: "# Placeholder code"},
		{Name: "config.yaml", Content: "# Placeholder config"},
	}, s.Artifacts)

	set, err := toSet(s.Artifacts)
	require.NoError(t, err)
	assert.True(t, set.Equal(res.Final))
}

func TestStepError(t *testing.T) {
	cause := errors.New("disk full")

	run := stepError(StepRunPipeline, cause)
	assert.True(t, run.Fatal())
	assert.ErrorIs(t, run, cause)
	assert.EqualError(t, run, "run_pipeline failed: disk full")

	persist := stepError(StepPersistArtifacts, cause)
	assert.False(t, persist.Fatal())
}

func TestIsBadArtifacts(t *testing.T) {
	assert.True(t, IsBadArtifacts(badArtifactsError("unsafe artifact name", sink.ErrUnsafeName)))
	assert.True(t, IsBadArtifacts(fmt.Errorf("activity: %w", badArtifactsError("invalid artifacts", nil))))
	assert.False(t, IsBadArtifacts(noSinkError()))
	assert.False(t, IsBadArtifacts(errors.New("plain")))
}

func TestTemporalLogger(t *testing.T) {
	tl := logging.NewTestLogger()
	logger := NewTemporalLogger(tl.Logger)

	logger.Info("Pipeline finished", "run_id", "r1", "state", "done")
	child := logger.(log.WithLogger).With("WorkflowID", "wf-1")
	child.Warn("Persisting artifacts failed")

	entries := tl.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "temporal", entries[0].LoggerName)
	assert.Equal(t, "r1", entries[0].ContextMap()["run_id"])
	assert.Equal(t, "wf-1", entries[1].ContextMap()["WorkflowID"])
	tl.AssertLogged(t, zapcore.WarnLevel, "Persisting artifacts failed")
}
