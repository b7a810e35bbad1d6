package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// WorkflowOptions bounds the activities started by PipelineWorkflow.
type WorkflowOptions struct {
	RunTimeout     time.Duration
	PersistTimeout time.Duration
	PersistRetries int32
}

// DefaultWorkflowOptions covers five stages at the default stage timeout.
func DefaultWorkflowOptions() WorkflowOptions {
	return WorkflowOptions{
		RunTimeout:     5 * time.Minute,
		PersistTimeout: time.Minute,
		PersistRetries: 3,
	}
}

// PipelineWorkflow runs one request and, when asked, persists the artifacts
// of a Done run.
//
// The pipeline activity is never retried: strategies may call a model and a
// second attempt would be a different run. Persisting is idempotent and is
// retried. A persist failure is reported in the output and does not fail
// the workflow.
func PipelineWorkflow(ctx workflow.Context, in PipelineInput) (*PipelineOutput, error) {
	return pipelineWorkflow(ctx, in, DefaultWorkflowOptions())
}

func pipelineWorkflow(ctx workflow.Context, in PipelineInput, opts WorkflowOptions) (*PipelineOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting pipeline workflow", "persist", in.Persist)

	var a *Activities

	runCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: opts.RunTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	var run RunSummary
	if err := workflow.ExecuteActivity(runCtx, a.RunPipeline, in.Request).Get(ctx, &run); err != nil {
		return nil, stepError(StepRunPipeline, err)
	}
	out := &PipelineOutput{Run: run}
	logger.Info("Pipeline finished", "run_id", run.RunID, "state", run.State)

	if !in.Persist || run.State != string(orchestrator.StateDone) {
		return out, nil
	}

	persistCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: opts.PersistTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        opts.PersistRetries,
			NonRetryableErrorTypes: []string{errTypeNoSink, errTypeBadArtifacts},
		},
	})
	var persisted PersistOutput
	err := workflow.ExecuteActivity(persistCtx, a.PersistArtifacts, PersistInput{
		RunID:     run.RunID,
		Artifacts: run.Artifacts,
	}).Get(ctx, &persisted)
	if err != nil {
		werr := stepError(StepPersistArtifacts, err)
		logger.Warn("Persisting artifacts failed", "error", werr, "bad_artifacts", IsBadArtifacts(err))
		out.Errors = append(out.Errors, werr.Error())
		return out, nil
	}
	out.Persist = &persisted
	return out, nil
}
