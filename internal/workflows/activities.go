package workflows

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/sink"
)

// Pipeline runs a request to completion.
type Pipeline interface {
	Run(ctx context.Context, req orchestrator.Request) *orchestrator.Result
}

// ArtifactWriter persists a run's final artifacts.
type ArtifactWriter interface {
	Write(ctx context.Context, runID string, set orchestrator.ArtifactSet) (sink.Result, error)
}

// Activities holds the dependencies of the workflow activities. Sink may be
// nil when persisting is disabled.
type Activities struct {
	Pipeline Pipeline
	Sink     ArtifactWriter
	Metrics  *Metrics
}

// Registry is satisfied by worker.Worker and the SDK test environment.
type Registry interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

// Register adds PipelineWorkflow and the activities to a worker.
func Register(r Registry, a *Activities) {
	r.RegisterWorkflow(PipelineWorkflow)
	r.RegisterActivity(a)
}

// RunPipeline executes the orchestrator inside the activity's context, so
// workflow cancellation cancels the run.
func (a *Activities) RunPipeline(ctx context.Context, request string) (*RunSummary, error) {
	logger := activity.GetLogger(ctx)
	start := time.Now()

	res := a.Pipeline.Run(ctx, orchestrator.Request(request))
	summary := Summarize(res)

	a.Metrics.RecordActivity(ctx, StepRunPipeline, time.Since(start), nil)
	a.Metrics.RecordRun(ctx, summary.State)
	logger.Info("Pipeline run complete", "run_id", summary.RunID, "state", summary.State)
	return &summary, nil
}

// PersistArtifacts writes artifacts through the sink.
func (a *Activities) PersistArtifacts(ctx context.Context, in PersistInput) (out *PersistOutput, err error) {
	start := time.Now()
	defer func() { a.Metrics.RecordActivity(ctx, StepPersistArtifacts, time.Since(start), err) }()

	if a.Sink == nil {
		return nil, noSinkError()
	}
	set, err := toSet(in.Artifacts)
	if err != nil {
		return nil, badArtifactsError("invalid artifacts", err)
	}

	res, err := a.Sink.Write(ctx, in.RunID, set)
	if err != nil {
		if errors.Is(err, sink.ErrUnsafeName) {
			return nil, badArtifactsError("unsafe artifact name", err)
		}
		return nil, err
	}
	return &PersistOutput{Dir: res.Dir, Files: res.Files, Commit: res.Commit}, nil
}
