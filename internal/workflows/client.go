package workflows

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
)

// Submit starts a PipelineWorkflow and returns its handle.
func Submit(ctx context.Context, c client.Client, taskQueue string, in PipelineInput) (client.WorkflowRun, error) {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "agentd-" + uuid.NewString(),
		TaskQueue: taskQueue,
	}, PipelineWorkflow, in)
	if err != nil {
		return nil, fmt.Errorf("starting pipeline workflow: %w", err)
	}
	return run, nil
}
