package workflows

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"
)

// Step names a PipelineWorkflow activity. It labels metrics and errors.
type Step string

const (
	StepRunPipeline      Step = "run_pipeline"
	StepPersistArtifacts Step = "persist_artifacts"
)

// Application error types that Temporal must not retry.
const (
	errTypeNoSink       = "NoSink"
	errTypeBadArtifacts = "BadArtifacts"
)

// StepError reports a failed workflow step. Only a failed run_pipeline step
// fails the workflow; a persist failure is carried in PipelineOutput.Errors.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the step failure ends the workflow.
func (e *StepError) Fatal() bool {
	return e.Step == StepRunPipeline
}

func stepError(step Step, err error) *StepError {
	return &StepError{Step: step, Err: err}
}

func noSinkError() error {
	return temporal.NewNonRetryableApplicationError("no artifact sink configured", errTypeNoSink, nil)
}

func badArtifactsError(msg string, cause error) error {
	return temporal.NewNonRetryableApplicationError(msg, errTypeBadArtifacts, cause)
}

// IsBadArtifacts reports whether err came from an artifact set the sink
// refused to write.
func IsBadArtifacts(err error) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == errTypeBadArtifacts
}
