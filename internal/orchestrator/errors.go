package orchestrator

import (
	"errors"
	"fmt"
)

// Error kinds, one per stage. Match with errors.Is.
var (
	ErrAnalysis           = errors.New("analysis error")
	ErrPlanning           = errors.New("planning error")
	ErrGeneration         = errors.New("generation error")
	ErrValidationInternal = errors.New("validation internal error")
	ErrOptimization       = errors.New("optimization error")

	// ErrStageTimeout is the cause recorded when a stage exceeds its deadline.
	ErrStageTimeout = errors.New("stage timed out")
)

// StageError is the error carried by a Failed result.
type StageError struct {
	Stage Stage
	Kind  error // one of the Err* stage kinds
	Input any   // the value the stage was invoked with
	Cause error
}

// NewStageError builds a StageError for stage with the matching kind.
func NewStageError(stage Stage, input any, cause error) *StageError {
	return &StageError{Stage: stage, Kind: stage.kind(), Input: input, Cause: cause}
}

func (e *StageError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: stage %s failed", e.Kind, e.Stage)
	}
	return fmt.Sprintf("%s: stage %s: %v", e.Kind, e.Stage, e.Cause)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *StageError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Timeout reports whether the stage failed by exceeding its deadline.
func (e *StageError) Timeout() bool {
	return errors.Is(e.Cause, ErrStageTimeout)
}

// timeoutError wraps both ErrStageTimeout and the context error.
type timeoutError struct {
	stage Stage
	err   error
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("stage %s timed out: %v", e.stage, e.err)
}

func (e *timeoutError) Unwrap() []error { return []error{ErrStageTimeout, e.err} }

// panicError records a recovered panic from a strategy.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("strategy panicked: %v", e.value)
}
