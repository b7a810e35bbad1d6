package orchestrator

import "fmt"

// Stage identifies one of the five pipeline stages.
type Stage string

const (
	StageAnalyze  Stage = "analyze"
	StagePlan     Stage = "plan"
	StageGenerate Stage = "generate"
	StageValidate Stage = "validate"
	StageOptimize Stage = "optimize"
)

// AllStages returns the stages in execution order.
func AllStages() []Stage {
	return []Stage{StageAnalyze, StagePlan, StageGenerate, StageValidate, StageOptimize}
}

// ParseStage converts a name to a Stage.
func ParseStage(s string) (Stage, error) {
	for _, st := range AllStages() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

func (s Stage) String() string { return string(s) }

// State returns the orchestrator state while s is running.
func (s Stage) State() State {
	switch s {
	case StageAnalyze:
		return StateAnalyzing
	case StagePlan:
		return StatePlanning
	case StageGenerate:
		return StateGenerating
	case StageValidate:
		return StateValidating
	case StageOptimize:
		return StateOptimizing
	default:
		return StateIdle
	}
}

// kind returns the sentinel error for failures in s.
func (s Stage) kind() error {
	switch s {
	case StageAnalyze:
		return ErrAnalysis
	case StagePlan:
		return ErrPlanning
	case StageGenerate:
		return ErrGeneration
	case StageValidate:
		return ErrValidationInternal
	default:
		return ErrOptimization
	}
}

// State is a node of the orchestrator state machine.
type State string

const (
	StateIdle       State = "idle"
	StateAnalyzing  State = "analyzing"
	StatePlanning   State = "planning"
	StateGenerating State = "generating"
	StateValidating State = "validating"
	StateOptimizing State = "optimizing"
	StateRejected   State = "rejected"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// IsTerminal reports whether no further transition can occur.
func (s State) IsTerminal() bool {
	switch s {
	case StateRejected, StateDone, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Succeeded reports whether the run reached an outcome that is not an error.
// Rejected counts: invalid output is a valid pipeline result.
func (s State) Succeeded() bool {
	return s == StateDone || s == StateRejected
}

func (s State) String() string { return string(s) }
