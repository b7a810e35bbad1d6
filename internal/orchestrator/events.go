package orchestrator

import (
	"context"
	"time"
)

// EventKind classifies progress events.
type EventKind string

const (
	EventStageStarted   EventKind = "stage_started"
	EventStageCompleted EventKind = "stage_completed"
	EventStageFailed    EventKind = "stage_failed"
	EventRunFinished    EventKind = "run_finished"
)

// Event reports pipeline progress to observers.
type Event struct {
	RunID    string        `json:"run_id"`
	Kind     EventKind     `json:"kind"`
	Stage    Stage         `json:"stage,omitempty"`
	State    State         `json:"state"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	Error    string        `json:"error,omitempty"`
	Time     time.Time     `json:"time"`
}

// ProgressCallback receives events synchronously on the run's goroutine.
// Callbacks must not block for long.
type ProgressCallback func(ctx context.Context, ev Event)
