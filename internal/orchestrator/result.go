package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// StageStatus is the outcome of a single stage invocation.
type StageStatus string

const (
	StageOK      StageStatus = "ok"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// StageRecord summarizes one stage of a run.
type StageRecord struct {
	Stage     Stage         `json:"stage"`
	Status    StageStatus   `json:"status"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

// Result is the discriminated outcome of a run. State is always terminal.
//
//   - StateDone: Final holds the optimized artifacts.
//   - StateRejected: Report is invalid and Final equals Artifacts.
//   - StateFailed: Err holds the *StageError.
//   - StateCancelled: Err holds the context error.
type Result struct {
	RunID        string           `json:"run_id"`
	Agent        string           `json:"agent"`
	State        State            `json:"state"`
	Request      Request          `json:"request"`
	Requirements RequirementSet   `json:"requirements"`
	Plan         Plan             `json:"plan"`
	Artifacts    ArtifactSet      `json:"artifacts"`
	Report       ValidationReport `json:"report"`
	Final        ArtifactSet      `json:"final"`
	Err          error            `json:"-"`
	Error        string           `json:"error,omitempty"`
	History      []State          `json:"history"`
	Stages       []StageRecord    `json:"stages"`
	Fingerprint  string           `json:"fingerprint"`
	StartedAt    time.Time        `json:"started_at"`
	Duration     time.Duration    `json:"duration_ns"`
}

// StageError returns the failing stage's error, if any.
func (r *Result) StageError() (*StageError, bool) {
	var se *StageError
	if errors.As(r.Err, &se) {
		return se, true
	}
	return nil, false
}

// Record returns the record for stage, if it ran.
func (r *Result) Record(stage Stage) (StageRecord, bool) {
	for _, rec := range r.Stages {
		if rec.Stage == stage {
			return rec, true
		}
	}
	return StageRecord{}, false
}

// Fingerprint hashes the plan, artifacts and report so that runs with
// deterministic strategies can be compared.
func Fingerprint(plan Plan, artifacts ArtifactSet, report ValidationReport) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	// Encoding these types cannot fail.
	_ = enc.Encode(plan)
	_ = enc.Encode(artifacts)
	_ = enc.Encode(report)
	return hex.EncodeToString(h.Sum(nil))
}
