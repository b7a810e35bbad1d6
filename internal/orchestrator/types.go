package orchestrator

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap/zapcore"
)

var (
	// ErrInvalidRequest is returned for request values that are not valid UTF-8 text.
	ErrInvalidRequest = errors.New("request is not valid UTF-8 text")

	// ErrMalformedRequirements is returned when a RequirementSet lacks one of its collections.
	ErrMalformedRequirements = errors.New("requirement set is missing a collection")

	// ErrEmptyPlan is returned when a plan has no steps.
	ErrEmptyPlan = errors.New("plan has no steps")

	// ErrEmptyArtifacts is returned when a generator produces no artifacts.
	ErrEmptyArtifacts = errors.New("artifact set is empty")

	// ErrInconsistentReport is returned for an invalid report without issues.
	ErrInconsistentReport = errors.New("invalid report must carry at least one issue")

	// ErrKeySetChanged is returned when an optimizer adds or drops artifacts.
	ErrKeySetChanged = errors.New("optimizer changed the artifact key set")
)

// Request is the caller's free-form instruction. Empty is valid.
type Request string

// Validate reports whether the request is usable text.
func (r Request) Validate() error {
	if !utf8.ValidString(string(r)) {
		return ErrInvalidRequest
	}
	return nil
}

// IsBlank reports whether the request has no non-space content.
func (r Request) IsBlank() bool {
	return strings.TrimSpace(string(r)) == ""
}

// RequirementSet is the structured result of analysis. Order within each
// collection reflects extraction order; duplicates are allowed.
type RequirementSet struct {
	Requirements []string `json:"requirements"`
	Constraints  []string `json:"constraints"`
	Outcomes     []string `json:"outcomes"`
}

// NewRequirementSet returns a set whose collections are non-nil.
func NewRequirementSet(requirements, constraints, outcomes []string) RequirementSet {
	return RequirementSet{
		Requirements: cloneStrings(requirements),
		Constraints:  cloneStrings(constraints),
		Outcomes:     cloneStrings(outcomes),
	}
}

// EmptyRequirementSet returns a well-formed set with no entries.
func EmptyRequirementSet() RequirementSet {
	return NewRequirementSet(nil, nil, nil)
}

// Validate reports a malformed set: every collection must be present.
func (r RequirementSet) Validate() error {
	switch {
	case r.Requirements == nil:
		return fmt.Errorf("%w: requirements", ErrMalformedRequirements)
	case r.Constraints == nil:
		return fmt.Errorf("%w: constraints", ErrMalformedRequirements)
	case r.Outcomes == nil:
		return fmt.Errorf("%w: outcomes", ErrMalformedRequirements)
	}
	return nil
}

// IsEmpty reports whether every collection is empty.
func (r RequirementSet) IsEmpty() bool {
	return len(r.Requirements) == 0 && len(r.Constraints) == 0 && len(r.Outcomes) == 0
}

// Clone returns a deep copy. Nil collections stay nil so malformed input
// remains detectable downstream.
func (r RequirementSet) Clone() RequirementSet {
	return RequirementSet{
		Requirements: slices.Clone(r.Requirements),
		Constraints:  slices.Clone(r.Constraints),
		Outcomes:     slices.Clone(r.Outcomes),
	}
}

// Equal reports element-wise equality.
func (r RequirementSet) Equal(o RequirementSet) bool {
	return slices.Equal(r.Requirements, o.Requirements) &&
		slices.Equal(r.Constraints, o.Constraints) &&
		slices.Equal(r.Outcomes, o.Outcomes)
}

// String renders the set the way the CLI prints it.
func (r RequirementSet) String() string {
	return fmt.Sprintf("{requirements: %s, constraints: %s, outcomes: %s}",
		quoteList(r.Requirements), quoteList(r.Constraints), quoteList(r.Outcomes))
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (r RequirementSet) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if err := enc.AddArray("requirements", stringArray(r.Requirements)); err != nil {
		return err
	}
	if err := enc.AddArray("constraints", stringArray(r.Constraints)); err != nil {
		return err
	}
	return enc.AddArray("outcomes", stringArray(r.Outcomes))
}

// Plan is an ordered list of step descriptions; order is execution order.
type Plan struct {
	Steps []string `json:"steps"`
}

// NewPlan copies steps into a new plan.
func NewPlan(steps ...string) Plan {
	return Plan{Steps: cloneStrings(steps)}
}

// Len returns the number of steps.
func (p Plan) Len() int { return len(p.Steps) }

// Clone returns a deep copy.
func (p Plan) Clone() Plan {
	return Plan{Steps: slices.Clone(p.Steps)}
}

// Equal reports step-wise equality.
func (p Plan) Equal(o Plan) bool {
	return slices.Equal(p.Steps, o.Steps)
}

func (p Plan) String() string {
	return quoteList(p.Steps)
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (p Plan) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("count", len(p.Steps))
	return enc.AddArray("steps", stringArray(p.Steps))
}

// ValidationReport is the validator's verdict. An invalid report always
// carries at least one issue.
type ValidationReport struct {
	Valid  bool     `json:"is_valid"`
	Issues []string `json:"issues"`
}

// Valid returns a passing report, optionally carrying advisory issues.
func Valid(notes ...string) ValidationReport {
	return ValidationReport{Valid: true, Issues: cloneStrings(notes)}
}

// Invalid returns a failing report.
func Invalid(issues ...string) ValidationReport {
	return ValidationReport{Valid: false, Issues: cloneStrings(issues)}
}

// Check enforces the report invariant.
func (v ValidationReport) Check() error {
	if !v.Valid && len(v.Issues) == 0 {
		return ErrInconsistentReport
	}
	return nil
}

// Clone returns a deep copy.
func (v ValidationReport) Clone() ValidationReport {
	return ValidationReport{Valid: v.Valid, Issues: cloneStrings(v.Issues)}
}

// Equal reports equality of verdict and issues.
func (v ValidationReport) Equal(o ValidationReport) bool {
	return v.Valid == o.Valid && slices.Equal(v.Issues, o.Issues)
}

func (v ValidationReport) String() string {
	return fmt.Sprintf("{is_valid: %t, issues: %s}", v.Valid, quoteList(v.Issues))
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (v ValidationReport) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBool("is_valid", v.Valid)
	return enc.AddArray("issues", stringArray(v.Issues))
}

// cloneStrings copies s, returning an empty non-nil slice for nil input.
func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

type stringArray []string

func (a stringArray) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, s := range a {
		enc.AppendString(s)
	}
	return nil
}
