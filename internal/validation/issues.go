// Package validation provides a rule-based Validator for artifact sets.
package validation

import "fmt"

// Severity decides whether an issue invalidates the report.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single finding from a rule.
type Issue struct {
	Rule     string
	Artifact string // empty for set-level issues
	Severity Severity
	Message  string
}

func (i Issue) String() string {
	prefix := ""
	if i.Severity == SeverityWarning {
		prefix = "warning: "
	}
	if i.Artifact == "" {
		return fmt.Sprintf("%s%s [%s]", prefix, i.Message, i.Rule)
	}
	return fmt.Sprintf("%s%s: %s [%s]", prefix, i.Artifact, i.Message, i.Rule)
}

// Issues accumulates findings across rules.
type Issues struct {
	items []Issue
}

// Add records an error-level issue.
func (is *Issues) Add(rule, artifact, message string) {
	is.items = append(is.items, Issue{Rule: rule, Artifact: artifact, Severity: SeverityError, Message: message})
}

// Warn records a warning.
func (is *Issues) Warn(rule, artifact, message string) {
	is.items = append(is.items, Issue{Rule: rule, Artifact: artifact, Severity: SeverityWarning, Message: message})
}

// Append adds already built issues.
func (is *Issues) Append(issues ...Issue) {
	is.items = append(is.items, issues...)
}

// HasErrors reports whether any error-level issue was recorded.
func (is *Issues) HasErrors() bool {
	for _, i := range is.items {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// All returns the recorded issues in order.
func (is *Issues) All() []Issue {
	out := make([]Issue, len(is.items))
	copy(out, is.items)
	return out
}

// Strings renders every issue.
func (is *Issues) Strings() []string {
	out := make([]string, len(is.items))
	for i, issue := range is.items {
		out[i] = issue.String()
	}
	return out
}
