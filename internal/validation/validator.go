package validation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// Validator runs every rule and reports the set invalid when any rule
// records an error-level issue. Warnings are reported on valid sets too.
type Validator struct {
	rules  []Rule
	logger *logging.Logger
}

// New creates a validator. With no rules it uses DefaultRules(nil).
func New(logger *logging.Logger, rules ...Rule) *Validator {
	if len(rules) == 0 {
		rules = DefaultRules(nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Validator{rules: rules, logger: logger.Named("validation")}
}

// Rules returns the rule names in evaluation order.
func (v *Validator) Rules() []string {
	names := make([]string, len(v.rules))
	for i, r := range v.rules {
		names[i] = r.Name()
	}
	return names
}

// Validate implements orchestrator.Validator.
func (v *Validator) Validate(ctx context.Context, set orchestrator.ArtifactSet) (orchestrator.ValidationReport, error) {
	var issues Issues
	for _, rule := range v.rules {
		if err := ctx.Err(); err != nil {
			return orchestrator.ValidationReport{}, err
		}
		issues.Append(v.check(ctx, rule, set)...)
	}

	if issues.HasErrors() {
		return orchestrator.Invalid(issues.Strings()...), nil
	}
	return orchestrator.Valid(issues.Strings()...), nil
}

// check runs one rule, converting a panic into an issue so one broken rule
// cannot fail the stage.
func (v *Validator) check(ctx context.Context, rule Rule, set orchestrator.ArtifactSet) (issues []Issue) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn(ctx, "validation rule panicked", zap.String("rule", rule.Name()), zap.Any("panic", r))
			issues = []Issue{{
				Rule:     rule.Name(),
				Severity: SeverityError,
				Message:  fmt.Sprintf("rule could not be evaluated: %v", r),
			}}
		}
	}()
	return rule.Check(ctx, set)
}

var _ orchestrator.Validator = (*Validator)(nil)
