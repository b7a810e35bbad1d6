package orchestrator

import "context"

// DefaultPlanSteps is the generic plan returned by DefaultPlanner.
var DefaultPlanSteps = []string{
	"Step 1: Define the problem",
	"Step 2: Design the solution",
	"Step 3: Implement the code",
	"Step 4: Test the solution",
	"Step 5: Deploy the application",
}

// DefaultArtifacts returns the placeholder payload produced by DefaultGenerator.
func DefaultArtifacts() ArtifactSet {
	return MustArtifactSet(
		Artifact{Name: "main.py", Content: "# Placeholder code"},
		Artifact{Name: "config.yaml", Content: "# Placeholder config"},
	)
}

// DefaultAnalyzer extracts nothing.
type DefaultAnalyzer struct{}

func (DefaultAnalyzer) Analyze(_ context.Context, req Request) (RequirementSet, error) {
	if err := req.Validate(); err != nil {
		return RequirementSet{}, err
	}
	return EmptyRequirementSet(), nil
}

// DefaultPlanner returns DefaultPlanSteps for any well-formed input.
type DefaultPlanner struct{}

func (DefaultPlanner) Plan(_ context.Context, reqs RequirementSet) (Plan, error) {
	if err := reqs.Validate(); err != nil {
		return Plan{}, err
	}
	return NewPlan(DefaultPlanSteps...), nil
}

// DefaultGenerator returns DefaultArtifacts regardless of the plan.
type DefaultGenerator struct{}

func (DefaultGenerator) Generate(context.Context, Plan) (ArtifactSet, error) {
	return DefaultArtifacts(), nil
}

// DefaultValidator accepts everything.
type DefaultValidator struct{}

func (DefaultValidator) Validate(context.Context, ArtifactSet) (ValidationReport, error) {
	return Valid(), nil
}

// DefaultOptimizer is the identity.
type DefaultOptimizer struct{}

func (DefaultOptimizer) Optimize(_ context.Context, artifacts ArtifactSet, _ ValidationReport) (ArtifactSet, error) {
	return artifacts, nil
}
