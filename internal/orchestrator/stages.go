package orchestrator

import (
	"context"
	"fmt"
)

// Analyzer turns a request into a RequirementSet. Implementations must be
// deterministic for a given request.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (RequirementSet, error)
}

// Planner turns requirements into an ordered plan.
type Planner interface {
	Plan(ctx context.Context, reqs RequirementSet) (Plan, error)
}

// Generator turns a plan into artifacts.
type Generator interface {
	Generate(ctx context.Context, plan Plan) (ArtifactSet, error)
}

// Validator checks artifacts. Problems with individual artifacts belong in
// the report; an error means the validator itself is broken.
type Validator interface {
	Validate(ctx context.Context, artifacts ArtifactSet) (ValidationReport, error)
}

// Optimizer rewrites validated artifacts without changing the key set.
type Optimizer interface {
	Optimize(ctx context.Context, artifacts ArtifactSet, report ValidationReport) (ArtifactSet, error)
}

// Stages bundles one strategy per stage.
type Stages struct {
	Analyzer  Analyzer
	Planner   Planner
	Generator Generator
	Validator Validator
	Optimizer Optimizer
}

// DefaultStages returns the fallback strategy for every stage.
func DefaultStages() Stages {
	return Stages{
		Analyzer:  DefaultAnalyzer{},
		Planner:   DefaultPlanner{},
		Generator: DefaultGenerator{},
		Validator: DefaultValidator{},
		Optimizer: DefaultOptimizer{},
	}
}

// withDefaults fills nil strategies with the fallbacks.
func (s Stages) withDefaults() Stages {
	d := DefaultStages()
	if s.Analyzer == nil {
		s.Analyzer = d.Analyzer
	}
	if s.Planner == nil {
		s.Planner = d.Planner
	}
	if s.Generator == nil {
		s.Generator = d.Generator
	}
	if s.Validator == nil {
		s.Validator = d.Validator
	}
	if s.Optimizer == nil {
		s.Optimizer = d.Optimizer
	}
	return s
}

// Describe returns the concrete strategy type per stage.
func (s Stages) Describe() map[Stage]string {
	return map[Stage]string{
		StageAnalyze:  fmt.Sprintf("%T", s.Analyzer),
		StagePlan:     fmt.Sprintf("%T", s.Planner),
		StageGenerate: fmt.Sprintf("%T", s.Generator),
		StageValidate: fmt.Sprintf("%T", s.Validator),
		StageOptimize: fmt.Sprintf("%T", s.Optimizer),
	}
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, req Request) (RequirementSet, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, req Request) (RequirementSet, error) {
	return f(ctx, req)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, reqs RequirementSet) (Plan, error)

func (f PlannerFunc) Plan(ctx context.Context, reqs RequirementSet) (Plan, error) {
	return f(ctx, reqs)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, plan Plan) (ArtifactSet, error)

func (f GeneratorFunc) Generate(ctx context.Context, plan Plan) (ArtifactSet, error) {
	return f(ctx, plan)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, artifacts ArtifactSet) (ValidationReport, error)

func (f ValidatorFunc) Validate(ctx context.Context, artifacts ArtifactSet) (ValidationReport, error) {
	return f(ctx, artifacts)
}

// OptimizerFunc adapts a function to Optimizer.
type OptimizerFunc func(ctx context.Context, artifacts ArtifactSet, report ValidationReport) (ArtifactSet, error)

func (f OptimizerFunc) Optimize(ctx context.Context, artifacts ArtifactSet, report ValidationReport) (ArtifactSet, error) {
	return f(ctx, artifacts, report)
}
