// Package planning provides Planner strategies.
package planning

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// Phase groups plan steps. Phases always appear in declaration order.
type Phase int

const (
	PhaseDefine Phase = iota
	PhaseDesign
	PhaseImplement
	PhaseTest
	PhaseDeploy
)

var phaseNames = [...]string{"define", "design", "implement", "test", "deploy"}

func (p Phase) String() string {
	if p < PhaseDefine || p > PhaseDeploy {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Phases returns every phase in execution order.
func Phases() []Phase {
	return []Phase{PhaseDefine, PhaseDesign, PhaseImplement, PhaseTest, PhaseDeploy}
}

// Step is a plan step before numbering.
type Step struct {
	Phase Phase
	Text  string
}

// RequirementPlanner derives steps from the requirement set: constraints
// extend the define phase, each requirement gets implement and test steps,
// and each outcome becomes a delivery step. An empty set yields the
// generic five-step plan.
type RequirementPlanner struct{}

// NewRequirementPlanner creates a planner.
func NewRequirementPlanner() *RequirementPlanner {
	return &RequirementPlanner{}
}

// Steps returns the unnumbered steps grouped by phase.
func (p *RequirementPlanner) Steps(reqs orchestrator.RequirementSet) []Step {
	steps := []Step{{PhaseDefine, "Define the problem"}}
	for _, c := range reqs.Constraints {
		steps = append(steps, Step{PhaseDefine, "Respect constraint: " + c})
	}

	steps = append(steps, Step{PhaseDesign, "Design the solution"})

	if len(reqs.Requirements) == 0 {
		steps = append(steps, Step{PhaseImplement, "Implement the code"})
	}
	for _, r := range reqs.Requirements {
		steps = append(steps, Step{PhaseImplement, "Implement requirement: " + r})
	}

	if len(reqs.Requirements) == 0 {
		steps = append(steps, Step{PhaseTest, "Test the solution"})
	}
	for _, r := range reqs.Requirements {
		steps = append(steps, Step{PhaseTest, "Test requirement: " + r})
	}

	if len(reqs.Outcomes) == 0 {
		steps = append(steps, Step{PhaseDeploy, "Deploy the application"})
	}
	for _, o := range reqs.Outcomes {
		steps = append(steps, Step{PhaseDeploy, "Deliver outcome: " + o})
	}

	return steps
}

// Plan implements orchestrator.Planner.
func (p *RequirementPlanner) Plan(_ context.Context, reqs orchestrator.RequirementSet) (orchestrator.Plan, error) {
	if err := reqs.Validate(); err != nil {
		return orchestrator.Plan{}, err
	}

	steps := p.Steps(reqs)
	numbered := make([]string, len(steps))
	for i, s := range steps {
		numbered[i] = fmt.Sprintf("Step %d: %s", i+1, s.Text)
	}
	return orchestrator.NewPlan(numbered...), nil
}

var _ orchestrator.Planner = (*RequirementPlanner)(nil)
