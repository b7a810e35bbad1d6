// Package orchestrator runs a request through the five-stage agent pipeline.
//
// # Stages
//
//	Analyze → Plan → Generate → Validate → Optimize
//
// Each stage is a capability interface (Analyzer, Planner, Generator,
// Validator, Optimizer). The package ships one default strategy per stage
// that reproduces the baseline behavior; richer strategies live in sibling
// packages and are selected by internal/agent.
//
// # State machine
//
//	Idle → Analyzing → Planning → Generating → Validating → Optimizing → Done
//	                                                      ↘ Rejected
//
// Any stage error moves the run to Failed. Cancellation is observed between
// stages and moves the run to Cancelled. Rejected, Done, Failed and Cancelled
// are terminal. A Rejected run is not an error: the validation report is the
// outcome and the optimizer is skipped.
//
// # Data handoff
//
// RequirementSet, Plan, ArtifactSet and ValidationReport are value types.
// The orchestrator clones every value before handing it to the next stage, so
// no stage observes another stage's later mutation.
//
// # Usage
//
//	o := orchestrator.New(orchestrator.DefaultStages(),
//	    orchestrator.WithLogger(logger),
//	    orchestrator.WithStageTimeout(30*time.Second),
//	)
//	res := o.Run(ctx, "Build a REST API")
//	switch res.State {
//	case orchestrator.StateDone, orchestrator.StateRejected:
//	    // res.Final, res.Report
//	case orchestrator.StateFailed:
//	    // res.Err is a *StageError
//	}
package orchestrator
