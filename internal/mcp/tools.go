package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

type artifact struct {
	Name    string `json:"name" jsonschema:"File name relative to the output directory"`
	Content string `json:"content" jsonschema:"File content"`
}

type runPipelineInput struct {
	Request string `json:"request" jsonschema:"Natural-language description of what to build"`
}

type runPipelineOutput struct {
	RunID        string     `json:"run_id" jsonschema:"Run identifier"`
	State        string     `json:"state" jsonschema:"Terminal state: done, rejected, failed or cancelled"`
	Requirements []string   `json:"requirements" jsonschema:"Extracted requirements"`
	Constraints  []string   `json:"constraints" jsonschema:"Extracted constraints"`
	Outcomes     []string   `json:"outcomes" jsonschema:"Expected outcomes"`
	Plan         []string   `json:"plan" jsonschema:"Ordered plan steps"`
	Valid        bool       `json:"is_valid" jsonschema:"Validation verdict"`
	Issues       []string   `json:"issues" jsonschema:"Validation issues"`
	Artifacts    []artifact `json:"artifacts" jsonschema:"Final artifacts in generation order"`
	Error        string     `json:"error,omitempty" jsonschema:"Failure description when state is failed or cancelled"`
	FailedStage  string     `json:"failed_stage,omitempty" jsonschema:"Stage that failed"`
	Fingerprint  string     `json:"fingerprint" jsonschema:"Hash of plan, artifacts and report"`
}

type describeAgentInput struct{}

type describeAgentOutput struct {
	Name                string            `json:"name" jsonschema:"Agent name"`
	Capabilities        []string          `json:"capabilities" jsonschema:"Advertised capabilities"`
	OperatingPrinciples []string          `json:"operating_principles" jsonschema:"Operating principles"`
	Strategies          map[string]string `json:"strategies" jsonschema:"Strategy implementation per stage"`
}

type validateArtifactsInput struct {
	Artifacts []artifact `json:"artifacts" jsonschema:"Files to validate"`
}

type validateArtifactsOutput struct {
	Valid  bool     `json:"is_valid" jsonschema:"Validation verdict"`
	Issues []string `json:"issues" jsonschema:"Validation issues"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "run_pipeline",
		Description: "Run a request through analysis, planning, generation, validation and optimization",
	}, instrument(s, "run_pipeline", s.runPipeline))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "describe_agent",
		Description: "Describe the agent profile and the strategy used for each stage",
	}, instrument(s, "describe_agent", s.describeAgent))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "validate_artifacts",
		Description: "Validate a set of files with the configured validator without running the pipeline",
	}, instrument(s, "validate_artifacts", s.validateArtifacts))
}

// instrument wraps a handler with metrics and a log line.
func instrument[In, Out any](s *Server, tool string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, tool)
		res, out, err := h(ctx, req, in)
		s.metrics.DecrementActive(ctx, tool)
		s.metrics.RecordInvocation(ctx, tool, time.Since(start), toolError(res, err))

		fields := []zap.Field{zap.String("tool", tool), zap.Duration("duration", time.Since(start))}
		if err != nil {
			s.logger.Warn(ctx, "tool failed", append(fields, zap.Error(err))...)
		} else {
			s.logger.Debug(ctx, "tool completed", fields...)
		}
		return res, out, err
	}
}

func toolError(res *mcp.CallToolResult, err error) error {
	if err != nil {
		return err
	}
	if res != nil && res.IsError {
		return errToolResult
	}
	return nil
}

func (s *Server) runPipeline(ctx context.Context, _ *mcp.CallToolRequest, in runPipelineInput) (*mcp.CallToolResult, runPipelineOutput, error) {
	res := s.pipeline.Run(ctx, orchestrator.Request(in.Request))
	out := toRunOutput(res)

	text := fmt.Sprintf("Run %s finished %s with %d artifacts", res.RunID, res.State, len(out.Artifacts))
	if res.State == orchestrator.StateFailed || res.State == orchestrator.StateCancelled {
		text = fmt.Sprintf("Run %s %s: %s", res.RunID, res.State, res.Error)
	}
	return &mcp.CallToolResult{
		IsError: !res.State.Succeeded(),
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, out, nil
}

func toRunOutput(res *orchestrator.Result) runPipelineOutput {
	out := runPipelineOutput{
		RunID:        res.RunID,
		State:        string(res.State),
		Requirements: nonNil(res.Requirements.Requirements),
		Constraints:  nonNil(res.Requirements.Constraints),
		Outcomes:     nonNil(res.Requirements.Outcomes),
		Plan:         nonNil(res.Plan.Steps),
		Valid:        res.Report.Valid,
		Issues:       nonNil(res.Report.Issues),
		Artifacts:    toArtifacts(res.Final),
		Error:        res.Error,
		Fingerprint:  res.Fingerprint,
	}
	if se, ok := res.StageError(); ok {
		out.FailedStage = se.Stage.String()
	}
	return out
}

func (s *Server) describeAgent(_ context.Context, _ *mcp.CallToolRequest, _ describeAgentInput) (*mcp.CallToolResult, describeAgentOutput, error) {
	agent := s.pipeline.Agent()
	strategies := make(map[string]string)
	for stage, impl := range s.pipeline.Stages().Describe() {
		strategies[stage.String()] = impl
	}
	out := describeAgentOutput{
		Name:                agent.Name,
		Capabilities:        nonNil(agent.Capabilities),
		OperatingPrinciples: nonNil(agent.OperatingPrinciples),
		Strategies:          strategies,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %s", agent.Name, strings.Join(agent.Capabilities, "; "))}},
	}, out, nil
}

func (s *Server) validateArtifacts(ctx context.Context, _ *mcp.CallToolRequest, in validateArtifactsInput) (*mcp.CallToolResult, validateArtifactsOutput, error) {
	items := make([]orchestrator.Artifact, len(in.Artifacts))
	for i, a := range in.Artifacts {
		items[i] = orchestrator.Artifact{Name: a.Name, Content: a.Content}
	}
	set, err := orchestrator.NewArtifactSet(items...)
	if err != nil {
		return nil, validateArtifactsOutput{}, fmt.Errorf("invalid artifacts: %w", err)
	}

	report, err := s.pipeline.Stages().Validator.Validate(ctx, set)
	if err != nil {
		return nil, validateArtifactsOutput{}, fmt.Errorf("validator failed: %w", err)
	}
	if err := report.Check(); err != nil {
		return nil, validateArtifactsOutput{}, fmt.Errorf("validator failed: %w", err)
	}
	out := validateArtifactsOutput{Valid: report.Valid, Issues: nonNil(report.Issues)}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: report.String()}},
	}, out, nil
}

func toArtifacts(set orchestrator.ArtifactSet) []artifact {
	out := make([]artifact, 0, set.Len())
	for _, a := range set.Artifacts() {
		out = append(out, artifact{Name: a.Name, Content: a.Content})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
