package generation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/llm"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

const generatePrompt = `You are a software engineer. Implement the plan below.
Answer with JSON only: an array of files, each {"name": "relative/path", "content": "file text"}.
Use relative paths without "..". Do not include secrets or credentials.

Plan:
%s
`

// LLMGenerator asks a language model to write the artifacts for a plan.
type LLMGenerator struct {
	client   llm.Completer
	fallback orchestrator.Generator
	logger   *logging.Logger
}

// NewLLMGenerator creates a generator backed by client. fallback, when set,
// is used if the model call fails or returns no usable files.
func NewLLMGenerator(client llm.Completer, fallback orchestrator.Generator, logger *logging.Logger) *LLMGenerator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LLMGenerator{client: client, fallback: fallback, logger: logger.Named("generation")}
}

// Generate implements orchestrator.Generator.
func (g *LLMGenerator) Generate(ctx context.Context, plan orchestrator.Plan) (orchestrator.ArtifactSet, error) {
	set, err := g.generate(ctx, plan)
	if err == nil {
		return set, nil
	}
	if g.fallback != nil && ctx.Err() == nil {
		g.logger.Warn(ctx, "llm generation failed, using fallback", zap.Error(err))
		return g.fallback.Generate(ctx, plan)
	}
	return orchestrator.ArtifactSet{}, err
}

func (g *LLMGenerator) generate(ctx context.Context, plan orchestrator.Plan) (orchestrator.ArtifactSet, error) {
	var files []orchestrator.Artifact
	prompt := fmt.Sprintf(generatePrompt, strings.Join(plan.Steps, "\n"))
	if err := llm.CompleteJSON(ctx, g.client, prompt, &files); err != nil {
		return orchestrator.ArtifactSet{}, fmt.Errorf("llm generation: %w", err)
	}
	if len(files) == 0 {
		return orchestrator.ArtifactSet{}, fmt.Errorf("llm generation: %w", orchestrator.ErrEmptyArtifacts)
	}

	set, err := orchestrator.NewArtifactSet(files...)
	if err != nil {
		return orchestrator.ArtifactSet{}, fmt.Errorf("llm generation: %w", err)
	}
	return set, nil
}

var _ orchestrator.Generator = (*LLMGenerator)(nil)
