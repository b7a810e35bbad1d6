package analysis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/llm"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

const analyzePrompt = `You are a requirements analyst for a software development agent.
Split the request below into three lists and answer with JSON only:
{"requirements": [...], "constraints": [...], "outcomes": [...]}

- requirements: features or behavior that must be built
- constraints: technologies, limits or rules the solution must respect
- outcomes: the end state the requester wants (deployment, availability, goals)

Keep the requester's wording. Use empty lists when nothing applies.

Request:
%s
`

// LLMAnalyzer asks a language model to extract the requirement set.
type LLMAnalyzer struct {
	client   llm.Completer
	fallback orchestrator.Analyzer
	logger   *logging.Logger
}

// NewLLMAnalyzer creates an analyzer backed by client. When fallback is set
// it is used whenever the model call or its output fails.
func NewLLMAnalyzer(client llm.Completer, fallback orchestrator.Analyzer, logger *logging.Logger) *LLMAnalyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LLMAnalyzer{client: client, fallback: fallback, logger: logger.Named("analysis")}
}

type llmRequirements struct {
	Requirements []string `json:"requirements"`
	Constraints  []string `json:"constraints"`
	Outcomes     []string `json:"outcomes"`
}

// Analyze implements orchestrator.Analyzer.
func (a *LLMAnalyzer) Analyze(ctx context.Context, req orchestrator.Request) (orchestrator.RequirementSet, error) {
	if err := req.Validate(); err != nil {
		return orchestrator.RequirementSet{}, err
	}
	if req.IsBlank() {
		return orchestrator.EmptyRequirementSet(), nil
	}

	var out llmRequirements
	err := llm.CompleteJSON(ctx, a.client, fmt.Sprintf(analyzePrompt, req), &out)
	if err != nil {
		if a.fallback != nil && ctx.Err() == nil {
			a.logger.Warn(ctx, "llm analysis failed, using fallback", zap.Error(err))
			return a.fallback.Analyze(ctx, req)
		}
		return orchestrator.RequirementSet{}, fmt.Errorf("llm analysis: %w", err)
	}

	return orchestrator.NewRequirementSet(clean(out.Requirements), clean(out.Constraints), clean(out.Outcomes)), nil
}

func clean(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var _ orchestrator.Analyzer = (*LLMAnalyzer)(nil)
