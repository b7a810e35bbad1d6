// Package agent assembles a configured orchestrator: one strategy per stage,
// the agent profile and stage timeouts.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/analysis"
	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/generation"
	"github.com/fyrsmithlabs/agentd/internal/llm"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/optimization"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/planning"
	"github.com/fyrsmithlabs/agentd/internal/secrets"
	"github.com/fyrsmithlabs/agentd/internal/validation"
)

// Deps are optional collaborators. Zero values are built from config.
type Deps struct {
	Logger   *logging.Logger
	LLM      llm.Completer
	Detector *secrets.Detector
}

// builder resolves shared collaborators at most once.
type builder struct {
	cfg  *config.Config
	deps Deps
}

// BuildStages creates the strategies selected in cfg.Pipeline.
func BuildStages(cfg *config.Config, deps Deps) (orchestrator.Stages, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	b := &builder{cfg: cfg, deps: deps}

	var (
		stages orchestrator.Stages
		err    error
	)
	if stages.Analyzer, err = b.analyzer(cfg.Pipeline.Analyzer); err != nil {
		return stages, fmt.Errorf("analyzer: %w", err)
	}
	if stages.Planner, err = b.planner(cfg.Pipeline.Planner); err != nil {
		return stages, fmt.Errorf("planner: %w", err)
	}
	if stages.Generator, err = b.generator(cfg.Pipeline.Generator); err != nil {
		return stages, fmt.Errorf("generator: %w", err)
	}
	if stages.Validator, err = b.validator(cfg.Pipeline.Validator); err != nil {
		return stages, fmt.Errorf("validator: %w", err)
	}
	if stages.Optimizer, err = b.optimizer(cfg.Pipeline.Optimizer); err != nil {
		return stages, fmt.Errorf("optimizer: %w", err)
	}
	return stages, nil
}

// New builds an orchestrator from cfg. Extra options are applied last.
func New(cfg *config.Config, deps Deps, opts ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}

	stages, err := BuildStages(cfg, deps)
	if err != nil {
		return nil, err
	}

	base := []orchestrator.Option{
		orchestrator.WithLogger(deps.Logger),
		orchestrator.WithAgent(orchestrator.AgentFromConfig(cfg.Agent)),
		orchestrator.WithStageTimeout(cfg.Pipeline.StageTimeout.Duration()),
		orchestrator.WithStageTimeouts(StageTimeouts(cfg.Pipeline)),
	}
	o := orchestrator.New(stages, append(base, opts...)...)

	deps.Logger.Named("agent").Info(context.Background(), "pipeline assembled",
		zap.String("agent", o.Agent().Name),
		zap.Any("strategies", o.Stages().Describe()),
	)
	return o, nil
}

// StageTimeouts converts per-stage overrides to orchestrator stages.
func StageTimeouts(p config.PipelineConfig) map[orchestrator.Stage]time.Duration {
	out := make(map[orchestrator.Stage]time.Duration, len(p.Timeouts))
	for name, d := range p.Timeouts {
		if d.Duration() > 0 {
			out[orchestrator.Stage(name)] = d.Duration()
		}
	}
	return out
}

func (b *builder) completer() (llm.Completer, error) {
	if b.deps.LLM != nil {
		return b.deps.LLM, nil
	}
	client, err := llm.NewFromConfig(b.cfg.LLM, b.deps.Logger)
	if err != nil {
		return nil, err
	}
	b.deps.LLM = client
	return client, nil
}

func (b *builder) analyzer(name string) (orchestrator.Analyzer, error) {
	switch name {
	case "", "default":
		return orchestrator.DefaultAnalyzer{}, nil
	case "heuristic":
		return analysis.NewHeuristicAnalyzer(nil)
	case "llm":
		client, err := b.completer()
		if err != nil {
			return nil, err
		}
		fallback, err := analysis.NewHeuristicAnalyzer(nil)
		if err != nil {
			return nil, err
		}
		return analysis.NewLLMAnalyzer(client, fallback, b.deps.Logger), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

func (b *builder) planner(name string) (orchestrator.Planner, error) {
	switch name {
	case "", "default":
		return orchestrator.DefaultPlanner{}, nil
	case "requirements":
		return planning.NewRequirementPlanner(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

func (b *builder) generator(name string) (orchestrator.Generator, error) {
	switch name {
	case "", "default":
		return orchestrator.DefaultGenerator{}, nil
	case "template":
		return generation.NewTemplateGenerator(b.cfg.Agent.Name), nil
	case "llm":
		client, err := b.completer()
		if err != nil {
			return nil, err
		}
		fallback := generation.NewTemplateGenerator(b.cfg.Agent.Name)
		return generation.NewLLMGenerator(client, fallback, b.deps.Logger), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

func (b *builder) validator(name string) (orchestrator.Validator, error) {
	switch name {
	case "", "default":
		return orchestrator.DefaultValidator{}, nil
	case "rules":
		detector := b.deps.Detector
		if detector == nil {
			d, err := secrets.NewDetector()
			if err != nil {
				return nil, err
			}
			detector = d
		}
		return validation.New(b.deps.Logger, validation.DefaultRules(detector)...), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

func (b *builder) optimizer(name string) (orchestrator.Optimizer, error) {
	switch name {
	case "", "default":
		return orchestrator.DefaultOptimizer{}, nil
	case "format":
		return optimization.NewFormatter(optimization.WithLogger(b.deps.Logger)), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
