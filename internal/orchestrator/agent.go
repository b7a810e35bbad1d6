package orchestrator

import (
	"slices"

	"github.com/fyrsmithlabs/agentd/internal/config"
)

// DefaultAgentName is used when no agent profile is configured.
const DefaultAgentName = "MyAgent"

// Agent is the profile reported with every run.
type Agent struct {
	Name                string   `json:"name"`
	Capabilities        []string `json:"capabilities"`
	OperatingPrinciples []string `json:"operating_principles"`
}

// DefaultAgent returns the built-in profile.
func DefaultAgent() Agent {
	return Agent{
		Name:                DefaultAgentName,
		Capabilities:        config.DefaultCapabilities(),
		OperatingPrinciples: config.DefaultOperatingPrinciples(),
	}
}

// AgentFromConfig builds a profile, falling back to defaults for empty fields.
func AgentFromConfig(cfg config.AgentConfig) Agent {
	a := DefaultAgent()
	if cfg.Name != "" {
		a.Name = cfg.Name
	}
	if len(cfg.Capabilities) > 0 {
		a.Capabilities = slices.Clone(cfg.Capabilities)
	}
	if len(cfg.OperatingPrinciples) > 0 {
		a.OperatingPrinciples = slices.Clone(cfg.OperatingPrinciples)
	}
	return a
}

// Clone returns a deep copy.
func (a Agent) Clone() Agent {
	return Agent{
		Name:                a.Name,
		Capabilities:        slices.Clone(a.Capabilities),
		OperatingPrinciples: slices.Clone(a.OperatingPrinciples),
	}
}
