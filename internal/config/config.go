// Package config provides configuration loading for agentd.
//
// Configuration is read from an optional YAML file and overridden by
// AGENTD_-prefixed environment variables. Missing values fall back to the
// defaults applied by applyDefaults.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Strategy names accepted per stage. "default" is always the fallback.
var (
	AnalyzerStrategies  = []string{"default", "heuristic", "llm"}
	PlannerStrategies   = []string{"default", "requirements"}
	GeneratorStrategies = []string{"default", "template", "llm"}
	ValidatorStrategies = []string{"default", "rules"}
	OptimizerStrategies = []string{"default", "format"}
)

// StageNames are the keys accepted in pipeline.timeouts.
var StageNames = []string{"analyze", "plan", "generate", "validate", "optimize"}

// Config holds the complete agentd configuration.
type Config struct {
	Agent     AgentConfig     `koanf:"agent"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Server    ServerConfig    `koanf:"server"`
	NATS      NATSConfig      `koanf:"nats"`
	Temporal  TemporalConfig  `koanf:"temporal"`
	LLM       LLMConfig       `koanf:"llm"`
	Sink      SinkConfig      `koanf:"sink"`
	Watch     WatchConfig     `koanf:"watch"`
}

// AgentConfig describes the agent profile reported alongside every run.
type AgentConfig struct {
	Name                string   `koanf:"name"`
	Capabilities        []string `koanf:"capabilities"`
	OperatingPrinciples []string `koanf:"operating_principles"`
}

// PipelineConfig selects a strategy per stage and bounds stage execution time.
type PipelineConfig struct {
	Analyzer     string              `koanf:"analyzer"`
	Planner      string              `koanf:"planner"`
	Generator    string              `koanf:"generator"`
	Validator    string              `koanf:"validator"`
	Optimizer    string              `koanf:"optimizer"`
	StageTimeout Duration            `koanf:"stage_timeout"`
	Timeouts     map[string]Duration `koanf:"timeouts"` // per-stage overrides
}

// TimeoutFor returns the timeout for a stage, honoring per-stage overrides.
func (p PipelineConfig) TimeoutFor(stage string) time.Duration {
	if d, ok := p.Timeouts[stage]; ok && d > 0 {
		return d.Duration()
	}
	return p.StageTimeout.Duration()
}

// LoggingConfig holds the subset of logging settings exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // "grpc" or "http/protobuf"
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// NATSConfig controls publishing of run events.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// TemporalConfig holds the Temporal client settings used by the worker.
type TemporalConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// LLMConfig configures the OpenAI-compatible endpoint used by llm strategies.
type LLMConfig struct {
	BaseURL    string   `koanf:"base_url"`
	Model      string   `koanf:"model"`
	APIKey     Secret   `koanf:"api_key"`
	Timeout    Duration `koanf:"timeout"`
	RateLimit  float64  `koanf:"rate_limit"` // requests per second
	Burst      int      `koanf:"burst"`
	MaxRetries int      `koanf:"max_retries"`
}

// SinkConfig controls persisting final artifacts to disk.
type SinkConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Dir         string `koanf:"dir"`
	Commit      bool   `koanf:"commit"`
	AuthorName  string `koanf:"author_name"`
	AuthorEmail string `koanf:"author_email"`
}

// WatchConfig configures the request inbox.
type WatchConfig struct {
	Dir       string `koanf:"dir"`
	Extension string `koanf:"extension"`
}

// DefaultCapabilities are the capabilities advertised when none are configured.
func DefaultCapabilities() []string {
	return []string{
		"Write production-quality code in Python, JavaScript/TypeScript, Bash, and other languages",
		"Design and implement automation workflows and CI/CD pipelines",
		"Debug complex systems and provide root cause analysis",
		"Optimize code for performance, maintainability, and scalability",
		"Generate comprehensive technical documentation",
	}
}

// DefaultOperatingPrinciples are the principles advertised when none are configured.
func DefaultOperatingPrinciples() []string {
	return []string{
		"Technical Accuracy First: Prioritize correct, tested, and validated solutions",
		"Multi-Approach Strategy: Provide multiple implementation options with tradeoffs",
		"Automation-Centric: Default to automated solutions over manual processes",
		"Step-by-Step Execution: Break complex tasks into clear, executable steps",
		"Code-First Communication: Demonstrate concepts through working examples",
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Agent.Name == "" {
		return errors.New("agent.name is required")
	}

	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"pipeline.analyzer", c.Pipeline.Analyzer, AnalyzerStrategies},
		{"pipeline.planner", c.Pipeline.Planner, PlannerStrategies},
		{"pipeline.generator", c.Pipeline.Generator, GeneratorStrategies},
		{"pipeline.validator", c.Pipeline.Validator, ValidatorStrategies},
		{"pipeline.optimizer", c.Pipeline.Optimizer, OptimizerStrategies},
	}
	for _, chk := range checks {
		if !slices.Contains(chk.allowed, chk.value) {
			return fmt.Errorf("%s: unknown strategy %q (allowed: %v)", chk.field, chk.value, chk.allowed)
		}
	}

	if err := checkTimeout("pipeline.stage_timeout", c.Pipeline.StageTimeout); err != nil {
		return err
	}
	for stage, d := range c.Pipeline.Timeouts {
		if !slices.Contains(StageNames, stage) {
			return fmt.Errorf("pipeline.timeouts: unknown stage %q", stage)
		}
		if d == 0 {
			continue
		}
		if err := checkTimeout("pipeline.timeouts."+stage, d); err != nil {
			return err
		}
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if err := checkTimeout("server.shutdown_timeout", c.Server.ShutdownTimeout); err != nil {
		return err
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
	}

	if c.usesLLM() {
		if c.LLM.BaseURL == "" || c.LLM.Model == "" {
			return errors.New("llm.base_url and llm.model are required when an llm strategy is selected")
		}
	}
	if c.LLM.Timeout != 0 {
		if err := checkTimeout("llm.timeout", c.LLM.Timeout); err != nil {
			return err
		}
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}

	if c.Sink.Enabled && c.Sink.Dir == "" {
		return errors.New("sink.dir is required when the sink is enabled")
	}

	return nil
}

// minTimeout catches YAML integers, which decode as nanoseconds.
const minTimeout = time.Millisecond

func checkTimeout(field string, d Duration) error {
	if d.Duration() <= 0 {
		return fmt.Errorf("%s must be positive", field)
	}
	if d.Duration() < minTimeout {
		return fmt.Errorf("%s of %s is below %s; write a unit such as \"30s\"", field, d, minTimeout)
	}
	return nil
}

func (c *Config) usesLLM() bool {
	return c.Pipeline.Analyzer == "llm" || c.Pipeline.Generator == "llm"
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "MyAgent"
	}
	if len(cfg.Agent.Capabilities) == 0 {
		cfg.Agent.Capabilities = DefaultCapabilities()
	}
	if len(cfg.Agent.OperatingPrinciples) == 0 {
		cfg.Agent.OperatingPrinciples = DefaultOperatingPrinciples()
	}

	p := &cfg.Pipeline
	for _, s := range []*string{&p.Analyzer, &p.Planner, &p.Generator, &p.Validator, &p.Optimizer} {
		if *s == "" {
			*s = "default"
		}
	}
	if p.StageTimeout == 0 {
		p.StageTimeout = Duration(30 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "agentd"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "agentd.runs"
	}

	if cfg.Temporal.HostPort == "" {
		cfg.Temporal.HostPort = "localhost:7233"
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = "default"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "agentd-pipeline"
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(60 * time.Second)
	}
	if cfg.LLM.RateLimit == 0 {
		cfg.LLM.RateLimit = 1
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 1
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}

	if cfg.Sink.AuthorName == "" {
		cfg.Sink.AuthorName = "agentd"
	}
	if cfg.Sink.AuthorEmail == "" {
		cfg.Sink.AuthorEmail = "agentd@localhost"
	}

	if cfg.Watch.Extension == "" {
		cfg.Watch.Extension = ".request"
	}
}
