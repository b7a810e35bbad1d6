package logging

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentd/internal/config"
)

// TraceLevel sits below Debug and is filtered by every preset level.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a level name, accepting "trace" and ignoring case.
// An empty name means info.
func LevelFromString(level string) (zapcore.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "":
		return zapcore.InfoLevel, nil
	case "trace":
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// Config holds logging configuration.
type Config struct {
	Level      zapcore.Level
	Format     string // "json" or "console"
	Output     OutputConfig
	Sampling   SamplingConfig
	Caller     CallerConfig
	Stacktrace StacktraceConfig
	Fields     map[string]string
	Redaction  RedactionConfig
}

// OutputConfig controls where logs are written.
type OutputConfig struct {
	Stdout bool
	OTEL   bool

	// Writer replaces os.Stdout for the console output when set.
	Writer zapcore.WriteSyncer
}

// SamplingConfig controls log volume reduction.
type SamplingConfig struct {
	Enabled    bool
	Tick       config.Duration
	Initial    int
	Thereafter int
}

// CallerConfig controls caller information in logs.
type CallerConfig struct {
	Enabled bool
	Skip    int
}

// StacktraceConfig controls stacktrace inclusion.
type StacktraceConfig struct {
	Level zapcore.Level
}

// RedactionConfig controls sensitive data redaction.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// NewDefaultConfig returns production defaults.
//
// Sampling is off: every pipeline stage must produce its log record, and
// sampling would drop records from busy servers.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{
			Stdout: true,
		},
		Sampling: SamplingConfig{
			Enabled:    false,
			Tick:       config.Duration(time.Second),
			Initial:    100,
			Thereafter: 10,
		},
		Caller: CallerConfig{
			Enabled: true,
			Skip:    1,
		},
		Stacktrace: StacktraceConfig{
			Level: zapcore.ErrorLevel,
		},
		Fields: map[string]string{
			"service": "agentd",
		},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key",
				"authorization", "bearer", "credential", "private_key",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
				`sk-[A-Za-z0-9_-]{16,}`,
			},
		},
	}
}

// FromAppConfig derives a logging config from the operator-facing settings.
func FromAppConfig(lc config.LoggingConfig) (*Config, error) {
	cfg := NewDefaultConfig()

	level, err := LevelFromString(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	cfg.Level = level

	if lc.Format != "" {
		cfg.Format = lc.Format
	}
	cfg.Output.OTEL = lc.OTEL

	return cfg, cfg.Validate()
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Stdout && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled (stdout or otel)")
	}
	if c.Sampling.Enabled && c.Sampling.Tick.Duration() <= 0 {
		return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		return fmt.Errorf("caller skip must be >= 0, got %d", c.Caller.Skip)
	}

	if c.Redaction.Enabled {
		for _, pattern := range c.Redaction.Patterns {
			if len(pattern) > maxPatternLen {
				return fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, pattern)
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid redaction pattern %q: %w", pattern, err)
			}
		}
	}

	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}

	return nil
}
