package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration read from YAML or AGENTD_* variables.
// Bare integers are seconds, so AGENTD_PIPELINE_STAGE_TIMEOUT=45 works.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}

	var parsed time.Duration
	if secs, err := strconv.Atoi(s); err == nil {
		parsed = time.Duration(secs) * time.Second
	} else if parsed, err = time.ParseDuration(s); err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) String() string {
	return d.Duration().String()
}

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret is a credential such as llm.api_key. It prints as [REDACTED] and
// never marshals its value.
//
// A value of the form "env:NAME" is resolved from the environment when
// loaded, so the config file can point at OPENAI_API_KEY without copying it.
type Secret string

const (
	redacted     = "[REDACTED]"
	secretEnvRef = "env:"
)

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return "config.Secret(" + redacted + ")"
}

// Value returns the raw credential for the client that needs it.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a credential was configured.
func (s Secret) IsSet() bool {
	return s != ""
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Secret) UnmarshalText(text []byte) error {
	v := strings.TrimSpace(string(text))
	if name, ok := strings.CutPrefix(v, secretEnvRef); ok {
		if name == "" {
			return fmt.Errorf("secret reference %q names no variable", v)
		}
		v = os.Getenv(name)
	}
	*s = Secret(v)
	return nil
}
