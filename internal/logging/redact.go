package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentd/internal/config"
)

const maxPatternLen = 200

// Secret creates a field for a config.Secret showing only its length.
func Secret(key string, val config.Secret) zap.Field {
	return RedactedString(key, val.Value())
}

// RedactedString creates a field with the value replaced by its length.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// RedactingEncoder wraps a zapcore.Encoder to redact sensitive fields.
type RedactingEncoder struct {
	zapcore.Encoder
	fields   map[string]bool
	patterns []*regexp.Regexp
}

// NewRedactingEncoder wraps an encoder with redaction rules.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}

	fields := make(map[string]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		fields[strings.ToLower(f)] = true
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return &RedactingEncoder{Encoder: base, fields: fields, patterns: patterns}, nil
}

func (e *RedactingEncoder) sensitiveKey(key string) bool {
	return e.fields[strings.ToLower(key)]
}

// EncodeEntry redacts fields passed at the call site. The embedded encoder
// would otherwise add them to its own clone and bypass the Add* overrides.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	redacted := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		redacted[i] = e.redactField(f)
	}
	return e.Encoder.EncodeEntry(ent, redacted)
}

func (e *RedactingEncoder) redactField(f zapcore.Field) zapcore.Field {
	if e.sensitiveKey(f.Key) {
		return zap.String(f.Key, "[REDACTED]")
	}
	if f.Type == zapcore.StringType {
		for _, re := range e.patterns {
			if re.MatchString(f.String) {
				return zap.String(f.Key, "[REDACTED:pattern]")
			}
		}
	}
	return f
}

// AddString redacts sensitive keys and values matching a pattern.
func (e *RedactingEncoder) AddString(key, val string) {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return
	}
	for _, re := range e.patterns {
		if re.MatchString(val) {
			e.Encoder.AddString(key, "[REDACTED:pattern]")
			return
		}
	}
	e.Encoder.AddString(key, val)
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitiveKey(key) {
		e.Encoder.AddByteString(key, []byte("[REDACTED]"))
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.sensitiveKey(key) {
		e.Encoder.AddBinary(key, []byte("[REDACTED]"))
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected redacts the whole value when the key is sensitive.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// Clone creates a copy of the encoder.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder:  e.Encoder.Clone(),
		fields:   e.fields,
		patterns: e.patterns,
	}
}
