package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}

	if stage := StageFromContext(ctx); stage != "" {
		fields = append(fields, zap.String("stage", stage))
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type (
	runCtxKey     struct{}
	stageCtxKey   struct{}
	requestCtxKey struct{}
)

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// RunIDFromContext extracts the pipeline run ID.
func RunIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(runCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithRunID adds a pipeline run ID to context.
// Panics if runID is empty or contains invalid characters.
func WithRunID(ctx context.Context, runID string) context.Context {
	if err := validateID(runID, "runID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// WithStage records the pipeline stage currently executing.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageCtxKey{}, stage)
}

// StageFromContext returns the stage set by WithStage.
func StageFromContext(ctx context.Context) string {
	s, _ := ctx.Value(stageCtxKey{}).(string)
	return s
}

// RequestIDFromContext extracts the transport request ID.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds a transport request ID to context.
// Invalid IDs are dropped rather than propagated.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}
