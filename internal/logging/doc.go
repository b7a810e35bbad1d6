// Package logging provides structured logging for agentd.
//
// The Logger wraps Zap with:
//   - a custom Trace level (-2, below Debug)
//   - stdout and optional OpenTelemetry output
//   - context field injection (trace_id, span_id, run.id, request.id)
//   - secret redaction at the encoder
//   - optional level-aware sampling (errors never sampled)
//
// Loggers are always passed explicitly. There is no package-level logger.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "stage completed", zap.String("stage", "plan"))
//
// Tests use NewTestLogger, which records every entry in memory:
//
//	tl := logging.NewTestLogger()
//	tl.AssertLogged(t, zapcore.InfoLevel, "stage completed")
package logging
