package workflows

import (
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/logging"
)

// temporalLogger routes SDK and workflow logs into the agentd logger.
// Keyvals arrive as alternating keys and values.
type temporalLogger struct {
	s *zap.SugaredLogger
}

var _ log.Logger = (*temporalLogger)(nil)
var _ log.WithLogger = (*temporalLogger)(nil)

// NewTemporalLogger adapts logger for client.Options.Logger.
func NewTemporalLogger(logger *logging.Logger) log.Logger {
	return &temporalLogger{s: logger.Underlying().Named("temporal").Sugar()}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) { l.s.Debugw(msg, keyvals...) }
func (l *temporalLogger) Info(msg string, keyvals ...interface{})  { l.s.Infow(msg, keyvals...) }
func (l *temporalLogger) Warn(msg string, keyvals ...interface{})  { l.s.Warnw(msg, keyvals...) }
func (l *temporalLogger) Error(msg string, keyvals ...interface{}) { l.s.Errorw(msg, keyvals...) }

func (l *temporalLogger) With(keyvals ...interface{}) log.Logger {
	return &temporalLogger{s: l.s.With(keyvals...)}
}
