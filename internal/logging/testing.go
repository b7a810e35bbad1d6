package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry, down to TraceLevel, for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a TestLogger with the default config attached.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// All returns every recorded entry.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries whose message equals msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

// FilterField returns entries carrying the string field key=value.
func (t *TestLogger) FilterField(key, value string) *observer.ObservedLogs {
	return t.observed.FilterField(zap.String(key, value))
}

// StageEntries returns the entries logged for one pipeline stage.
func (t *TestLogger) StageEntries(stage string) []observer.LoggedEntry {
	return t.FilterField("stage", stage).All()
}

// AssertLogged fails tb unless an entry at level has a message containing msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	for _, e := range t.observed.All() {
		if e.Level == level && strings.Contains(e.Message, msg) {
			return
		}
	}
	tb.Errorf("no %v entry containing %q; got %d entries", level, msg, t.observed.Len())
}

// AssertField fails tb unless an entry with message msg has key=want.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want interface{}) {
	tb.Helper()
	for _, e := range t.observed.FilterMessage(msg).All() {
		if got, ok := e.ContextMap()[key]; ok && reflect.DeepEqual(got, want) {
			return
		}
	}
	tb.Errorf("no %q entry with %s=%v", msg, key, want)
}
