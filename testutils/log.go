// Package testutils holds helpers shared by package tests.
package testutils

import (
	"testing"

	"github.com/edaniels/golog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// NewLogger directs logs to the go test logger.
func NewLogger(t *testing.T) golog.Logger {
	logger, _ := NewObservedLogger(t)
	return logger
}

// NewObservedLogger is like NewLogger but also keeps every entry, at debug and above, in memory
// so tests can assert on what was logged.
func NewObservedLogger(t *testing.T) (golog.Logger, *observer.ObservedLogs) {
	logger := zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel))
	observerCore, observedLogs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, observerCore)
	}))
	return logger.Sugar(), observedLogs
}

// CountAtLevel returns how many observed entries were logged at exactly level.
func CountAtLevel(logs *observer.ObservedLogs, level zapcore.Level) int {
	n := 0
	for _, entry := range logs.All() {
		if entry.Level == level {
			n++
		}
	}
	return n
}
