// Package zaplog adapts a zap logger to the outbox Logger interface.
package zaplog

import (
	"go.uber.org/zap"

	"github.com/dundich/outbox"
)

// Logger forwards outbox log calls to a zap SugaredLogger, which accepts
// the same alternating key/value argument convention.
type Logger struct {
	sugar *zap.SugaredLogger
}

var _ outbox.Logger = (*Logger)(nil)

// New wraps a zap logger. A nil logger yields a no-op adapter.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Logger{sugar: logger.Sugar()}
}

// Debug implements outbox.Logger.
func (l *Logger) Debug(msg string, args ...any) {
	l.sugar.Debugw(msg, args...)
}

// Info implements outbox.Logger.
func (l *Logger) Info(msg string, args ...any) {
	l.sugar.Infow(msg, args...)
}

// Warn implements outbox.Logger.
func (l *Logger) Warn(msg string, args ...any) {
	l.sugar.Warnw(msg, args...)
}

// Error implements outbox.Logger.
func (l *Logger) Error(msg string, args ...any) {
	l.sugar.Errorw(msg, args...)
}
