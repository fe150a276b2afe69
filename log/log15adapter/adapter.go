// Package log15adapter provides a logger that writes to a
// gopkg.in/inconshreveable/log15.v2.Logger log.
package log15adapter

import (
	"context"

	log15 "gopkg.in/inconshreveable/log15.v2"

	"github.com/bryanhughes/pgo"
)

// Log15Logger interface defines the subset of
// log15.Logger that this adapter uses.
type Log15Logger interface {
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

// the adapter must keep accepting a real log15.Logger
var nilLog15 log15.Logger
var _ Log15Logger = nilLog15

type Logger struct {
	l Log15Logger
}

func NewLogger(l Log15Logger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level pgo.LogLevel, msg string, data map[string]interface{}) {
	logArgs := make([]interface{}, 0, len(data)*2)
	for k, v := range data {
		logArgs = append(logArgs, k, v)
	}

	switch level {
	case pgo.LogLevelTrace:
		l.l.Debug(msg, append(logArgs, "PGO_LOG_LEVEL", level)...)
	case pgo.LogLevelDebug:
		l.l.Debug(msg, logArgs...)
	case pgo.LogLevelInfo:
		l.l.Info(msg, logArgs...)
	case pgo.LogLevelWarn:
		l.l.Warn(msg, logArgs...)
	case pgo.LogLevelError:
		l.l.Error(msg, logArgs...)
	default:
		l.l.Error(msg, append(logArgs, "INVALID_PGO_LOG_LEVEL", level)...)
	}
}
