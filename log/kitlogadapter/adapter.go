// Package kitlogadapter provides a logger that writes to a
// github.com/go-kit/log.Logger.
package kitlogadapter

import (
	"context"

	"github.com/go-kit/log"
	kitlevel "github.com/go-kit/log/level"

	"github.com/bryanhughes/pgo"
)

type Logger struct {
	l log.Logger
}

func NewLogger(l log.Logger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level pgo.LogLevel, msg string, data map[string]interface{}) {
	logger := l.l
	for k, v := range data {
		logger = log.With(logger, k, v)
	}

	switch level {
	case pgo.LogLevelTrace:
		logger.Log("PGO_LOG_LEVEL", level, "msg", msg)
	case pgo.LogLevelDebug:
		kitlevel.Debug(logger).Log("msg", msg)
	case pgo.LogLevelInfo:
		kitlevel.Info(logger).Log("msg", msg)
	case pgo.LogLevelWarn:
		kitlevel.Warn(logger).Log("msg", msg)
	case pgo.LogLevelError:
		kitlevel.Error(logger).Log("msg", msg)
	default:
		logger.Log("INVALID_PGO_LOG_LEVEL", level, "error", msg)
	}
}
