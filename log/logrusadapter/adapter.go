// Package logrusadapter provides a logger that writes to a
// github.com/sirupsen/logrus.Logger log.
package logrusadapter

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/bryanhughes/pgo"
)

type Logger struct {
	l logrus.FieldLogger
}

func NewLogger(l logrus.FieldLogger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level pgo.LogLevel, msg string, data map[string]interface{}) {
	var logger logrus.FieldLogger
	if data != nil {
		logger = l.l.WithFields(data)
	} else {
		logger = l.l
	}

	switch level {
	case pgo.LogLevelTrace:
		logger.WithField("PGO_LOG_LEVEL", level).Debug(msg)
	case pgo.LogLevelDebug:
		logger.Debug(msg)
	case pgo.LogLevelInfo:
		logger.Info(msg)
	case pgo.LogLevelWarn:
		logger.Warn(msg)
	case pgo.LogLevelError:
		logger.Error(msg)
	default:
		logger.WithField("INVALID_PGO_LOG_LEVEL", level).Error(msg)
	}
}
