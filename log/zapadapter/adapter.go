// Package zapadapter provides a logger that writes to a
// go.uber.org/zap.Logger.
package zapadapter

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bryanhughes/pgo"
)

type Logger struct {
	logger *zap.Logger
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (pl *Logger) Log(ctx context.Context, level pgo.LogLevel, msg string, data map[string]interface{}) {
	fields := make([]zapcore.Field, 0, len(data))
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}

	switch level {
	case pgo.LogLevelTrace:
		pl.logger.Debug(msg, append(fields, zap.Stringer("PGO_LOG_LEVEL", level))...)
	case pgo.LogLevelDebug:
		pl.logger.Debug(msg, fields...)
	case pgo.LogLevelInfo:
		pl.logger.Info(msg, fields...)
	case pgo.LogLevelWarn:
		pl.logger.Warn(msg, fields...)
	case pgo.LogLevelError:
		pl.logger.Error(msg, fields...)
	default:
		pl.logger.Error(msg, append(fields, zap.Stringer("INVALID_PGO_LOG_LEVEL", level))...)
	}
}
