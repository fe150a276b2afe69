// Package zerologadapter provides a logger that writes to a
// github.com/rs/zerolog.
package zerologadapter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/bryanhughes/pgo"
)

type Logger struct {
	logger zerolog.Logger
}

// NewLogger accepts a zerolog.Logger as input and returns a new custom
// pgo logging facade as output.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		logger: logger.With().Str("module", "pgo").Logger(),
	}
}

func (pl *Logger) Log(ctx context.Context, level pgo.LogLevel, msg string, data map[string]interface{}) {
	var zlevel zerolog.Level
	switch level {
	case pgo.LogLevelNone:
		zlevel = zerolog.NoLevel
	case pgo.LogLevelError:
		zlevel = zerolog.ErrorLevel
	case pgo.LogLevelWarn:
		zlevel = zerolog.WarnLevel
	case pgo.LogLevelInfo:
		zlevel = zerolog.InfoLevel
	case pgo.LogLevelDebug:
		zlevel = zerolog.DebugLevel
	default:
		zlevel = zerolog.DebugLevel
	}

	pgolog := pl.logger.With().Fields(data).Logger()
	pgolog.WithLevel(zlevel).Msg(msg)
}
