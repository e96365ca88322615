package tenantlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

type ZeroTraceLogger struct{}

// Log implements [tracelog.Logger].
func (z *ZeroTraceLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	var event *zerolog.Event
	switch level {
	case tracelog.LogLevelTrace:
		event = Zero.Trace()
	case tracelog.LogLevelDebug:
		event = Zero.Debug()
	case tracelog.LogLevelInfo:
		event = Zero.Info()
	case tracelog.LogLevelWarn:
		event = Zero.Warn()
	case tracelog.LogLevelError:
		event = Zero.Error()
	case tracelog.LogLevelNone:
		fallthrough
	default:
		return
	}
	event.Str("data", fmt.Sprintf("%v", data)).Msg(msg)
}

var _ tracelog.Logger = &ZeroTraceLogger{}

// TraceLogLevel maps a zerolog level name onto the pgx tracing level, so the
// driver is never chattier than the process logger.
func TraceLogLevel(level string) tracelog.LogLevel {
	switch parseLevel(level) {
	case zerolog.DebugLevel:
		return tracelog.LogLevelDebug
	case zerolog.InfoLevel:
		return tracelog.LogLevelInfo
	case zerolog.WarnLevel:
		return tracelog.LogLevelWarn
	case zerolog.Disabled:
		return tracelog.LogLevelNone
	default:
		return tracelog.LogLevelError
	}
}
