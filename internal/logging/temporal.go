package logging

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// TemporalLogger routes Temporal SDK logs through zerolog.
type TemporalLogger struct {
	logger zerolog.Logger
}

var _ log.WithLogger = (*TemporalLogger)(nil)

func NewTemporalLogger(logger zerolog.Logger) *TemporalLogger {
	return &TemporalLogger{logger: logger.With().Str("component", "temporal").Logger()}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...any) { send(l.logger.Debug(), msg, keyvals) }
func (l *TemporalLogger) Info(msg string, keyvals ...any)  { send(l.logger.Info(), msg, keyvals) }
func (l *TemporalLogger) Warn(msg string, keyvals ...any)  { send(l.logger.Warn(), msg, keyvals) }
func (l *TemporalLogger) Error(msg string, keyvals ...any) { send(l.logger.Error(), msg, keyvals) }

func (l *TemporalLogger) With(keyvals ...any) log.Logger {
	ctx := l.logger.With()
	for i := 0; i < len(keyvals); i += 2 {
		ctx = ctx.Interface(key(keyvals[i]), value(keyvals, i+1))
	}
	return &TemporalLogger{logger: ctx.Logger()}
}

func send(e *zerolog.Event, msg string, keyvals []any) {
	for i := 0; i < len(keyvals); i += 2 {
		e = e.Interface(key(keyvals[i]), value(keyvals, i+1))
	}
	e.Msg(msg)
}

func key(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}

func value(keyvals []any, i int) any {
	if i < len(keyvals) {
		return keyvals[i]
	}
	return "MISSING"
}
