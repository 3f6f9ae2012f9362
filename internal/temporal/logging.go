package temporal

import (
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// LoggerAdapter routes Temporal SDK logs through zerolog.
type LoggerAdapter struct {
	logger zerolog.Logger
}

var (
	_ log.Logger     = (*LoggerAdapter)(nil)
	_ log.WithLogger = (*LoggerAdapter)(nil)
)

func NewLoggerAdapter(logger zerolog.Logger) *LoggerAdapter {
	return &LoggerAdapter{
		logger: logger.With().Str("component", "temporal-sdk").Logger(),
	}
}

func fields(ctx zerolog.Context, keyvals ...interface{}) zerolog.Context {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = "INVALID_KEY"
		}
		ctx = ctx.Interface(key, keyvals[i+1])
	}
	return ctx
}

func (a *LoggerAdapter) event(e *zerolog.Event, msg string, keyvals ...interface{}) {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = "INVALID_KEY"
		}
		if err, isErr := keyvals[i+1].(error); isErr {
			e = e.AnErr(key, err)
			continue
		}
		e = e.Interface(key, keyvals[i+1])
	}
	e.Msg(msg)
}

func (a *LoggerAdapter) Debug(msg string, keyvals ...interface{}) {
	a.event(a.logger.Debug(), msg, keyvals...)
}

func (a *LoggerAdapter) Info(msg string, keyvals ...interface{}) {
	a.event(a.logger.Info(), msg, keyvals...)
}

func (a *LoggerAdapter) Warn(msg string, keyvals ...interface{}) {
	a.event(a.logger.Warn(), msg, keyvals...)
}

func (a *LoggerAdapter) Error(msg string, keyvals ...interface{}) {
	a.event(a.logger.Error(), msg, keyvals...)
}

// With returns a logger that adds keyvals to every entry.
func (a *LoggerAdapter) With(keyvals ...interface{}) log.Logger {
	return &LoggerAdapter{logger: fields(a.logger.With(), keyvals...).Logger()}
}
