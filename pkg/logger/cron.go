package logger

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger is an adapter to use log/slog.Logger as cron.Logger.
type cronLogger struct {
	*slog.Logger
}

// Cron wraps 'logger' and returns a cron.Logger, it wraps 'slog.Default()'
// if 'logger' is nil.
func Cron(logger *slog.Logger) cron.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return cronLogger{Logger: logger}
}

func (cl cronLogger) Info(msg string, keysAndValues ...any) {
	lowLevelLog(cl.Logger, slog.LevelDebug, msg, keysAndValues...)
}

func (cl cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{slog.String("error", err.Error())}, keysAndValues...)
	lowLevelLog(cl.Logger, slog.LevelError, msg, args...)
}
