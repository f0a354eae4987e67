package logger

import (
	"context"
	"log/slog"
)

// CronLogger adapts the global slog logger to the cron.Logger interface.
type CronLogger struct {
	Component string
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug(msg, l.attrs(keysAndValues)...)
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append(l.attrs(keysAndValues), slog.Any("error", err))
	slog.Log(context.Background(), slog.LevelError, msg, args...)
}

func (l CronLogger) attrs(keysAndValues []interface{}) []any {
	args := make([]any, 0, len(keysAndValues)+2)
	if l.Component != "" {
		args = append(args, slog.String("component", l.Component))
	}
	return append(args, keysAndValues...)
}
