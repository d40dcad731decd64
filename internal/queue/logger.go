package queue

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger routes badger's printf-style logs into slog.
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger.With(slog.String("component", "queue"))}
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(formatBadger(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(formatBadger(format, args...))
}

// Infof is demoted to debug; badger is chatty at info level.
func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(formatBadger(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(formatBadger(format, args...))
}

func formatBadger(format string, args ...any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
