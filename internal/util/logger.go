package util

import (
	"context"
	"log"
	"log/slog"
	"strings"
)

// NewStdLogger returns a standard library logger that forwards every line to
// the slog logger at the given level. It is used for components that only
// accept *log.Logger, such as http.Server.ErrorLog.
func NewStdLogger(level slog.Level) *log.Logger {
	return log.New(&logWriter{level: level}, "", 0)
}

type logWriter struct {
	level slog.Level
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimRight(string(p), "\n")
	GetLogger().Log(context.Background(), w.level, msg)
	return len(p), nil
}
