// v0
// internal/logging/logging.go
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a slog logger writing to stdout and, when path is non-empty,
// to an append-only logfile as well. A logfile that cannot be opened is
// reported but never fatal.
func New(path string) *slog.Logger {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			w = io.MultiWriter(os.Stdout, f)
		} else {
			l := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
			l.Error("failed to open log file", "path", path, "err", err)
			return l
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
