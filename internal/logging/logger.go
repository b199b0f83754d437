package logging

import (
	"log/slog"
	"os"
)

// New builds the process-wide JSON logger with a service attribute, and
// installs it as the slog default.
func New(service string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	}).WithAttrs([]slog.Attr{
		slog.String("service", service),
	})

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
