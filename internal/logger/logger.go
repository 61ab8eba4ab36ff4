// Package logger builds the process-wide slog logger from configuration.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/stevencasey/aeron/config"
)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a text-handler logger honoring the configured log level.
func New() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(config.Config.LogLevel)}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
