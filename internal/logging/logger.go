package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production it uses JSON output for log aggregation, otherwise the text handler.
// The standard log package is routed through the same handler.
func Init(environment string) {
	var handler slog.Handler
	if strings.ToLower(environment) == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithConnection returns a logger scoped to a realtime connection
func WithConnection(connID, userID string) *slog.Logger {
	return slog.With(
		"component", "realtime",
		"conn_id", connID,
		"user_id", userID,
	)
}
