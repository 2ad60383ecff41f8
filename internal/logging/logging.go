package logging

import (
	"log/slog"
	"os"
)

// New initializes a new slog logger and sets it as the default.
// It reads the LOG_FORMAT environment variable to determine the output format
// ("text" for development, "json" for production) and LOG_LEVEL for the
// minimum level ("debug", "info", "warn", "error"; default "info").
func New() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	switch os.Getenv("LOG_FORMAT") {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     level,
			AddSource: true, // Adds source file and line number
		})
	}

	slog.SetDefault(slog.New(handler))
}
