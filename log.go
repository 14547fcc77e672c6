package main

import (
	"io"
	"log/slog"
	"os"
)

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  slog.Level
	Format string // "text" or "json"
	Output io.Writer
}

// DefaultLogConfig logs warnings and errors as text to stderr.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  slog.LevelWarn,
		Format: "text",
		Output: os.Stderr,
	}
}

// NewLogger builds a logger from cfg. It does not touch slog's default
// logger.
func NewLogger(cfg LogConfig) *slog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
