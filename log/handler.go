// Package log provides the host's structured logging (slog) and the sinks
// that receive guest output lines.
package log

import (
	"io"
	"log/slog"
	"os"
)

// HandlerOption configures the logger built by NewLogger.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	writer    io.Writer
	level     slog.Level
	addSource bool
	json      bool
}

// defaultHandlerConfig returns the default configuration.
func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		writer: os.Stderr,
		level:  slog.LevelInfo,
	}
}

// WithLevel sets the minimum log level to report.
func WithLevel(level slog.Level) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file/line).
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithWriter sets where records are written (default: os.Stderr).
func WithWriter(w io.Writer) HandlerOption {
	return func(c *handlerConfig) {
		c.writer = w
	}
}

// WithJSON switches from the text format to JSON.
func WithJSON(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.json = enabled
	}
}

// NewLogger creates a logger with the given options. Trace output from the
// kernel is emitted at debug level, so tracing needs WithLevel(slog.LevelDebug).
func NewLogger(opts ...HandlerOption) *slog.Logger {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	hopts := &slog.HandlerOptions{Level: cfg.level, AddSource: cfg.addSource}
	if cfg.json {
		return slog.New(slog.NewJSONHandler(cfg.writer, hopts))
	}
	return slog.New(slog.NewTextHandler(cfg.writer, hopts))
}
