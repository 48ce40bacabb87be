// Package log provides the logging infrastructure for medsketch.
//
// It exposes a thin factory over log/slog. Components never reach for a
// global logger; they receive one through their constructor and add
// context via logger.With():
//
//	logger := log.New(log.Config{Level: slog.LevelInfo, JSON: true})
//	pipe := prompt.NewPipeline(cfg, logger.With("component", "pipeline"))
//
// Tests use NewNop() to silence output, or NewWithWriter with a buffer
// to assert on log lines.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a type alias for *slog.Logger. Using the standard library type
// directly keeps full slog compatibility (With, Groups, handlers) without a
// custom interface in between. Components accept log.Logger as a dependency.
type Logger = *slog.Logger

// Config defines logger configuration options.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo
	Level slog.Level

	// JSON enables JSON format output. Default: false (text format)
	JSON bool

	// AddSource adds source file information to log entries. Default: false
	AddSource bool
}

// New creates a logger that writes to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger that writes to the given writer.
// Useful for tests that inspect output.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop creates a logger that discards all output. Test use only;
// production code should always get a configured logger so retrieval
// fallbacks stay visible to operators.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
