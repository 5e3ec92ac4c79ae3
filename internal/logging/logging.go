// Package logging holds the process-wide structured logger for the
// canforge pipeline, plus helpers for scoping records to the pipeline
// stage that emitted them.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// Global structured logger. Initialized with a reasonable text handler.
var logger atomic.Pointer[slog.Logger]

func init() {
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Store(l)
}

// L returns the current global logger.
func L() *slog.Logger { return logger.Load() }

// Set replaces the global logger.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// Stage returns the global logger scoped to one pipeline stage (ir,
// validate, codegen, gate, verify, report), so every record a stage emits
// carries a "stage" attribute without each call site repeating it.
func Stage(name string) *slog.Logger { return L().With("stage", name) }

// ParseLevel maps the configuration's level names onto slog levels.
// Unrecognized names fall back to info; config validation rejects them
// before they reach here.
func ParseLevel(s string) slog.Level {
	switch s {
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

// New creates a logger writing to w (stderr if nil) in the given format
// ("text" or "json") at the given configuration level name.
func New(format, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}
