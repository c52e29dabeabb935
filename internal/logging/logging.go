// Package logging builds the [log/slog] logger from the application settings
// and carries it through the context.
//
// The supervisor and the main pipeline it spawns share stderr. Every record
// carries the process id, and the spawned pipeline tags its records with
// role=main, so interleaved lines can be told apart.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/assetflow/internal/config"
)

type ctxKey struct{}

var levels = map[string]slog.Level{
	config.LogLevelDebug: slog.LevelDebug,
	config.LogLevelInfo:  slog.LevelInfo,
	config.LogLevelWarn:  slog.LevelWarn,
	config.LogLevelError: slog.LevelError,
}

// Setup creates the logger for cfg writing to stderr and installs it as the
// process-wide default.
func Setup(cfg *config.Config) *slog.Logger {
	return SetupWithWriter(cfg, os.Stderr)
}

// SetupWithWriter is Setup with a custom destination, for tests and for
// commands whose error stream is redirected.
//
// Debug mode lowers the level to debug unless quiet was requested, so the
// supervisor's restart decisions are visible while working on the workflow.
func SetupWithWriter(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: Level(cfg)}

	var handler slog.Handler
	if cfg.LogFormat == config.LogFormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler).With(slog.Int("pid", os.Getpid()))
	if cfg.Role != "" {
		logger = logger.With(slog.String("role", cfg.Role))
	}

	slog.SetDefault(logger)

	return logger
}

// Level returns the minimum level logged for cfg.
func Level(cfg *config.Config) slog.Level {
	if cfg.Debug && !cfg.Quiet {
		return slog.LevelDebug
	}

	return ParseLevel(cfg.EffectiveLogLevel())
}

// ParseLevel converts a configured level name. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	if l, ok := levels[level]; ok {
		return l
	}

	return slog.LevelInfo
}

// NewContext returns a child context carrying logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts a logger from ctx, falling back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}

	return slog.Default()
}
