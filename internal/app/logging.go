package app

import (
	"io"
	"log/slog"
	"os"

	"github.com/gabigallardo/control-panel/internal/config"
)

// ConfigureLogging installs the process-wide slog handler described by cfg.
func ConfigureLogging(cfg config.LogConfig) *slog.Logger {
	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
