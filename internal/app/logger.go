package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger based on configuration.
func NewLogger(cfg *Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if InTestMode() {
		out = io.Discard
	}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{AddSource: true}))
}
