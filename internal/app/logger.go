package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. JSON output is for log ingestion in
// hosted deployments; text keeps local runs readable. Source locations are
// attached outside production, where the volume cost does not matter.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: cfg == nil || !cfg.IsProduction()}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
