// Package logging builds the process logger: slog call sites backed by a
// charmbracelet/log handler.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/talgya/farmstead/internal/config"
)

// New returns a slog.Logger writing to w at the configured level and format.
// Unknown levels fall back to info, unknown formats to text.
func New(w io.Writer, cfg config.Log) *slog.Logger {
	level, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}

	handler := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
		Prefix:          "farmstead",
		Formatter:       formatter(cfg.Format),
	})
	return slog.New(handler)
}

// Setup installs New(w, cfg) as the slog default and returns it.
func Setup(w io.Writer, cfg config.Log) *slog.Logger {
	logger := New(w, cfg)
	slog.SetDefault(logger)
	return logger
}

func formatter(name string) log.Formatter {
	switch strings.ToLower(name) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
