// Package logger builds the process-wide structured logger. Every record
// carries an app attribute so engine output stays attributable when the log
// file is shared with other tooling on the operator's machine.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"webpilot/internal/infra/config"
)

const appName = "webpilot"

// New creates a configured *slog.Logger.
// The returned closer function should be deferred to flush/close file handles.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	writer, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}

	handler := newHandler(cfg.Format, writer, parseLevel(cfg.Level))
	return slog.New(handler).With(slog.String("app", appName)), closer, nil
}

// newHandler picks the record format. Anything that is not json is treated
// as text, which matches how Validate constrains the config.
func newHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLevel converts a string level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openOutput maps the configured output target to a writer. File targets are
// opened append-only so concurrent runs interleave instead of clobbering.
func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}
