// Package logging builds the structured slog.Logger used across the CLI,
// gateway, broker, and worker processes, and attaches per-request
// correlation fields (rqid/txid/lone/verb) to a child logger.
package logging

import (
	"log/slog"
	"os"
)

// Options configures the root logger.
type Options struct {
	JSON  bool // JSON handler for production/server processes, text for CLI
	Debug bool
}

// New builds the root logger for a process, writing to stdout.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{AddSource: opts.Debug, Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}
	return slog.New(handler)
}

// ForRequest returns a child logger with the invocation's correlation fields
// attached, for use through one request/handler's lifetime.
func ForRequest(base *slog.Logger, lone, verb, rqid, txid string) *slog.Logger {
	return base.With(
		"lone", lone,
		"verb", verb,
		"rqid", rqid,
		"txid", txid,
	)
}
