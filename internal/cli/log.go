// Package cli implements the tilestitch command-line interface.
//
// This package provides commands for exploring a tile directory, selecting
// regions (by string, preset or interactively), stitching them into a single
// TIFF volume and serving a read-only JSON API. The CLI is built using cobra
// and logs through charmbracelet/log.
//
// # Commands
//
// The main commands are:
//   - explore: Index statistics, coverage grids, tissue maps and suggestions
//   - select: Resolve and validate a region, optionally saving it to a file
//   - stitch: Reconstruct a region into one multi-page TIFF
//   - serve: Read-only HTTP API over the index
//   - cache: Manage the tile metadata cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging and --log-file
// to tee logs into a rotating file. Loggers are passed through
// context.Context.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/natefinch/lumberjack"
)

// newLogger creates a new logger with timestamp formatting.
// The logger writes to w and filters messages at the specified level.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// openLogFile returns a size-rotated writer for cfg.File.
func openLogFile(cfg LogConfig) io.WriteCloser {
	return &lumberjack.Logger{
		Filename: cfg.File,
		MaxSize:  cfg.MaxSize,
		MaxAge:   cfg.MaxAge,
	}
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress creates a progress tracker that captures the current time as start.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// Example output: "Stitched 25 tiles (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// ctxKey is the type for context keys used in this package.
type ctxKey int

// loggerKey is the context key for storing a logger.
const loggerKey ctxKey = 0

// withLogger returns a new context with the given logger attached.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx.
// If no logger is attached, it returns log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if ctx == nil {
		return log.Default()
	}
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
