package bcache

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with bcache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithDevice adds a device id field to the logger.
func (l *Logger) WithDevice(dev uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("dev", dev),
	}
}

// WithBlock adds a block number field to the logger.
func (l *Logger) WithBlock(blockno uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("block", blockno),
	}
}

// LogAttach logs a device attach or detach.
func (l *Logger) LogAttach(ctx context.Context, dev uint32, detach bool, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "attach failed",
			"dev", dev,
			"error", err,
		)
	case detach:
		l.InfoContext(ctx, "device detached",
			"dev", dev,
		)
	default:
		l.InfoContext(ctx, "device attached",
			"dev", dev,
		)
	}
}

// LogEviction logs the recycling of a buffer slot.
func (l *Logger) LogEviction(ctx context.Context, oldDev uint32, oldBlock uint64, dev uint32, blockno uint64, retries int) {
	l.DebugContext(ctx, "slot recycled",
		"old_dev", oldDev,
		"old_block", oldBlock,
		"dev", dev,
		"block", blockno,
		"retries", retries,
	)
}

// LogTransfer logs a device transfer.
func (l *Logger) LogTransfer(ctx context.Context, dev uint32, blockno uint64, write bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "transfer failed",
			"dev", dev,
			"block", blockno,
			"write", write,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "transfer completed",
			"dev", dev,
			"block", blockno,
			"write", write,
		)
	}
}
