// logging.go: Pluggable logging for the bundle runtime
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"context"
	"sync"
)

// loggerContextKey is a custom type for context keys to avoid collisions
type loggerContextKey string

const (
	loggerKey loggerContextKey = "logger"
)

// Logger is the structured logging interface used across the runtime.
//
// Every per-bundle warning carries the "bundle" key with the symbolic name
// and, when known, the "path" key with the bundle location. Hosts plug in
// their own backend; ZapAdapter covers go.uber.org/zap.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, args ...any)

	// Info logs an info message with optional key-value pairs
	Info(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs
	Warn(msg string, args ...any)

	// Error logs an error message with optional key-value pairs
	Error(msg string, args ...any)

	// With returns a logger that adds the given key-value pairs to every entry
	With(args ...any) Logger
}

// NewLogger creates a Logger from supported logger types.
//
// Supported types:
//   - Logger interface: Used directly
//   - *zap.Logger: Wrapped in a ZapAdapter
//   - nil: Returns NoOpLogger for silent operation
//   - Unsupported types: Panic with descriptive message
func NewLogger(logger any) Logger {
	switch l := logger.(type) {
	case Logger:
		return l
	case nil:
		return NewNoOpLogger()
	default:
		if adapted, ok := adaptZap(logger); ok {
			return adapted
		}
		panic("unsupported logger type: expected Logger, *zap.Logger or nil")
	}
}

// NoOpLogger discards every message.
type NoOpLogger struct{}

// NewNoOpLogger creates a new no-operation logger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) Debug(msg string, args ...any) {}
func (n *NoOpLogger) Info(msg string, args ...any)  {}
func (n *NoOpLogger) Warn(msg string, args ...any)  {}
func (n *NoOpLogger) Error(msg string, args ...any) {}

// With implements Logger interface (no-op)
func (n *NoOpLogger) With(args ...any) Logger {
	return n
}

// TestLogger captures log messages so tests can assert on runtime observability.
// Loggers derived through With share the capture buffer of their parent and
// prepend their fields to the captured args.
type TestLogger struct {
	mu       *sync.RWMutex
	sink     *[]TestLogMessage
	fields   []any
	Messages []TestLogMessage `json:"messages"`
}

// TestLogMessage represents a captured log message for testing.
type TestLogMessage struct {
	Level   string
	Message string
	Args    []any
}

// NewTestLogger creates a new test logger.
func NewTestLogger() *TestLogger {
	t := &TestLogger{mu: &sync.RWMutex{}}
	t.sink = &t.Messages
	return t
}

func (t *TestLogger) record(level, msg string, args []any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := make([]any, 0, len(t.fields)+len(args))
	all = append(all, t.fields...)
	all = append(all, args...)
	*t.sink = append(*t.sink, TestLogMessage{Level: level, Message: msg, Args: all})
}

func (t *TestLogger) Debug(msg string, args ...any) { t.record("DEBUG", msg, args) }
func (t *TestLogger) Info(msg string, args ...any)  { t.record("INFO", msg, args) }
func (t *TestLogger) Warn(msg string, args ...any)  { t.record("WARN", msg, args) }
func (t *TestLogger) Error(msg string, args ...any) { t.record("ERROR", msg, args) }

// With returns a child logger writing into the same capture buffer.
func (t *TestLogger) With(args ...any) Logger {
	fields := make([]any, 0, len(t.fields)+len(args))
	fields = append(fields, t.fields...)
	fields = append(fields, args...)
	return &TestLogger{mu: t.mu, sink: t.sink, fields: fields}
}

// Snapshot returns a copy of the captured messages.
func (t *TestLogger) Snapshot() []TestLogMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TestLogMessage, len(*t.sink))
	copy(out, *t.sink)
	return out
}

// HasMessage checks if the logger captured a message with the given level and text.
func (t *TestLogger) HasMessage(level, message string) bool {
	for _, msg := range t.Snapshot() {
		if msg.Level == level && msg.Message == message {
			return true
		}
	}
	return false
}

// HasMessageWith checks for a message at level carrying key=value in its args.
func (t *TestLogger) HasMessageWith(level, message, key string, value any) bool {
	for _, msg := range t.Snapshot() {
		if msg.Level != level || msg.Message != message {
			continue
		}
		for i := 0; i+1 < len(msg.Args); i += 2 {
			if msg.Args[i] == key && msg.Args[i+1] == value {
				return true
			}
		}
	}
	return false
}

// CountLevel returns how many messages were captured at level.
func (t *TestLogger) CountLevel(level string) int {
	n := 0
	for _, msg := range t.Snapshot() {
		if msg.Level == level {
			n++
		}
	}
	return n
}

// Clear removes all captured messages.
func (t *TestLogger) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	*t.sink = (*t.sink)[:0]
}

// DefaultLogger returns the logger used when the host supplies none.
func DefaultLogger() Logger {
	return NewNoOpLogger()
}

// LoggerFromContext extracts a logger from context, falling back to DefaultLogger.
func LoggerFromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}

	return DefaultLogger()
}

// ContextWithLogger adds a logger to the context.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}
