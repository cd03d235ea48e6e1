// logging.go: Pluggable logging with host log-level mapping
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger defines the pluggable logging interface used by the runtime.
//
// Any logging framework can be plugged in by implementing these five methods.
// Args are key-value pairs for structured logging.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, args ...any)

	// Info logs an info message with optional key-value pairs
	Info(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs
	Warn(msg string, args ...any)

	// Error logs an error message with optional key-value pairs
	Error(msg string, args ...any)

	// With returns a new logger with persistent context key-value pairs
	With(args ...any) Logger
}

// LevelSetter is implemented by loggers whose verbosity follows the host's
// LogLevel setting.
type LevelSetter interface {
	SetLogLevel(level LogLevel)
}

// LogLevel is the log level communicated by the host:
// 1 debug, 2 info, 3 warn, 4 error, 5 fatal.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota + 1
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// DefaultLogLevel is used when the host does not send a level.
const DefaultLogLevel = LogLevelWarn

// levelFatal sits above slog's error level, mirroring the host's fatal level.
const levelFatal = slog.LevelError + 4

// Valid reports whether l is inside the documented 1-5 range.
func (l LogLevel) Valid() bool {
	return l >= LogLevelDebug && l <= LogLevelFatal
}

// String returns the level name.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	case LogLevelFatal:
		return "fatal"
	default:
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
}

// SlogLevel maps the host level onto slog's scale. Invalid levels map to the
// default warn level.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	case LogLevelFatal:
		return levelFatal
	default:
		return slog.LevelWarn
	}
}

// LevelLogger is the runtime's default Logger: text records on a writer
// (stderr by default) with a verbosity that can change while running.
//
// Loggers derived with With share the level of their parent.
type LevelLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// NewLevelLogger creates a LevelLogger writing to w at the given host level.
func NewLevelLogger(w io.Writer, level LogLevel) *LevelLogger {
	if w == nil {
		w = os.Stderr
	}
	lv := new(slog.LevelVar)
	lv.Set(level.SlogLevel())

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lv,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= levelFatal {
					a.Value = slog.StringValue("FATAL")
				}
			}
			return a
		},
	})

	return &LevelLogger{
		logger: slog.New(handler),
		level:  lv,
	}
}

// Debug implements Logger
func (l *LevelLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info implements Logger
func (l *LevelLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn implements Logger
func (l *LevelLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error implements Logger
func (l *LevelLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// With implements Logger
func (l *LevelLogger) With(args ...any) Logger {
	return &LevelLogger{
		logger: l.logger.With(args...),
		level:  l.level,
	}
}

// SetLogLevel implements LevelSetter. Invalid levels are ignored.
func (l *LevelLogger) SetLogLevel(level LogLevel) {
	if !level.Valid() {
		return
	}
	l.level.Set(level.SlogLevel())
}

// Enabled reports whether records at the given host level are emitted.
func (l *LevelLogger) Enabled(level LogLevel) bool {
	return l.logger.Enabled(context.Background(), level.SlogLevel())
}

// NoOpLogger provides a silent logger implementation for testing and minimal setups.
type NoOpLogger struct{}

// NewNoOpLogger creates a new no-operation logger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// Debug implements Logger interface (no-op)
func (n *NoOpLogger) Debug(msg string, args ...any) {}

// Info implements Logger interface (no-op)
func (n *NoOpLogger) Info(msg string, args ...any) {}

// Warn implements Logger interface (no-op)
func (n *NoOpLogger) Warn(msg string, args ...any) {}

// Error implements Logger interface (no-op)
func (n *NoOpLogger) Error(msg string, args ...any) {}

// With implements Logger interface (no-op)
func (n *NoOpLogger) With(args ...any) Logger {
	return n
}

// TestLogger captures log messages for assertions in tests.
//
// Loggers returned by With write into the same capture buffer.
type TestLogger struct {
	mu       *sync.RWMutex
	messages *[]TestLogMessage
	level    *LogLevel
	fields   []any
}

// TestLogMessage represents a captured log message for testing.
type TestLogMessage struct {
	Level   string
	Message string
	Args    []any
}

// NewTestLogger creates a new test logger.
func NewTestLogger() *TestLogger {
	messages := make([]TestLogMessage, 0)
	level := LogLevel(0)
	return &TestLogger{
		mu:       &sync.RWMutex{},
		messages: &messages,
		level:    &level,
	}
}

func (t *TestLogger) record(level, msg string, args []any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := make([]any, 0, len(t.fields)+len(args))
	all = append(all, t.fields...)
	all = append(all, args...)
	*t.messages = append(*t.messages, TestLogMessage{
		Level:   level,
		Message: msg,
		Args:    all,
	})
}

// Debug implements Logger interface (captures message)
func (t *TestLogger) Debug(msg string, args ...any) { t.record("DEBUG", msg, args) }

// Info implements Logger interface (captures message)
func (t *TestLogger) Info(msg string, args ...any) { t.record("INFO", msg, args) }

// Warn implements Logger interface (captures message)
func (t *TestLogger) Warn(msg string, args ...any) { t.record("WARN", msg, args) }

// Error implements Logger interface (captures message)
func (t *TestLogger) Error(msg string, args ...any) { t.record("ERROR", msg, args) }

// With implements Logger interface
func (t *TestLogger) With(args ...any) Logger {
	fields := make([]any, 0, len(t.fields)+len(args))
	fields = append(fields, t.fields...)
	fields = append(fields, args...)
	return &TestLogger{
		mu:       t.mu,
		messages: t.messages,
		level:    t.level,
		fields:   fields,
	}
}

// SetLogLevel implements LevelSetter by remembering the last level applied.
func (t *TestLogger) SetLogLevel(level LogLevel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	*t.level = level
}

// AppliedLevel returns the last level passed to SetLogLevel, 0 if none.
func (t *TestLogger) AppliedLevel() LogLevel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return *t.level
}

// Messages returns a copy of the captured messages.
func (t *TestLogger) Messages() []TestLogMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TestLogMessage, len(*t.messages))
	copy(out, *t.messages)
	return out
}

// HasMessage checks if the logger captured a message with the given level and text.
func (t *TestLogger) HasMessage(level, message string) bool {
	for _, msg := range t.Messages() {
		if msg.Level == level && msg.Message == message {
			return true
		}
	}
	return false
}

// CountMessages counts captured messages at level whose text contains substr.
func (t *TestLogger) CountMessages(level, substr string) int {
	n := 0
	for _, msg := range t.Messages() {
		if msg.Level == level && strings.Contains(msg.Message, substr) {
			n++
		}
	}
	return n
}

// Clear removes all captured messages.
func (t *TestLogger) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	*t.messages = (*t.messages)[:0]
}

// DefaultLogger returns the logger used when none is supplied: warn level on stderr.
func DefaultLogger() Logger {
	return NewLevelLogger(os.Stderr, DefaultLogLevel)
}

// NewLogger creates a Logger from supported logger types.
//
// Supported types:
//   - Logger interface: Used directly
//   - *slog.Logger: Wrapped, level is owned by the slog handler
//   - nil: DefaultLogger
func NewLogger(logger any) Logger {
	switch l := logger.(type) {
	case Logger:
		return l
	case *slog.Logger:
		return &slogAdapter{logger: l}
	case nil:
		return DefaultLogger()
	default:
		panic("unsupported logger type: expected Logger interface, *slog.Logger or nil")
	}
}

// slogAdapter wraps a caller-owned *slog.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (s *slogAdapter) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }
func (s *slogAdapter) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s *slogAdapter) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s *slogAdapter) Error(msg string, args ...any) { s.logger.Error(msg, args...) }
func (s *slogAdapter) With(args ...any) Logger {
	return &slogAdapter{logger: s.logger.With(args...)}
}

// applyLogLevel forwards level to logger when it supports level changes.
func applyLogLevel(logger Logger, level LogLevel) bool {
	setter, ok := logger.(LevelSetter)
	if !ok {
		return false
	}
	setter.SetLogLevel(level)
	return true
}
