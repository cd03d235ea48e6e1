// logging_test.go: Tests for the logging abstractions
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level LogLevel
		valid bool
		name  string
		slog  slog.Level
	}{
		{LogLevelDebug, true, "debug", slog.LevelDebug},
		{LogLevelInfo, true, "info", slog.LevelInfo},
		{LogLevelWarn, true, "warn", slog.LevelWarn},
		{LogLevelError, true, "error", slog.LevelError},
		{LogLevelFatal, true, "fatal", levelFatal},
		{LogLevel(0), false, "LogLevel(0)", slog.LevelWarn},
		{LogLevel(6), false, "LogLevel(6)", slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.level.Valid())
			assert.Equal(t, tt.name, tt.level.String())
			assert.Equal(t, tt.slog, tt.level.SlogLevel())
		})
	}
}

func TestLevelLogger_Filtering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLevelLogger(&buf, LogLevelWarn)

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("visible warn", "k", "v")
	logger.Error("visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warn")
	assert.Contains(t, out, "k=v")
	assert.Contains(t, out, "visible error")

	assert.False(t, logger.Enabled(LogLevelInfo))
	assert.True(t, logger.Enabled(LogLevelWarn))
}

func TestLevelLogger_SetLogLevelSharedWithChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLevelLogger(&buf, LogLevelWarn)
	child := logger.With("plugin", "rand")

	logger.SetLogLevel(LogLevelDebug)
	child.Debug("child debug")
	assert.Contains(t, buf.String(), "child debug")
	assert.Contains(t, buf.String(), "plugin=rand")

	// Out of range levels are ignored.
	logger.SetLogLevel(LogLevel(9))
	assert.True(t, logger.Enabled(LogLevelDebug))
}

func TestLevelLogger_FatalLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLevelLogger(&buf, LogLevelFatal)

	logger.Error("dropped")
	assert.Empty(t, buf.String())

	logger.logger.Log(context.Background(), levelFatal, "fatal record")
	assert.Contains(t, buf.String(), "level=FATAL")
}

func TestTestLogger(t *testing.T) {
	logger := NewTestLogger()
	child := logger.With("instance", "42")

	logger.Info("parent")
	child.Warn("child", "k", 1)

	messages := logger.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, TestLogMessage{Level: "INFO", Message: "parent", Args: []any{}}, messages[0])
	assert.Equal(t, []any{"instance", "42", "k", 1}, messages[1].Args)
	assert.True(t, logger.HasMessage("WARN", "child"))
	assert.Equal(t, 1, logger.CountMessages("WARN", "chi"))

	applyLogLevel(child, LogLevelError)
	assert.Equal(t, LogLevelError, logger.AppliedLevel())

	logger.Clear()
	assert.Empty(t, logger.Messages())
}

func TestNewLogger(t *testing.T) {
	test := NewTestLogger()
	assert.Same(t, test, NewLogger(test))
	assert.NotNil(t, NewLogger(nil))

	var buf bytes.Buffer
	adapted := NewLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	adapted.With("a", "b").Info("through slog")
	assert.True(t, strings.Contains(buf.String(), "through slog"))
	assert.False(t, applyLogLevel(adapted, LogLevelDebug))

	assert.Panics(t, func() { NewLogger("not a logger") })
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	logger.Debug("x")
	logger.Error("x")
	assert.Same(t, logger, logger.With("a", 1))
	assert.False(t, applyLogLevel(logger, LogLevelDebug))
}
