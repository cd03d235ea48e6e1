// config_test.go: Tests for argument resolution and the effective config
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveForTest(t *testing.T, args ...string) (*Resolution, *TestLogger, *bytes.Buffer) {
	t.Helper()
	logger := NewTestLogger()
	out := &bytes.Buffer{}
	res, err := NewConfigResolver(testMeta(), NewFlags(), logger, out).Resolve(args)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res, logger, out
}

func TestResolve_ModeSelection(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		mode     Mode
		port     int
		expected Config
	}{
		{
			name:     "positional config selects normal mode",
			args:     []string{`{"answer": 42}`},
			mode:     NormalMode,
			port:     DefaultStandAlonePort,
			expected: Config{"answer": float64(42)},
		},
		{
			name:     "positional config wins over stand-alone",
			args:     []string{"--stand-alone", `{"answer": 1}`},
			mode:     NormalMode,
			port:     DefaultStandAlonePort,
			expected: Config{"answer": float64(1)},
		},
		{
			name:     "stand-alone with default port",
			args:     []string{"--stand-alone"},
			mode:     StandaloneMode,
			port:     DefaultStandAlonePort,
			expected: Config{ConfigKeyLogLevel: int64(DefaultFlagLogLevel)},
		},
		{
			name:     "stand-alone with config and port",
			args:     []string{"--stand-alone", "--stand-alone-port", "9090", "--config", `{"k": "v"}`},
			mode:     StandaloneMode,
			port:     9090,
			expected: Config{"k": "v"},
		},
		{
			name:     "no arguments selects diagnostic",
			args:     nil,
			mode:     DiagnosticMode,
			port:     DefaultStandAlonePort,
			expected: Config{ConfigKeyLogLevel: int64(DefaultFlagLogLevel)},
		},
		{
			name:     "diagnostic with config flag",
			args:     []string{"--config", `{"threshold": 0.5}`},
			mode:     DiagnosticMode,
			port:     DefaultStandAlonePort,
			expected: Config{"threshold": 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _, _ := resolveForTest(t, tt.args...)
			assert.Equal(t, tt.mode, res.Mode)
			assert.Equal(t, tt.port, res.StandalonePort)
			assert.Equal(t, tt.expected, res.Config)
			assert.False(t, res.Exit)
		})
	}
}

func TestResolve_MalformedConfigDegradesToEmpty(t *testing.T) {
	res, logger, _ := resolveForTest(t, "{bad")

	assert.Equal(t, NormalMode, res.Mode)
	assert.Empty(t, res.Config)
	assert.Equal(t, DefaultLogLevel, res.LogLevel)
	assert.Equal(t, 1, logger.CountMessages("WARN", "Invalid config provided: expected JSON (provided={bad)."))
}

func TestResolve_NonObjectConfig(t *testing.T) {
	res, logger, _ := resolveForTest(t, "[1,2,3]")
	assert.Empty(t, res.Config)
	assert.Equal(t, 1, logger.CountMessages("WARN", "Invalid config provided"))
}

func TestResolve_LogLevel(t *testing.T) {
	for level := 1; level <= 5; level++ {
		t.Run("valid "+strconv.Itoa(level), func(t *testing.T) {
			res, logger, _ := resolveForTest(t, `{"LogLevel": `+strconv.Itoa(level)+`}`)
			assert.Equal(t, LogLevel(level), res.LogLevel)
			assert.Equal(t, LogLevel(level), logger.AppliedLevel())
			assert.Zero(t, logger.CountMessages("ERROR", "log level"))
		})
	}

	for _, raw := range []string{"0", "6", "-1", "2.5", `"loud"`} {
		t.Run("invalid "+raw, func(t *testing.T) {
			res, logger, _ := resolveForTest(t, `{"LogLevel": `+raw+`}`)
			assert.Equal(t, DefaultLogLevel, res.LogLevel)
			assert.Equal(t, DefaultLogLevel, logger.AppliedLevel())
			assert.True(t, logger.HasMessage("ERROR", "The log level should be between 1 and 5."))
		})
	}

	t.Run("log-level flag", func(t *testing.T) {
		res, logger, _ := resolveForTest(t, "--log-level", "1")
		assert.Equal(t, LogLevelDebug, res.LogLevel)
		assert.Equal(t, LogLevelDebug, logger.AppliedLevel())
	})

	t.Run("string level in config", func(t *testing.T) {
		res, _, _ := resolveForTest(t, `{"LogLevel": "4"}`)
		assert.Equal(t, LogLevelError, res.LogLevel)
	})
}

func TestResolve_PingTimeout(t *testing.T) {
	res, _, _ := resolveForTest(t, `{"PingTimeoutDuration": 2000}`)
	assert.Equal(t, 2*time.Second, res.PingTimeout)

	res, _, _ = resolveForTest(t, `{}`)
	assert.Equal(t, DefaultPingTimeout, res.PingTimeout)

	res, _, _ = resolveForTest(t, `{"PingTimeoutDuration": -5}`)
	assert.Equal(t, DefaultPingTimeout, res.PingTimeout)
}

func TestResolve_Version(t *testing.T) {
	for _, flag := range []string{"--version", "-v"} {
		t.Run(flag, func(t *testing.T) {
			res, _, out := resolveForTest(t, flag)
			assert.True(t, res.Exit)
			assert.Equal(t, "test-collector v3\n", out.String())
		})
	}
}

func TestResolve_Help(t *testing.T) {
	res, _, out := resolveForTest(t, "--help")
	assert.True(t, res.Exit)
	assert.Contains(t, out.String(), "stand-alone-port")
	assert.Contains(t, out.String(), "(default: 8181)")
}

func TestResolve_UnknownFlag(t *testing.T) {
	_, err := NewConfigResolver(testMeta(), NewFlags(), NewNoOpLogger(), &bytes.Buffer{}).
		Resolve([]string{"--no-such-flag"})
	require.Error(t, err)
	assert.True(t, hasCode(err, ErrCodeInvalidArguments))
}

func TestResolve_BadPort(t *testing.T) {
	_, err := NewConfigResolver(testMeta(), NewFlags(), NewNoOpLogger(), &bytes.Buffer{}).
		Resolve([]string{"--stand-alone", "--stand-alone-port", "http"})
	require.Error(t, err)
	assert.True(t, hasCode(err, ErrCodeInvalidFlag))
}

func TestResolve_PluginFlags(t *testing.T) {
	flags := NewFlags()
	require.NoError(t, flags.Add("interval", ValueFlag, "collection interval", "10s"))
	require.NoError(t, flags.Add("verbose", ToggleFlag, "chatty output", false))

	res, err := NewConfigResolver(testMeta(), flags, NewNoOpLogger(), &bytes.Buffer{}).
		Resolve([]string{"--verbose"})
	require.NoError(t, err)

	assert.Equal(t, "10s", res.FlagValues["interval"])
	assert.Equal(t, true, res.FlagValues["verbose"])
	assert.Equal(t, false, res.FlagValues[FlagStandAlone])
	assert.NotContains(t, res.FlagValues, FlagConfig)
}

func TestResolve_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.yaml")
	require.NoError(t, os.WriteFile(path, []byte("LogLevel: 2\nendpoint: http://localhost\nanswer: 1\n"), 0o600))

	t.Run("file seeds the config", func(t *testing.T) {
		res, _, _ := resolveForTest(t, "--config-file", path)
		assert.Equal(t, "http://localhost", res.Config["endpoint"])
		assert.Equal(t, LogLevelInfo, res.LogLevel)
		assert.Equal(t, path, res.ConfigFile)
	})

	t.Run("json document overrides the file", func(t *testing.T) {
		res, _, _ := resolveForTest(t, "--config-file", path, "--config", `{"answer": 42}`)
		assert.Equal(t, float64(42), res.Config["answer"])
		assert.Equal(t, "http://localhost", res.Config["endpoint"])
	})

	t.Run("malformed json keeps the file", func(t *testing.T) {
		res, _, _ := resolveForTest(t, "--config-file", path, "--config", "{oops")
		assert.Equal(t, "http://localhost", res.Config["endpoint"])
	})

	t.Run("missing file is reported", func(t *testing.T) {
		res, logger, _ := resolveForTest(t, "--config-file", filepath.Join(dir, "absent.json"))
		assert.True(t, logger.HasMessage("ERROR", "Ignoring config file"))
		assert.Equal(t, DiagnosticMode, res.Mode)
	})
}

func TestParseConfigJSON(t *testing.T) {
	cfg, err := ParseConfigJSON(`{"a": 1, "b": "x", "c": true, "d": null}`)
	require.NoError(t, err)
	assert.Equal(t, Config{"a": float64(1), "b": "x", "c": true, "d": nil}, cfg)

	for _, raw := range []string{"", "{bad", "42", `"str"`, "null"} {
		cfg, err := ParseConfigJSON(raw)
		require.Error(t, err, raw)
		assert.True(t, hasCode(err, ErrCodeInvalidJSONConfig))
		assert.Empty(t, cfg)
	}
}

func TestConfig_Accessors(t *testing.T) {
	cfg := Config{
		"int":    float64(3),
		"frac":   2.5,
		"num":    json.Number("12"),
		"str":    "s",
		"flag":   true,
		"native": int32(7),
	}

	n, ok := cfg.GetInt("int")
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	_, ok = cfg.GetInt("frac")
	assert.False(t, ok)

	n, ok = cfg.GetInt("num")
	assert.True(t, ok)
	assert.Equal(t, int64(12), n)

	n, ok = cfg.GetInt("native")
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	f, ok := cfg.GetFloat("frac")
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)

	s, ok := cfg.GetString("str")
	assert.True(t, ok)
	assert.Equal(t, "s", s)

	b, ok := cfg.GetBool("flag")
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = cfg.GetString("missing")
	assert.False(t, ok)

	clone := cfg.Clone()
	clone["str"] = "changed"
	assert.Equal(t, "s", cfg["str"])

	var empty Config
	assert.NotNil(t, empty.Clone())
}

func TestConfig_LogLevel(t *testing.T) {
	level, err := Config{}.LogLevel()
	assert.NoError(t, err)
	assert.Equal(t, DefaultLogLevel, level)

	level, err = Config{ConfigKeyLogLevel: float64(1)}.LogLevel()
	assert.NoError(t, err)
	assert.Equal(t, LogLevelDebug, level)

	level, err = Config{ConfigKeyLogLevel: float64(7)}.LogLevel()
	require.Error(t, err)
	assert.True(t, hasCode(err, ErrCodeInvalidLogLevel))
	assert.Equal(t, DefaultLogLevel, level)
}
