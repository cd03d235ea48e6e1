// errors_test.go: Tests for structured error definitions
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	stderrors "errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/agilira/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorConstructors(t *testing.T) {
	cause := stderrors.New("boom")

	tests := []struct {
		name     string
		err      *errors.Error
		code     string
		severity string
	}{
		{"invalid json config", NewInvalidJSONConfigError("{bad", cause), ErrCodeInvalidJSONConfig, "warning"},
		{"invalid log level", NewInvalidLogLevelError(9), ErrCodeInvalidLogLevel, "error"},
		{"config file with cause", NewConfigFileError("/tmp/x.yaml", "read failed", cause), ErrCodeConfigFileError, "error"},
		{"config file without cause", NewConfigFileError("/tmp/x.yaml", "missing", nil), ErrCodeConfigFileError, "error"},
		{"bind in use", NewBindInUseError("127.0.0.1:1", cause), ErrCodeBindInUse, "error"},
		{"bind permission", NewBindPermissionError("127.0.0.1:1", cause), ErrCodeBindPermission, "error"},
		{"bind failed", NewBindError("127.0.0.1:1", cause), ErrCodeBindFailed, "error"},
		{"serve failed", NewServeError(cause), ErrCodeServeFailed, "error"},
		{"not started", NewServerNotStartedError(), ErrCodeServerNotStarted, "warning"},
		{"server state", NewServerStateError("already stopped"), ErrCodeServerState, "error"},
		{"required config", NewRequiredConfigMissingError([]string{"a"}), ErrCodeRequiredConfigMissing, "error"},
		{"policy rule", NewInvalidPolicyRuleError("k", "bad"), ErrCodeInvalidPolicyRule, "error"},
		{"diagnostic phase", NewDiagnosticPhaseError(PhaseCollect, cause), ErrCodeDiagnosticPhase, "error"},
		{"diagnostic unsupported", NewDiagnosticUnsupportedError(PublisherPluginType), ErrCodeDiagnosticUnsupported, "warning"},
		{"preamble", NewPreambleError("write failed", cause), ErrCodePreamble, "error"},
		{"invalid flag", NewInvalidFlagError("x", "bad"), ErrCodeInvalidFlag, "error"},
		{"arguments", NewArgumentsError([]string{"--nope"}, cause), ErrCodeInvalidArguments, "error"},
		{"standalone", NewStandaloneError("serve failed", cause), ErrCodeStandalone, "error"},
		{"invalid meta", NewInvalidMetaError("name", "required"), ErrCodeInvalidMeta, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, errors.ErrorCode(tt.code), tt.err.ErrorCode())
			assert.Equal(t, tt.severity, tt.err.Severity)
			assert.NotEmpty(t, tt.err.UserMessage())
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrorContext(t *testing.T) {
	err := NewInvalidJSONConfigError("{bad", stderrors.New("syntax"))
	assert.Equal(t, "{bad", err.Context["provided"])

	err = NewBindInUseError("127.0.0.1:8181", syscall.EADDRINUSE)
	assert.Equal(t, "127.0.0.1:8181", err.Context["address"])

	err = NewDiagnosticUnsupportedError(ProcessorPluginType)
	assert.Equal(t, "processor", err.Context["plugin_type"])

	err = NewRequiredConfigMissingError([]string{"threshold"})
	assert.Equal(t, []string{"threshold"}, err.Context["missing"])
}

func TestErrorPredicates(t *testing.T) {
	inUse := NewBindInUseError("127.0.0.1:1", syscall.EADDRINUSE)
	denied := NewBindPermissionError("127.0.0.1:80", syscall.EACCES)
	missing := NewRequiredConfigMissingError([]string{"a"})
	unsupported := NewDiagnosticUnsupportedError(PublisherPluginType)

	assert.True(t, IsBindInUseError(inUse))
	assert.False(t, IsBindInUseError(denied))
	assert.True(t, IsBindPermissionError(denied))
	assert.True(t, IsMissingConfigError(missing))
	assert.True(t, IsDiagnosticUnsupportedError(unsupported))

	// Predicates see through fmt wrapping.
	wrapped := fmt.Errorf("starting plugin: %w", inUse)
	assert.True(t, IsBindInUseError(wrapped))

	assert.False(t, IsBindInUseError(nil))
	assert.False(t, IsMissingConfigError(stderrors.New("plain")))
}
