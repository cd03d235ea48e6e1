// errors.go: structured error definitions for the plugin runtime
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	stderrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for the plugin runtime
const (
	// Configuration errors (1700-1799)
	ErrCodeInvalidJSONConfig = "CONFIG_1701"
	ErrCodeInvalidLogLevel   = "CONFIG_1702"
	ErrCodeConfigFileError   = "CONFIG_1703"

	// RPC lifecycle errors (2000-2099)
	ErrCodeBindInUse        = "RPC_2001"
	ErrCodeBindPermission   = "RPC_2002"
	ErrCodeBindFailed       = "RPC_2003"
	ErrCodeServeFailed      = "RPC_2004"
	ErrCodeServerNotStarted = "RPC_2005"
	ErrCodeServerState      = "RPC_2006"

	// Config policy errors (2100-2199)
	ErrCodeRequiredConfigMissing = "POLICY_2101"
	ErrCodeInvalidPolicyRule     = "POLICY_2102"

	// Diagnostic errors (2200-2299)
	ErrCodeDiagnosticPhase       = "DIAG_2201"
	ErrCodeDiagnosticUnsupported = "DIAG_2202"

	// Handshake errors (2300-2399)
	ErrCodePreamble = "PREAMBLE_2301"

	// Flag registry errors (2400-2499)
	ErrCodeInvalidFlag      = "FLAG_2401"
	ErrCodeInvalidArguments = "FLAG_2402"

	// Standalone mode errors (2500-2599)
	ErrCodeStandalone = "STANDALONE_2501"

	// Plugin identity errors (2600-2699)
	ErrCodeInvalidMeta = "PLUGIN_2601"
)

// stdErrMultiLine is the cause attached when a handshake line holds more than one line.
var stdErrMultiLine = stderrors.New("unexpected newline inside preamble")

// Configuration error constructors

func NewInvalidJSONConfigError(raw string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeInvalidJSONConfig, "Invalid config provided: expected JSON").
		WithUserMessage("The provided configuration is not a JSON object, an empty configuration is used").
		WithContext("provided", raw).
		WithSeverity("warning")
}

func NewInvalidLogLevelError(given any) *errors.Error {
	return errors.New(ErrCodeInvalidLogLevel, "The log level should be between 1 and 5").
		WithUserMessage("Log level out of range, the default level is kept").
		WithContext("given", given).
		WithSeverity("error")
}

func NewConfigFileError(path string, message string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeConfigFileError, "Configuration file error: "+message).
			WithUserMessage("Configuration file could not be used").
			WithContext("config_path", path).
			WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeConfigFileError, "Configuration file error: "+message).
		WithUserMessage("Configuration file could not be used").
		WithContext("config_path", path).
		WithSeverity("error")
}

// RPC lifecycle error constructors

func NewBindInUseError(address string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeBindInUse, "Port already in use").
		WithUserMessage("The requested port is already in use").
		WithContext("address", address).
		WithSeverity("error")
}

func NewBindPermissionError(address string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeBindPermission, "Permission denied binding port").
		WithUserMessage("Port numbers below 1024 can be used only by privileged users").
		WithContext("address", address).
		WithSeverity("error")
}

func NewBindError(address string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeBindFailed, "Failed to bind listener").
		WithUserMessage("The plugin could not open its listening socket").
		WithContext("address", address).
		WithSeverity("error")
}

func NewServeError(cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeServeFailed, "RPC server stopped unexpectedly").
		WithUserMessage("The plugin RPC server failed while serving").
		WithSeverity("error")
}

func NewServerNotStartedError() *errors.Error {
	return errors.New(ErrCodeServerNotStarted, "RPC server not started").
		WithUserMessage("The RPC server must be started before it has an address").
		WithSeverity("warning")
}

func NewServerStateError(message string) *errors.Error {
	return errors.New(ErrCodeServerState, "RPC server state error: "+message).
		WithUserMessage("The RPC server cannot perform this operation in its current state").
		WithSeverity("error")
}

// Config policy error constructors

func NewRequiredConfigMissingError(keys []string) *errors.Error {
	return errors.New(ErrCodeRequiredConfigMissing, "Required config missing").
		WithUserMessage("One or more configuration keys required by the plugin were not provided").
		WithContext("missing", keys).
		WithSeverity("error")
}

func NewInvalidPolicyRuleError(key string, message string) *errors.Error {
	return errors.New(ErrCodeInvalidPolicyRule, "Invalid config policy rule: "+message).
		WithUserMessage("The plugin declared an invalid config policy rule").
		WithContext("key", key).
		WithSeverity("error")
}

// Diagnostic error constructors

func NewDiagnosticPhaseError(phase string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeDiagnosticPhase, "Diagnostic phase failed: "+phase).
		WithUserMessage("The plugin failed during a diagnostic run").
		WithContext("phase", phase).
		WithSeverity("error")
}

func NewDiagnosticUnsupportedError(kind PluginType) *errors.Error {
	return errors.New(ErrCodeDiagnosticUnsupported, "Diagnostic not supported").
		WithUserMessage("Plugin diagnostic is supported only by collector plugins").
		WithContext("plugin_type", kind.String()).
		WithSeverity("warning")
}

// Handshake error constructors

func NewPreambleError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodePreamble, "Preamble error: "+message).
		WithUserMessage("The handshake preamble could not be produced").
		WithSeverity("error")
}

// Flag registry error constructors

func NewInvalidFlagError(name string, message string) *errors.Error {
	return errors.New(ErrCodeInvalidFlag, "Invalid flag: "+message).
		WithUserMessage("The command line flag could not be registered").
		WithContext("flag", name).
		WithSeverity("error")
}

func NewArgumentsError(args []string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeInvalidArguments, "Invalid command line arguments").
		WithUserMessage("The command line arguments could not be parsed").
		WithContext("args", args).
		WithSeverity("error")
}

// Standalone mode error constructors

func NewStandaloneError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeStandalone, "Standalone server error: "+message).
		WithUserMessage("The standalone HTTP server failed").
		WithSeverity("error")
}

// Plugin identity error constructors

func NewInvalidMetaError(field string, message string) *errors.Error {
	return errors.New(ErrCodeInvalidMeta, "Invalid plugin meta: "+message).
		WithUserMessage("The plugin identity is incomplete or invalid").
		WithContext("field", field).
		WithSeverity("error")
}

// hasCode reports whether err, or any error it wraps, carries the given code.
func hasCode(err error, code string) bool {
	var coded *errors.Error
	if !stderrors.As(err, &coded) {
		return false
	}
	return coded.ErrorCode() == errors.ErrorCode(code)
}

// IsBindInUseError reports whether err is a bind failure caused by a port
// that is already taken.
func IsBindInUseError(err error) bool {
	return hasCode(err, ErrCodeBindInUse)
}

// IsBindPermissionError reports whether err is a bind failure caused by
// insufficient privileges.
func IsBindPermissionError(err error) bool {
	return hasCode(err, ErrCodeBindPermission)
}

// IsMissingConfigError reports whether err signals required configuration
// keys that were not provided.
func IsMissingConfigError(err error) bool {
	return hasCode(err, ErrCodeRequiredConfigMissing)
}

// IsDiagnosticUnsupportedError reports whether err signals a plugin kind
// without diagnostic support.
func IsDiagnosticUnsupportedError(err error) bool {
	return hasCode(err, ErrCodeDiagnosticUnsupported)
}
