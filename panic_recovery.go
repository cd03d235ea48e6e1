// panic_recovery.go: Panic recovery for plugin callbacks and RPC handlers
//
// Plugin code runs inside the runtime's goroutines: a panicking Collect or
// control handler must not take the process down without a trace.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"context"
	"fmt"
	"runtime"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// stackBufferSize bounds the captured stack trace.
const stackBufferSize = 64 << 10

// RecoveryHandler receives a recovered panic value and its stack.
type RecoveryHandler func(recovered any, stack []byte)

func captureStack() []byte {
	buf := make([]byte, stackBufferSize)
	n := runtime.Stack(buf, false)
	return buf[:n]
}

// withStackRecover returns a deferred function that logs a panic with its
// stack trace.
//
//	go func() {
//	    defer withStackRecover(logger)()
//	    ...
//	}()
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered in goroutine",
				"panic", r,
				"stack", string(captureStack()))
		}
	}
}

// safeGo runs fn in a new goroutine that logs instead of crashing on panic.
func safeGo(logger Logger, fn func()) {
	go func() {
		defer withStackRecover(logger)()
		fn()
	}()
}

// PanicError is returned when a plugin callback panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("plugin panicked: %v", e.Value)
}

// callSafely runs fn and turns a panic into a *PanicError.
func callSafely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: captureStack()}
		}
	}()
	return fn()
}

// recoveryUnaryInterceptor answers codes.Internal to a call whose handler
// panicked and passes the panic to handler.
func recoveryUnaryInterceptor(handler RecoveryHandler) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				if handler != nil {
					handler(r, captureStack())
				}
				resp, err = nil, status.Errorf(codes.Internal, "panic in %s: %v", info.FullMethod, r)
			}
		}()
		return next(ctx, req)
	}
}

// recoveryStreamInterceptor is the streaming counterpart of
// recoveryUnaryInterceptor.
func recoveryStreamInterceptor(handler RecoveryHandler) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				if handler != nil {
					handler(r, captureStack())
				}
				err = status.Errorf(codes.Internal, "panic in %s: %v", info.FullMethod, r)
			}
		}()
		return next(srv, ss)
	}
}

// loggingRecoveryHandler logs recovered RPC panics with the method context.
func loggingRecoveryHandler(logger Logger) RecoveryHandler {
	return func(recovered any, stack []byte) {
		logger.Error("Panic recovered in RPC handler",
			"panic", recovered,
			"stack", string(stack))
	}
}
