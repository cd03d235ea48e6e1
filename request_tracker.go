// request_tracker.go: In-flight RPC tracking for graceful draining
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"context"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
)

// RequestStats is a snapshot of the RPC traffic served so far.
type RequestStats struct {
	Active   int64
	Served   int64
	Failed   int64
	ByMethod map[string]int64
}

// requestTracker counts active and completed RPCs per method.
type requestTracker struct {
	active atomic.Int64
	served atomic.Int64
	failed atomic.Int64

	mu       sync.RWMutex
	byMethod map[string]*atomic.Int64
}

func newRequestTracker() *requestTracker {
	return &requestTracker{byMethod: make(map[string]*atomic.Int64)}
}

func (t *requestTracker) counter(method string) *atomic.Int64 {
	t.mu.RLock()
	c, ok := t.byMethod[method]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double-check after acquiring write lock
	if c, ok = t.byMethod[method]; !ok {
		c = &atomic.Int64{}
		t.byMethod[method] = c
	}
	return c
}

func (t *requestTracker) start(method string) {
	t.active.Add(1)
	t.counter(method).Add(1)
}

func (t *requestTracker) end(err error) {
	t.active.Add(-1)
	t.served.Add(1)
	if err != nil {
		t.failed.Add(1)
	}
}

// Active returns the number of calls currently being handled.
func (t *requestTracker) Active() int64 {
	return t.active.Load()
}

// Stats returns a snapshot of the counters.
func (t *requestTracker) Stats() RequestStats {
	t.mu.RLock()
	byMethod := make(map[string]int64, len(t.byMethod))
	for m, c := range t.byMethod {
		byMethod[m] = c.Load()
	}
	t.mu.RUnlock()

	return RequestStats{
		Active:   t.active.Load(),
		Served:   t.served.Load(),
		Failed:   t.failed.Load(),
		ByMethod: byMethod,
	}
}

func (t *requestTracker) unaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		t.start(info.FullMethod)
		resp, err := next(ctx, req)
		t.end(err)
		return resp, err
	}
}

func (t *requestTracker) streamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		t.start(info.FullMethod)
		err := next(srv, ss)
		t.end(err)
		return err
	}
}
