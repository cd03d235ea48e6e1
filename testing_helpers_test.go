// testing_helpers_test.go: Shared fixtures for the runtime tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// steppingSleep advances clock by the requested duration instead of
// sleeping, then calls hook with the 1-based call index.
func steppingSleep(clock *fakeClock, hook func(call int)) SleepFunc {
	call := 0
	return func(ctx context.Context, d time.Duration) bool {
		if ctx.Err() != nil {
			return false
		}
		call++
		clock.Advance(d)
		if hook != nil {
			hook(call)
		}
		return ctx.Err() == nil
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// countingWriter records how many Write calls it received.
type countingWriter struct {
	bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.Buffer.Write(p)
}

// failingWriter rejects every write.
type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("write refused")
}

// mockCollector is a configurable Collector.
type mockCollector struct {
	policy    *ConfigPolicy
	policyErr error
	catalog   []Metric
	catalogFn func(cfg Config) ([]Metric, error)
	collectFn func(metrics []Metric) ([]Metric, error)

	catalogCalls atomic.Int64
	collectCalls atomic.Int64
	lastCfg      Config
}

func (m *mockCollector) GetConfigPolicy() (*ConfigPolicy, error) {
	return m.policy, m.policyErr
}

func (m *mockCollector) UpdateCatalog(ctx context.Context, cfg Config) ([]Metric, error) {
	m.catalogCalls.Add(1)
	m.lastCfg = cfg
	if m.catalogFn != nil {
		return m.catalogFn(cfg)
	}
	out := make([]Metric, len(m.catalog))
	copy(out, m.catalog)
	return out, nil
}

func (m *mockCollector) Collect(ctx context.Context, metrics []Metric) ([]Metric, error) {
	m.collectCalls.Add(1)
	if m.collectFn != nil {
		return m.collectFn(metrics)
	}
	out := make([]Metric, len(metrics))
	for i, metric := range metrics {
		metric.Data = int64(i + 1)
		out[i] = metric
	}
	return out, nil
}

// mockPublisher implements only the Publisher contract.
type mockPublisher struct{}

func (mockPublisher) GetConfigPolicy() (*ConfigPolicy, error) { return nil, nil }

func (mockPublisher) Publish(ctx context.Context, metrics []Metric, cfg Config) error { return nil }

func testMeta() Meta {
	return NewMeta(CollectorPluginType, "test-collector", 3)
}
