// timer.go: Monotonic phase timing for diagnostic output
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"fmt"
	"time"
)

// PhaseTimer measures one phase with the monotonic clock.
type PhaseTimer struct {
	start   time.Time
	elapsed time.Duration
	stopped bool
}

// StartPhaseTimer starts a timer.
func StartPhaseTimer() *PhaseTimer {
	return &PhaseTimer{start: time.Now()}
}

// Stop freezes the timer and returns the elapsed time. Later calls return
// the same value.
func (t *PhaseTimer) Stop() time.Duration {
	if !t.stopped {
		t.elapsed = time.Since(t.start)
		t.stopped = true
	}
	return t.elapsed
}

// Elapsed returns the frozen value, or the running time if not stopped.
func (t *PhaseTimer) Elapsed() time.Duration {
	if t.stopped {
		return t.elapsed
	}
	return time.Since(t.start)
}

// String formats the elapsed time with FormatElapsed.
func (t *PhaseTimer) String() string {
	return FormatElapsed(t.Elapsed())
}

// FormatElapsed renders d in microseconds, switching to milliseconds above
// 1000 µs, with three decimals: "12.345 μs", "3.210 ms".
func FormatElapsed(d time.Duration) string {
	value := float64(d.Nanoseconds()) / 1e3
	unit := "μs"
	if value > 1000 {
		value /= 1000
		unit = "ms"
	}
	return fmt.Sprintf("%.3f %s", value, unit)
}
