// liveness.go: Shared liveness state between the ping handler and the watchdog
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// DefaultClock reads the cached wall clock.
func DefaultClock() time.Time {
	return timecache.CachedTime()
}

// LivenessState holds the last ping timestamp and the shutting-down flag.
//
// The two fields are independent: each is read and written atomically on its
// own and never updated together.
type LivenessState struct {
	lastPing     atomic.Int64 // Unix nanoseconds
	shuttingDown atomic.Bool
	clock        Clock
}

// NewLivenessState creates a liveness state whose last ping is "now".
func NewLivenessState(clock Clock) *LivenessState {
	if clock == nil {
		clock = DefaultClock
	}
	l := &LivenessState{clock: clock}
	l.lastPing.Store(clock().UnixNano())
	return l
}

// RecordPing stamps the current time as the last ping.
func (l *LivenessState) RecordPing() {
	l.lastPing.Store(l.clock().UnixNano())
}

// LastPing returns the time of the most recent ping.
func (l *LivenessState) LastPing() time.Time {
	return time.Unix(0, l.lastPing.Load())
}

// MarkShuttingDown sets the shutdown flag. It returns true only for the call
// that flipped it.
func (l *LivenessState) MarkShuttingDown() bool {
	return l.shuttingDown.CompareAndSwap(false, true)
}

// ShuttingDown reports whether shutdown has been initiated.
func (l *LivenessState) ShuttingDown() bool {
	return l.shuttingDown.Load()
}

// Now reads the state's clock.
func (l *LivenessState) Now() time.Time {
	return l.clock()
}
