// health_checker.go: Watchdog monitoring host liveness pings
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MaxMissedHealthChecks is the number of consecutive missed windows after
// which the watchdog shuts the plugin down.
const MaxMissedHealthChecks = 3

// DefaultPingTimeout is used when the host does not send PingTimeoutDuration.
const DefaultPingTimeout = 5 * time.Second

// maxCheckInterval caps the watchdog cadence.
const maxCheckInterval = time.Second

// WatchdogState is the lifecycle state of a Watchdog.
type WatchdogState int32

const (
	WatchdogWatching WatchdogState = iota
	WatchdogShutdownRequested
	WatchdogStopped
)

// String returns a human-readable representation of the state.
func (s WatchdogState) String() string {
	switch s {
	case WatchdogWatching:
		return "watching"
	case WatchdogShutdownRequested:
		return "shutdown-requested"
	case WatchdogStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SleepFunc waits for d or until ctx is done. It returns false when the wait
// was interrupted.
type SleepFunc func(ctx context.Context, d time.Duration) bool

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// WatchdogConfig configures a Watchdog. Zero values select the defaults.
type WatchdogConfig struct {
	// Timeout is the ping staleness window. Defaults to DefaultPingTimeout.
	Timeout time.Duration

	// Clock defaults to the liveness state's clock.
	Clock Clock

	// Sleep defaults to a timer honouring context cancellation.
	Sleep SleepFunc

	Logger Logger
}

// Watchdog detects a silent or dead host and shuts the plugin down.
//
// It checks on an independent cadence of min(1s, timeout). A window counts as
// missed when both the last check and the last ping are older than the
// timeout; a ping inside the window clears the counter. After
// MaxMissedHealthChecks consecutive misses the shutdown callback runs once and
// the watchdog stops. Stopped is terminal.
//
// Usage example:
//
//	liveness := NewLivenessState(nil)
//	wd := NewWatchdog(liveness, runtime.Shutdown, WatchdogConfig{Timeout: 5 * time.Second})
//	wd.Start(ctx)
//	<-wd.Done()
type Watchdog struct {
	liveness *LivenessState
	shutdown func()

	timeout  time.Duration
	interval time.Duration
	clock    Clock
	sleep    SleepFunc
	logger   Logger

	misses  atomic.Int64
	state   atomic.Int32
	started atomic.Bool

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWatchdog creates a watchdog over liveness. shutdown is the process-wide
// shutdown path; it is invoked at most once by the watchdog.
func NewWatchdog(liveness *LivenessState, shutdown func(), config WatchdogConfig) *Watchdog {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	interval := maxCheckInterval
	if timeout < interval {
		interval = timeout
	}

	clock := config.Clock
	if clock == nil {
		clock = liveness.Now
	}
	sleep := config.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := config.Logger
	if logger == nil {
		logger = DefaultLogger()
	}
	if shutdown == nil {
		shutdown = func() {}
	}

	return &Watchdog{
		liveness: liveness,
		shutdown: shutdown,
		timeout:  timeout,
		interval: interval,
		clock:    clock,
		sleep:    sleep,
		logger:   logger,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Timeout returns the staleness window in use.
func (w *Watchdog) Timeout() time.Duration { return w.timeout }

// Interval returns the check cadence in use.
func (w *Watchdog) Interval() time.Duration { return w.interval }

// State returns the current lifecycle state.
func (w *Watchdog) State() WatchdogState {
	return WatchdogState(w.state.Load())
}

// Misses returns the current consecutive miss count.
func (w *Watchdog) Misses() int {
	return int(w.misses.Load())
}

// Done is closed once the watchdog reaches Stopped.
func (w *Watchdog) Done() <-chan struct{} {
	return w.doneChan
}

// Start runs the watchdog in its own goroutine. Only the first call to Start
// or Run has an effect.
func (w *Watchdog) Start(ctx context.Context) {
	if w.started.CompareAndSwap(false, true) {
		go w.run(ctx)
	}
}

// Run runs the watchdog loop and blocks until it stops. If the watchdog is
// already running, Run waits for it to stop.
func (w *Watchdog) Run(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		<-w.doneChan
		return
	}
	w.run(ctx)
}

// Stop ends monitoring without triggering shutdown and waits for the loop to
// exit. It is idempotent and safe to call before Start.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	if w.started.Load() {
		<-w.doneChan
	}
}

func (w *Watchdog) run(ctx context.Context) {
	defer close(w.doneChan)
	defer w.state.Store(int32(WatchdogStopped))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	w.logger.Debug("Watchdog started",
		"timeout", w.timeout,
		"interval", w.interval)

	lastCheck := w.clock()
	for {
		if !w.sleep(ctx, w.interval) || ctx.Err() != nil {
			w.logger.Debug("Watchdog cancelled")
			return
		}
		if w.liveness.ShuttingDown() {
			w.logger.Debug("Watchdog observed shutdown")
			return
		}

		now := w.clock()
		sinceCheck := now.Sub(lastCheck)
		sincePing := now.Sub(w.liveness.LastPing())

		if sinceCheck > w.timeout && sincePing > w.timeout {
			lastCheck = now
			missed := w.misses.Add(1)
			w.logger.Warn("Missed ping health check from the framework.",
				"missed", missed,
				"of", MaxMissedHealthChecks)

			if missed >= MaxMissedHealthChecks {
				w.state.Store(int32(WatchdogShutdownRequested))
				w.logger.Error("No ping received from the framework, shutting down",
					"missed", missed,
					"last_ping", w.liveness.LastPing(),
					"timeout", w.timeout)
				w.shutdown()
				return
			}
		} else if sincePing <= w.timeout {
			w.misses.Store(0)
		}
	}
}
