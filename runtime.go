// runtime.go: Plugin process entry point and control flow
//
// The runtime resolves the command line, picks the operating mode and runs
// it:
//
//   - normal: start the RPC endpoint, write the preamble, watch host pings
//   - standalone: start the RPC endpoint and serve the preamble over HTTP
//   - diagnostic: run the collector pipeline once and print a report
//
// Every way of ending a normal or standalone run (watchdog, host Kill,
// SIGINT/SIGTERM, context cancellation) goes through the same idempotent
// Shutdown.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"google.golang.org/grpc"
)

// RuntimeOption customizes a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the runtime logger. Loggers implementing LevelSetter follow
// the host's LogLevel.
func WithLogger(logger Logger) RuntimeOption {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithFlags sets the flag registry, typically NewFlags plus plugin flags.
func WithFlags(flags *Flags) RuntimeOption {
	return func(r *Runtime) {
		if flags != nil {
			r.flags = flags
		}
	}
}

// WithOutput redirects the preamble and report output (stdout by default).
func WithOutput(w io.Writer) RuntimeOption {
	return func(r *Runtime) {
		if w != nil {
			r.out = w
		}
	}
}

// WithClock sets the clock used for liveness tracking.
func WithClock(clock Clock) RuntimeOption {
	return func(r *Runtime) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithRPCServerOptions passes options to the RPC server.
func WithRPCServerOptions(opts ...RPCServerOption) RuntimeOption {
	return func(r *Runtime) {
		r.rpcOptions = append(r.rpcOptions, opts...)
	}
}

// WithServices registers the plugin-kind gRPC services on the RPC server.
func WithServices(register func(*grpc.Server)) RuntimeOption {
	return func(r *Runtime) {
		r.registrars = append(r.registrars, register)
	}
}

// Runtime runs one plugin for the lifetime of the process.
type Runtime struct {
	plugin     Plugin
	meta       Meta
	flags      *Flags
	logger     Logger
	out        io.Writer
	clock      Clock
	instanceID string
	rpcOptions []RPCServerOption
	registrars []func(*grpc.Server)

	mu       sync.Mutex
	liveness *LivenessState
	rpc      *RPCServer
	watchdog *Watchdog

	shutdownOnce sync.Once
	shutdownChan chan struct{}
}

// NewRuntime validates meta and checks that plugin implements the contract
// of its kind.
func NewRuntime(plugin Plugin, meta Meta, opts ...RuntimeOption) (*Runtime, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if plugin == nil || !checkCapability(meta.Type, plugin) {
		return nil, NewInvalidMetaError("type", "plugin does not implement the "+meta.Type.String()+" contract")
	}

	r := &Runtime{
		plugin:       plugin,
		meta:         meta,
		flags:        NewFlags(),
		logger:       DefaultLogger(),
		out:          os.Stdout,
		clock:        DefaultClock,
		instanceID:   uuid.NewString(),
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("plugin", meta.Name, "instance", r.instanceID)
	r.liveness = NewLivenessState(r.clock)
	return r, nil
}

// InstanceID returns the id attached to every log record of this runtime.
func (r *Runtime) InstanceID() string { return r.instanceID }

// Liveness returns the shared liveness state.
func (r *Runtime) Liveness() *LivenessState { return r.liveness }

// Run resolves args (without the program name) and runs the selected mode
// until it ends. Bind failures and argument errors are returned.
func (r *Runtime) Run(ctx context.Context, args []string) error {
	res, err := NewConfigResolver(r.meta, r.flags, r.logger, r.out).Resolve(args)
	if err != nil {
		return err
	}
	if res.Exit {
		return nil
	}

	if res.ConfigFile != "" && res.WatchConfig {
		watcher := NewConfigFileWatcher(res.ConfigFile, DefaultConfigPollInterval, logLevelReloader(r.logger), r.logger)
		if err := watcher.Start(); err != nil {
			r.logger.Error("Config file watching disabled", "error", err)
		} else {
			defer func() {
				if err := watcher.Stop(); err != nil {
					r.logger.Warn("Config file watcher stop failed", "error", err)
				}
			}()
		}
	}

	r.logger.Debug("Plugin starting", "mode", res.Mode.String())

	switch res.Mode {
	case NormalMode:
		return r.runNormal(ctx, res)
	case StandaloneMode:
		return r.runStandalone(ctx, res)
	case DiagnosticMode:
		return r.runDiagnostic(ctx, res)
	default:
		return NewInvalidFlagError("mode", "unknown operating mode "+res.Mode.String())
	}
}

// Shutdown stops the plugin: it flags the liveness state, stops the RPC
// server and waits for it to exit. It is idempotent and may be called from
// any goroutine, including the watchdog's.
func (r *Runtime) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.logger.Debug("plugin stopping")
		r.liveness.MarkShuttingDown()

		r.mu.Lock()
		rpc := r.rpc
		r.mu.Unlock()
		if rpc != nil {
			rpc.Stop()
		}

		close(r.shutdownChan)
		r.logger.Debug("plugin stopped")
	})
}

// ShutdownDone is closed once Shutdown has completed.
func (r *Runtime) ShutdownDone() <-chan struct{} {
	return r.shutdownChan
}

// startRPC starts the RPC endpoint and builds the success preamble. On a bind
// failure a failure preamble is written so the host is not left waiting.
func (r *Runtime) startRPC() (*Preamble, error) {
	opts := []RPCServerOption{
		WithPolicySource(r.plugin.GetConfigPolicy),
		WithKillHandler(func(string) { r.Shutdown() }),
	}
	opts = append(opts, r.rpcOptions...)
	rpc := NewRPCServer(r.meta, r.liveness, r.logger, opts...)
	for _, register := range r.registrars {
		if err := rpc.Register(register); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	r.rpc = rpc
	r.mu.Unlock()

	port, err := rpc.Start()
	if err != nil {
		if failure, ferr := NewFailurePreamble(r.meta, err); ferr == nil {
			if _, werr := failure.WriteTo(r.out); werr != nil {
				r.logger.Error("Failed to write failure preamble", "error", werr)
			}
		}
		return nil, err
	}

	preamble, err := NewPreambleForPort(r.meta, port)
	if err != nil {
		r.Shutdown()
		return nil, err
	}
	return preamble, nil
}

func (r *Runtime) runNormal(ctx context.Context, res *Resolution) error {
	preamble, err := r.startRPC()
	if err != nil {
		return err
	}
	if _, err := preamble.WriteTo(r.out); err != nil {
		r.Shutdown()
		return err
	}

	wd := NewWatchdog(r.liveness, r.Shutdown, WatchdogConfig{
		Timeout: res.PingTimeout,
		Clock:   r.clock,
		Logger:  r.logger,
	})
	r.mu.Lock()
	r.watchdog = wd
	r.mu.Unlock()
	wd.Start(ctx)

	select {
	case <-wd.Done():
	case <-r.shutdownChan:
	case <-r.rpc.Done():
	case <-ctx.Done():
	}
	if ctx.Err() != nil {
		r.logger.Info("Plugin interrupted", "reason", ctx.Err())
	}

	r.Shutdown()
	wd.Stop()
	return r.rpc.Err()
}

func (r *Runtime) runStandalone(ctx context.Context, res *Resolution) error {
	// No watchdog here: no host pings a standalone plugin.
	preamble, err := r.startRPC()
	if err != nil {
		return err
	}
	defer r.Shutdown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.shutdownChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	server := NewStandaloneServer(res.StandalonePort, preamble, r.logger)
	server.SetOutput(r.out)
	return server.Serve(ctx)
}

func (r *Runtime) runDiagnostic(ctx context.Context, res *Resolution) error {
	_, err := NewDiagnosticRunner(r.plugin, r.meta, res.Config, r.out, r.logger).Run(ctx)
	return err
}

// StartPlugin runs plugin with the process arguments until it ends and
// returns the process exit code: 0 on a clean end, 1 on failure. SIGINT and
// SIGTERM trigger a graceful shutdown.
//
// Usage example:
//
//	func main() {
//	    meta := snapplugin.NewMeta(snapplugin.CollectorPluginType, "rand", 1)
//	    os.Exit(snapplugin.StartPlugin(&randCollector{}, meta))
//	}
func StartPlugin(plugin Plugin, meta Meta, opts ...RuntimeOption) int {
	rt, err := NewRuntime(plugin, meta, opts...)
	if err != nil {
		DefaultLogger().Error("Plugin cannot start", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return exitCode(rt.logger, rt.Run(ctx, os.Args[1:]))
}

// exitCode maps the outcome of Run to a process exit code.
func exitCode(logger Logger, err error) int {
	switch {
	case err == nil:
		return 0
	case IsDiagnosticUnsupportedError(err):
		return 0
	default:
		logger.Error("Plugin failed", "error", err)
		return 1
	}
}
