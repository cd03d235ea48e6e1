// rpc_server.go: RPC endpoint lifecycle
//
// This file owns the plugin's gRPC endpoint: it binds an OS-assigned loopback
// port, serves the control and health services, and stops them. Stop blocks
// until the server has fully exited, so no RPC is served after it returns.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	stderrors "errors"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultGracePeriod bounds how long Stop waits for in-flight calls before
// forcing the server closed.
const DefaultGracePeriod = 5 * time.Second

// RPCServerOption customizes an RPCServer.
type RPCServerOption func(*RPCServer)

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) RPCServerOption {
	return func(s *RPCServer) {
		if d > 0 {
			s.gracePeriod = d
		}
	}
}

// WithListenPort binds a fixed loopback port instead of an ephemeral one.
func WithListenPort(port int) RPCServerOption {
	return func(s *RPCServer) {
		s.listenPort = port
	}
}

// WithGRPCServerOptions passes options to grpc.NewServer.
func WithGRPCServerOptions(opts ...grpc.ServerOption) RPCServerOption {
	return func(s *RPCServer) {
		s.grpcOptions = append(s.grpcOptions, opts...)
	}
}

// WithPolicySource sets the function answering GetConfigPolicy.
func WithPolicySource(policy func() (*ConfigPolicy, error)) RPCServerOption {
	return func(s *RPCServer) {
		s.control.policy = policy
	}
}

// WithKillHandler sets the function run when the host calls Kill.
func WithKillHandler(kill func(reason string)) RPCServerOption {
	return func(s *RPCServer) {
		s.control.kill = kill
	}
}

// RPCServer manages the lifecycle of the plugin's gRPC endpoint.
type RPCServer struct {
	meta        Meta
	logger      Logger
	server      *grpc.Server
	health      *health.Server
	control     *controlService
	gracePeriod time.Duration
	listenPort  int
	grpcOptions []grpc.ServerOption
	registrars  []func(*grpc.Server)
	tracker     *requestTracker

	mu       sync.Mutex
	listener net.Listener
	port     int
	started  bool
	stopped  bool
	serveErr error

	stopOnce sync.Once
	doneChan chan struct{}
}

// NewRPCServer creates an unstarted server for meta. Ping calls record into
// liveness.
func NewRPCServer(meta Meta, liveness *LivenessState, logger Logger, opts ...RPCServerOption) *RPCServer {
	if logger == nil {
		logger = DefaultLogger()
	}
	if liveness == nil {
		liveness = NewLivenessState(nil)
	}

	s := &RPCServer{
		meta:        meta,
		logger:      logger,
		gracePeriod: DefaultGracePeriod,
		control: &controlService{
			liveness: liveness,
			logger:   logger,
		},
		tracker:  newRequestTracker(),
		doneChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a hook registering plugin-kind services. Hooks run at Start;
// registering after Start has no effect and is reported as an error.
func (s *RPCServer) Register(register func(*grpc.Server)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return NewServerStateError("services must be registered before Start")
	}
	s.registrars = append(s.registrars, register)
	return nil
}

func (s *RPCServer) address() string {
	return net.JoinHostPort(LoopbackHost, strconv.Itoa(s.listenPort))
}

// Start binds the listener, starts serving in the background and returns the
// bound port. Bind failures are returned as RPC_2001 (in use), RPC_2002
// (permission) or RPC_2003 (other); no retry is attempted. Calling Start on a
// running server returns its port.
func (s *RPCServer) Start() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, NewServerStateError("server already stopped")
	}
	if s.started {
		return s.port, nil
	}

	addr := s.address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error("Failed to bind RPC listener", "address", addr, "error", err)
		return 0, classifyBindError(addr, err)
	}
	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		if closeErr := listener.Close(); closeErr != nil {
			s.logger.Warn("Failed to close listener", "error", closeErr)
		}
		return 0, NewBindError(addr, stderrors.New("listener address is not TCP"))
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			s.tracker.unaryInterceptor(),
			recoveryUnaryInterceptor(loggingRecoveryHandler(s.logger)),
		),
		grpc.ChainStreamInterceptor(
			s.tracker.streamInterceptor(),
			recoveryStreamInterceptor(loggingRecoveryHandler(s.logger)),
		),
	}, s.grpcOptions...)
	s.server = grpc.NewServer(serverOpts...)
	s.server.RegisterService(&ControlServiceDesc, s.control)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.server, s.health)
	for _, register := range s.registrars {
		register(s.server)
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ControlServiceName, healthpb.HealthCheckResponse_SERVING)

	s.listener = listener
	s.port = tcpAddr.Port
	s.started = true

	go s.serve(s.server, listener)

	s.logger.Info("RPC server listening",
		"address", tcpAddr.String(),
		"rpc_type", s.meta.RPCType.String(),
		"rpc_version", s.meta.RPCVersion)

	return s.port, nil
}

func (s *RPCServer) serve(server *grpc.Server, listener net.Listener) {
	defer close(s.doneChan)
	if err := server.Serve(listener); err != nil {
		s.mu.Lock()
		s.serveErr = NewServeError(err)
		s.mu.Unlock()
		s.logger.Error("RPC server stopped with error", "error", err)
	}
}

// Stop shuts the server down and blocks until it has exited. In-flight calls
// get the grace period to finish before the server is closed hard. Stop is
// idempotent and safe before Start.
func (s *RPCServer) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		wasStarted := s.started
		s.stopped = true
		server, healthServer := s.server, s.health
		s.mu.Unlock()

		if !wasStarted {
			close(s.doneChan)
			return
		}

		s.logger.Debug("RPC server stopping", "active_requests", s.tracker.Active())
		healthServer.Shutdown()

		graceful := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(graceful)
		}()

		timer := time.NewTimer(s.gracePeriod)
		defer timer.Stop()
		select {
		case <-graceful:
		case <-timer.C:
			s.logger.Warn("RPC graceful stop timed out, forcing close", "grace_period", s.gracePeriod)
			server.Stop()
			<-graceful
		}
	})

	<-s.doneChan
	stats := s.tracker.Stats()
	s.logger.Debug("RPC server stopped", "served", stats.Served, "failed", stats.Failed)
}

// Stats returns the RPC traffic counters.
func (s *RPCServer) Stats() RequestStats {
	return s.tracker.Stats()
}

// Done is closed once the server has stopped serving.
func (s *RPCServer) Done() <-chan struct{} {
	return s.doneChan
}

// Err returns the error that ended serving, if serving failed on its own.
func (s *RPCServer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serveErr
}

// Port returns the bound port, 0 before Start.
func (s *RPCServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Addr returns the bound "host:port".
func (s *RPCServer) Addr() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return "", NewServerNotStartedError()
	}
	return net.JoinHostPort(LoopbackHost, strconv.Itoa(s.port)), nil
}

// classifyBindError maps a listen failure to its coded error.
func classifyBindError(addr string, err error) error {
	switch {
	case stderrors.Is(err, syscall.EADDRINUSE):
		return NewBindInUseError(addr, err)
	case stderrors.Is(err, syscall.EACCES):
		return NewBindPermissionError(addr, err)
	default:
		return NewBindError(addr, err)
	}
}
