// standalone.go: HTTP responder serving the preamble in standalone mode
//
// In standalone mode the plugin is started by hand and the host fetches the
// preamble over HTTP instead of reading it from the process output. Every
// request, whatever its method or path, gets the same document.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

// standaloneShutdownTimeout bounds the HTTP server shutdown.
const standaloneShutdownTimeout = 5 * time.Second

// StandaloneServer answers every HTTP request with the preamble document.
type StandaloneServer struct {
	port   int
	body   []byte
	logger Logger
	out    io.Writer

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// NewStandaloneServer creates a server for port. The body served is the
// preamble encoding at construction time.
func NewStandaloneServer(port int, preamble *Preamble, logger Logger) *StandaloneServer {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &StandaloneServer{
		port:   port,
		body:   preamble.Encode(),
		logger: logger,
		out:    os.Stdout,
	}
}

// SetOutput changes where the "Plugin loaded at" line is printed.
func (s *StandaloneServer) SetOutput(w io.Writer) {
	s.out = w
}

// Handler returns the preamble handler. It does no routing and no logging.
func (s *StandaloneServer) Handler() http.Handler {
	body := s.body
	length := strconv.Itoa(len(body))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Length", length)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(body)
	})
}

// Listen binds the TCP port on all interfaces. A taken port is reported as
// RPC_2001 and a privileged one as RPC_2002.
func (s *StandaloneServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	addr := net.JoinHostPort("", strconv.Itoa(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		bindErr := classifyBindError(addr, err)
		switch {
		case IsBindInUseError(bindErr):
			s.logger.Error(fmt.Sprintf("Port %d already in use.", s.port))
		case IsBindPermissionError(bindErr):
			s.logger.Error("Port numbers below 1024 can be used only by privileged users.", "port", s.port)
		default:
			s.logger.Error("Failed to bind standalone server", "port", s.port, "error", err)
		}
		return bindErr
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *StandaloneServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve answers requests until ctx is done, then shuts down and releases the
// socket before returning. It binds first if Listen was not called.
func (s *StandaloneServer) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	listener := s.listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.New(io.Discard, "", 0),
	}
	server := s.server
	s.mu.Unlock()

	fmt.Fprintf(s.out, "Plugin loaded at %s\n", listener.Addr())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return NewStandaloneError("serve failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), standaloneShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Standalone server shutdown timed out, closing", "error", err)
		if closeErr := server.Close(); closeErr != nil {
			s.logger.Warn("Failed to close standalone server", "error", closeErr)
		}
	}
	<-serveErr
	s.logger.Debug("Standalone server stopped")
	return nil
}
