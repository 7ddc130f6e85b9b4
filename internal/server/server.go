package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"workspace-assistant/internal/common/logging"
)

// Server represents an HTTP server
type Server struct {
	srv    *http.Server
	logger logging.Logger
}

// New creates a new server instance. WriteTimeout leaves room for a full
// retry budget against the Google APIs.
func New(handler http.Handler, port string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logging.GetGlobalLogger().WithFields(logging.String("component", "server")),
	}
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Start listens on the configured address and serves in a goroutine. Bind
// errors are returned directly; a later serve failure is sent on the
// returned channel, which is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	listener, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, err
	}
	return s.Serve(listener), nil
}

// Serve serves on an existing listener
func (s *Server) Serve(listener net.Listener) <-chan error {
	errCh := make(chan error, 1)
	s.logger.Info("HTTP server listening", logging.String("addr", listener.Addr().String()))

	go func() {
		defer close(errCh)
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped unexpectedly", err)
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
