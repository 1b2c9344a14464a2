package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"paper-trade-go/internal/config"

	"go.uber.org/zap"
)

// Server owns the HTTP listener of the API.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer creates a new Server for handler.
func NewServer(cfg config.Server, handler http.Handler, logger *zap.Logger) *Server {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: server,
		logger: logger.Named("api-server"),
	}
}

// Start binds the listener and serves in a new goroutine. A bind failure is
// returned; a later serve failure is sent on the returned channel.
func (s *Server) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("Starting API server", zap.String("address", ln.Addr().String()))
	errc := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
			errc <- err
		}
		close(errc)
	}()
	return errc, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}
