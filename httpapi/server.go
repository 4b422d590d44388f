package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hupe1980/researchmesh/logging"
)

// ServerOptions configure the HTTP server wrapper.
type ServerOptions struct {
	Addr            string
	ShutdownTimeout time.Duration
	Logger          logging.Logger
}

// Server runs the API handler with graceful shutdown.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          logging.Logger
}

// NewServer wraps handler in an http.Server listening on the configured
// address.
func NewServer(handler http.Handler, optFns ...func(o *ServerOptions)) *Server {
	opts := ServerOptions{
		Addr:            ":8080",
		ShutdownTimeout: 10 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Server{
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: opts.ShutdownTimeout,
		logger:          opts.Logger,
	}
}

// ListenAndServe blocks until ctx is cancelled or the listener fails, then
// drains in-flight requests within the shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
