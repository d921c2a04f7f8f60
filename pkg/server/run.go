package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	if s.cfg.UsersFile != "" {
		if _, err := LoadUsersFromYAML(s.ctx, s.cfg.UsersFile, s.store); err != nil {
			s.logger.Error("failed to load users file", "path", s.cfg.UsersFile, "err", err)
		}
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}

	s.httpSrv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.Serve(ln) }()

	s.logger.Info("portalmod server running", "addr", ln.Addr().String())

	s.StartSweeper(s.cfg.SweepInterval, s.ctx.Done())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		s.logger.Info("shutting down...")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			s.Shutdown()
			return fmt.Errorf("server: serve: %w", err)
		}
	}
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the server and closes the store.
func (s *Server) Shutdown() {
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown", "err", err)
		}
	}
	s.cancel()
	if err := s.store.Close(); err != nil {
		s.logger.Warn("close store", "err", err)
	}
}
