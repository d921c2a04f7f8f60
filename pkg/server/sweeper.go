package server

import (
	"context"
	"time"
)

// StartSweeper reverts run-out bans once immediately and then every
// interval. It stops when the done channel is closed. A non-positive
// interval disables sweeping.
func (s *Server) StartSweeper(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	go func() {
		s.Sweep(interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.Sweep(interval)
			}
		}
	}()
}

// Sweep runs one expiry pass bounded by timeout.
func (s *Server) Sweep(timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	n, err := s.svc.ExpireAll(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", "err", err)
	}
	return n
}
