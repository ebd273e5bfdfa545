package server

import (
	"context"
	"errors"
	"net/http"
)

// Start serves HTTP until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	addr := s.Cfg.GetServerAddr()
	s.logger.Info("Starting HTTP server", "addr", addr)
	if err := s.E.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Upgraded
// WebSocket connections are not waited for; the websocket.Manager closes them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.E.Shutdown(ctx)
}
