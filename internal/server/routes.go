package server

import (
	"github.com/nfrund/duochat/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	s.E.GET("/health", s.deps.Health.Get)
	s.E.GET("/ws", s.deps.WebSocket.Serve)

	// Limiting runs before authentication so it is keyed by client IP.
	api := s.E.Group("/api/v1",
		middleware.RateLimiter(s.Cfg.GetRateLimitPerMinute()),
		middleware.Auth(s.deps.Authenticator),
	)
	api.POST("/messages", s.deps.Chat.SendMessage)
	api.GET("/rooms/:peerId", s.deps.Chat.GetRoom)
	api.GET("/connections", s.deps.Connections.List)
	api.DELETE("/connections/:id", s.deps.Connections.Close)
}
