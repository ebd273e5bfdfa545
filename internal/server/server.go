package server

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/duochat/internal/auth"
	"github.com/nfrund/duochat/internal/config"
	"github.com/nfrund/duochat/internal/handlers"
	"github.com/nfrund/duochat/internal/middleware"
	"github.com/nfrund/duochat/internal/websocket"
)

// Dependencies are the handlers and services the HTTP server routes to.
type Dependencies struct {
	Authenticator auth.Authenticator
	WebSocket     *websocket.Handler
	Chat          *handlers.ChatHandler
	Connections   *handlers.ConnectionsHandler
	Health        *handlers.HealthHandler
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E      *echo.Echo
	Cfg    config.Provider
	deps   Dependencies
	logger *slog.Logger
}

// New creates a Server with middleware and routes registered.
func New(cfg config.Provider, deps Dependencies, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))
	setupErrorHandling(e)

	s := &Server{
		E:      e,
		Cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "http"),
	}
	s.RegisterRoutes()
	return s
}
