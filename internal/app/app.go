package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/nfrund/duochat/internal/config"
	"github.com/nfrund/duochat/internal/server"
)

// App is the composition root: one injector holding every long-lived
// service of the process.
type App struct {
	injector *do.RootScope
	cfg      config.Provider
}

// New creates an App for cfg.
func New(cfg config.Provider) *App {
	injector := do.New(Services)
	do.ProvideValue(injector, cfg)
	return &App{injector: injector, cfg: cfg}
}

// Injector exposes the service graph, mainly for tests.
func (a *App) Injector() do.Injector {
	return a.injector
}

// Run builds the server, serves until ctx is done or the listener fails, and
// then shuts every service down.
func (a *App) Run(ctx context.Context) error {
	logger, err := do.Invoke[*slog.Logger](a.injector)
	if err != nil {
		return err
	}
	srv, err := do.Invoke[*server.Server](a.injector)
	if err != nil {
		return errors.Join(fmt.Errorf("build server: %w", err), a.Shutdown())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	var runErr error
	select {
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("HTTP server failed", "error", runErr)
		}
	case <-ctx.Done():
		logger.Info("Shutdown requested")
	}
	return errors.Join(runErr, a.Shutdown())
}

// Shutdown stops services in dependency order: the HTTP server first, then
// WebSocket sessions, the relay and finally storage.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.GetShutdownTimeout())
	defer cancel()

	report := a.injector.ShutdownWithContext(ctx)
	if report != nil && !report.Succeed {
		return fmt.Errorf("shutdown: %w", report)
	}
	return nil
}
