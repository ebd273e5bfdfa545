package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/duochat/internal/auth"
	"github.com/nfrund/duochat/internal/broker"
	"github.com/nfrund/duochat/internal/chat"
	"github.com/nfrund/duochat/internal/config"
	"github.com/nfrund/duochat/internal/handlers"
	"github.com/nfrund/duochat/internal/logging"
	"github.com/nfrund/duochat/internal/protocol"
	"github.com/nfrund/duochat/internal/pubsub"
	"github.com/nfrund/duochat/internal/rooms"
	"github.com/nfrund/duochat/internal/server"
	"github.com/nfrund/duochat/internal/storage"
	"github.com/nfrund/duochat/internal/websocket"
)

const healthCheckTimeout = 2 * time.Second

// Services registers every provider. Nothing is built until invoked.
var Services = do.Package(
	do.Lazy(provideLogger),
	do.Lazy(provideStore),
	do.Lazy(provideBroker),
	do.Lazy(provideResolver),
	do.Lazy(provideTracing),
	do.Lazy(provideRelay),
	do.Lazy(providePublisher),
	do.Lazy(provideDispatcher),
	do.Lazy(provideAuthenticator),
	do.Lazy(provideManager),
	do.Lazy(provideServer),
)

// Store is the configured storage backend as a managed service.
type Store struct {
	storage.Store
}

// Shutdown closes the backend.
func (s *Store) Shutdown() error {
	return s.Close()
}

// HealthCheck pings backends that support it.
func (s *Store) HealthCheck(ctx context.Context) error {
	if p, ok := s.Store.(storage.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Tracing owns the tracer provider of the message bus.
type Tracing struct {
	Tracer  trace.Tracer
	cleanup func()
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown() {
	t.cleanup()
}

func provideLogger(i do.Injector) (*slog.Logger, error) {
	cfg := do.MustInvoke[config.Provider](i)
	return logging.New(cfg.GetLogFormat(), cfg.GetLogLevel()), nil
}

func provideStore(i do.Injector) (*Store, error) {
	cfg := do.MustInvoke[config.Provider](i)
	logger := do.MustInvoke[*slog.Logger](i)

	st, err := storage.Open(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.GetStorageDriver(), err)
	}
	logger.Info("Storage ready", "driver", cfg.GetStorageDriver())
	return &Store{Store: st}, nil
}

func provideBroker(i do.Injector) (*broker.Broker, error) {
	logger := do.MustInvoke[*slog.Logger](i)
	return broker.New(broker.WithLogger(logger)), nil
}

func provideResolver(i do.Injector) (*rooms.Resolver, error) {
	store := do.MustInvoke[*Store](i)
	logger := do.MustInvoke[*slog.Logger](i)
	return rooms.NewResolver(store, logger), nil
}

func provideTracing(i do.Injector) (*Tracing, error) {
	cfg := do.MustInvoke[config.Provider](i)
	tracer, cleanup, err := pubsub.SetupOTel(context.Background(), pubsub.TracingConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	return &Tracing{Tracer: tracer, cleanup: cleanup}, nil
}

func provideRelay(i do.Injector) (*pubsub.Relay, error) {
	cfg := do.MustInvoke[config.Provider](i)
	logger := do.MustInvoke[*slog.Logger](i)
	b := do.MustInvoke[*broker.Broker](i)

	var opts []pubsub.BridgeOption
	if cfg.GetTracingEnabled() {
		opts = append(opts, pubsub.WithTracer(do.MustInvoke[*Tracing](i).Tracer))
	}
	relay := pubsub.NewRelay(pubsub.NewWatermillBridge(logger, opts...), b, logger)
	if err := relay.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("start relay: %w", err)
	}
	return relay, nil
}

// providePublisher picks where the dispatcher hands persisted messages:
// straight to the broker, or through the watermill relay.
func providePublisher(i do.Injector) (chat.Publisher, error) {
	cfg := do.MustInvoke[config.Provider](i)
	if cfg.GetEventBus() == config.EventBusWatermill {
		return do.Invoke[*pubsub.Relay](i)
	}
	return do.MustInvoke[*broker.Broker](i), nil
}

func provideDispatcher(i do.Injector) (*chat.Dispatcher, error) {
	cfg := do.MustInvoke[config.Provider](i)
	logger := do.MustInvoke[*slog.Logger](i)
	store := do.MustInvoke[*Store](i)
	resolver := do.MustInvoke[*rooms.Resolver](i)
	publisher, err := do.Invoke[chat.Publisher](i)
	if err != nil {
		return nil, err
	}
	return chat.NewDispatcher(resolver, store, publisher,
		chat.WithMaxMessageLength(cfg.GetMaxMessageLength()),
		chat.WithLogger(logger),
	), nil
}

func provideAuthenticator(i do.Injector) (auth.Authenticator, error) {
	cfg := do.MustInvoke[config.Provider](i)
	return auth.NewJWTAuthenticator(cfg.GetJWTSecret(), cfg.GetJWTIssuer()), nil
}

func provideManager(i do.Injector) (*websocket.Manager, error) {
	return websocket.NewManager(do.MustInvoke[*slog.Logger](i)), nil
}

func provideServer(i do.Injector) (*server.Server, error) {
	cfg := do.MustInvoke[config.Provider](i)
	logger := do.MustInvoke[*slog.Logger](i)
	authenticator := do.MustInvoke[auth.Authenticator](i)
	b := do.MustInvoke[*broker.Broker](i)
	manager := do.MustInvoke[*websocket.Manager](i)
	resolver := do.MustInvoke[*rooms.Resolver](i)
	dispatcher, err := do.Invoke[*chat.Dispatcher](i)
	if err != nil {
		return nil, err
	}

	wsHandler := websocket.NewHandler(manager, authenticator, b, websocket.HandlerConfig{
		Session: protocol.Config{
			InitTimeout:  cfg.GetInitTimeout(),
			WriteTimeout: cfg.GetWriteTimeout(),
			QueueSize:    cfg.GetOutboundQueueSize(),
		},
		ReadLimit:      cfg.GetReadLimit(),
		OriginPatterns: cfg.GetAllowedOrigins(),
	}, logger)

	checks := func() map[string]error {
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()
		return map[string]error{"store": do.HealthCheckWithContext[*Store](ctx, i)}
	}

	return server.New(cfg, server.Dependencies{
		Authenticator: authenticator,
		WebSocket:     wsHandler,
		Chat:          handlers.NewChatHandler(dispatcher, resolver),
		Connections:   handlers.NewConnectionsHandler(manager),
		Health:        handlers.NewHealthHandler(manager, b, checks),
	}, logger), nil
}
