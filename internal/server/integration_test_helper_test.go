package server_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nfrund/duochat/internal/auth"
	"github.com/nfrund/duochat/internal/broker"
	"github.com/nfrund/duochat/internal/chat"
	"github.com/nfrund/duochat/internal/config"
	"github.com/nfrund/duochat/internal/domain"
	"github.com/nfrund/duochat/internal/handlers"
	"github.com/nfrund/duochat/internal/rooms"
	"github.com/nfrund/duochat/internal/server"
	"github.com/nfrund/duochat/internal/storage"
	"github.com/nfrund/duochat/internal/websocket"
)

const (
	testSecret = "integration-secret"
	testIssuer = "duochat"
)

// brokenStore keeps rooms but fails every message write.
type brokenStore struct {
	*storage.MemoryStore
}

func (brokenStore) PersistMessage(context.Context, string, string, string) (domain.Message, error) {
	return domain.Message{}, errors.New("disk full")
}

type testEnv struct {
	server  *server.Server
	ts      *httptest.Server
	manager *websocket.Manager
	broker  *broker.Broker
}

// setupIntegrationTest wires a full server over store the way the
// composition root does, and serves it with httptest.
func setupIntegrationTest(t *testing.T, store storage.Store, rateLimit int) *testEnv {
	t.Helper()

	cfg := &config.Config{
		JWTSecret:          testSecret,
		JWTIssuer:          testIssuer,
		RateLimitPerMinute: rateLimit,
	}

	b := broker.New()
	resolver := rooms.NewResolver(store, nil)
	dispatcher := chat.NewDispatcher(resolver, store, b)
	authenticator := auth.NewJWTAuthenticator(testSecret, testIssuer)
	manager := websocket.NewManager(nil)

	srv := server.New(cfg, server.Dependencies{
		Authenticator: authenticator,
		WebSocket:     websocket.NewHandler(manager, authenticator, b, websocket.HandlerConfig{}, nil),
		Chat:          handlers.NewChatHandler(dispatcher, resolver),
		Connections:   handlers.NewConnectionsHandler(manager),
		Health:        handlers.NewHealthHandler(manager, b, nil),
	}, nil)

	ts := httptest.NewServer(srv.E)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
		ts.Close()
	})

	return &testEnv{server: srv, ts: ts, manager: manager, broker: b}
}

func (env *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.IssueToken(testSecret, testIssuer, userID, time.Minute)
	require.NoError(t, err)
	return tok
}

func (env *testEnv) do(t *testing.T, method, path, bearer, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, env.ts.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
