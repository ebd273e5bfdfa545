package websocket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/duochat/internal/auth"
	"github.com/nfrund/duochat/internal/broker"
	"github.com/nfrund/duochat/internal/chat"
	"github.com/nfrund/duochat/internal/domain"
	"github.com/nfrund/duochat/internal/protocol"
	"github.com/nfrund/duochat/internal/rooms"
	"github.com/nfrund/duochat/internal/storage"
	ws "github.com/nfrund/duochat/internal/websocket"
)

const (
	testSecret = "test-secret"
	testIssuer = "duochat-test"
)

type testFixture struct {
	manager    *ws.Manager
	broker     *broker.Broker
	dispatcher *chat.Dispatcher
	server     *httptest.Server
	url        string
}

func newFixture(t *testing.T, cfg ws.HandlerConfig) *testFixture {
	t.Helper()

	manager := ws.NewManager(nil)
	b := broker.New()
	store := storage.NewMemoryStore()
	dispatcher := chat.NewDispatcher(rooms.NewResolver(store, nil), store, b)
	handler := ws.NewHandler(manager, auth.NewJWTAuthenticator(testSecret, testIssuer), b, cfg, nil)

	e := echo.New()
	e.GET("/ws", handler.Serve)
	server := httptest.NewServer(e)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
		server.Close()
	})

	return &testFixture{
		manager:    manager,
		broker:     b,
		dispatcher: dispatcher,
		server:     server,
		url:        "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
	}
}

func (f *testFixture) dial(t *testing.T) *gorillaws.Conn {
	t.Helper()
	dialer := gorillaws.Dialer{
		Subprotocols:     []string{protocol.Subprotocol},
		HandshakeTimeout: 2 * time.Second,
	}
	conn, resp, err := dialer.Dial(f.url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *gorillaws.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte(frame)))
}

func readFrame(t *testing.T, conn *gorillaws.Conn) protocol.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	f, err := protocol.ParseFrame(data)
	require.NoError(t, err)
	return f
}

func readClose(t *testing.T, conn *gorillaws.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *gorillaws.CloseError
		require.ErrorAs(t, err, &ce)
		return ce.Code
	}
}

func initAs(t *testing.T, conn *gorillaws.Conn, userID string) {
	t.Helper()
	token, err := auth.IssueToken(testSecret, testIssuer, userID, time.Minute)
	require.NoError(t, err)
	send(t, conn, `{"type":"connection_init","payload":{"token":"`+token+`"}}`)
	assert.Equal(t, protocol.TypeConnectionAck, readFrame(t, conn).Type)
}

func TestHandler_NegotiatesSubprotocol(t *testing.T) {
	f := newFixture(t, ws.HandlerConfig{})
	conn := f.dial(t)
	assert.Equal(t, protocol.Subprotocol, conn.Subprotocol())
	require.Eventually(t, func() bool { return f.manager.Count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHandler_Conversation(t *testing.T) {
	f := newFixture(t, ws.HandlerConfig{})
	roomID := domain.RoomIDFor("alice", "bob")

	alice := f.dial(t)
	bob := f.dial(t)
	initAs(t, alice, "alice")
	initAs(t, bob, "bob")

	send(t, alice, `{"id":"a1","type":"subscribe","payload":{"roomId":"`+roomID+`"}}`)
	send(t, bob, `{"id":"b1","type":"subscribe","payload":{"variables":{"chatRoomId":"`+roomID+`"}}}`)
	require.Eventually(t, func() bool { return f.broker.Subscribers(roomID) == 2 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	_, err := f.dispatcher.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)
	_, err = f.dispatcher.Send(ctx, "bob", "alice", "there")
	require.NoError(t, err)

	for _, c := range []struct {
		conn *gorillaws.Conn
		opID string
	}{{alice, "a1"}, {bob, "b1"}} {
		for i, want := range []struct {
			sender, body string
		}{{"alice", "hi"}, {"bob", "there"}} {
			frame := readFrame(t, c.conn)
			require.Equal(t, protocol.TypeNext, frame.Type)
			assert.Equal(t, c.opID, frame.ID)

			var msg domain.Message
			require.NoError(t, json.Unmarshal(frame.Payload, &msg))
			assert.Equal(t, want.sender, msg.SenderID)
			assert.Equal(t, want.body, msg.Body)
			assert.Equal(t, int64(i+1), msg.Seq)
			assert.Equal(t, roomID, msg.RoomID)
		}
	}
}

func TestHandler_RejectedToken(t *testing.T) {
	f := newFixture(t, ws.HandlerConfig{})
	conn := f.dial(t)

	send(t, conn, `{"type":"connection_init","payload":{"token":"garbage"}}`)
	assert.Equal(t, protocol.TypeConnectionError, readFrame(t, conn).Type)
	assert.Equal(t, domain.CloseForbidden, readClose(t, conn))
}

func TestHandler_InitTimeout(t *testing.T) {
	f := newFixture(t, ws.HandlerConfig{Session: protocol.Config{InitTimeout: 100 * time.Millisecond}})
	conn := f.dial(t)

	assert.Equal(t, domain.CloseInitTimeout, readClose(t, conn))
	require.Eventually(t, func() bool { return f.manager.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_BinaryFrameRejected(t *testing.T) {
	f := newFixture(t, ws.HandlerConfig{})
	conn := f.dial(t)

	require.NoError(t, conn.WriteMessage(gorillaws.BinaryMessage, []byte{0x01, 0x02}))
	assert.Equal(t, domain.CloseBadRequest, readClose(t, conn))
}

func TestHandler_OversizedFrame(t *testing.T) {
	f := newFixture(t, ws.HandlerConfig{ReadLimit: 512})
	conn := f.dial(t)
	initAs(t, conn, "alice")

	send(t, conn, `{"type":"ping","payload":{"pad":"`+strings.Repeat("x", 1024)+`"}}`)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool { return f.manager.Count() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestHandler_DisconnectReleasesSubscriptions(t *testing.T) {
	f := newFixture(t, ws.HandlerConfig{})
	roomID := domain.RoomIDFor("alice", "bob")

	conn := f.dial(t)
	initAs(t, conn, "alice")
	send(t, conn, `{"id":"1","type":"subscribe","payload":{"roomId":"`+roomID+`"}}`)
	require.Eventually(t, func() bool { return f.broker.Subscribers(roomID) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(gorillaws.CloseMessage,
		gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, "bye")))
	conn.Close()

	require.Eventually(t, func() bool {
		return f.manager.Count() == 0 && f.broker.Subscribers(roomID) == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestHandler_ShutdownClosesWithGoingAway(t *testing.T) {
	f := newFixture(t, ws.HandlerConfig{})
	conn := f.dial(t)
	initAs(t, conn, "alice")

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errCh <- f.manager.Shutdown(ctx)
	}()

	assert.Equal(t, domain.CloseGoingAway, readClose(t, conn))
	require.NoError(t, <-errCh)

	dialer := gorillaws.Dialer{Subprotocols: []string{protocol.Subprotocol}, HandshakeTimeout: 2 * time.Second}
	late, resp, err := dialer.Dial(f.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "upgrade succeeds and is closed right away")
	defer late.Close()
	assert.Equal(t, domain.CloseGoingAway, readClose(t, late))
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, ws.HandlerConfig{OriginPatterns: []string{"chat.example.com"}})

	header := http.Header{}
	header.Set("Origin", "http://evil.example.net")
	_, resp, err := gorillaws.DefaultDialer.Dial(f.url, header)
	require.ErrorIs(t, err, gorillaws.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://chat.example.com")
	conn, resp2, err := gorillaws.DefaultDialer.Dial(f.url, header)
	require.NoError(t, err)
	resp2.Body.Close()
	conn.Close()
}
