package websocket

import (
	"context"

	"github.com/coder/websocket"
)

// connTransport adapts a coder/websocket connection to protocol.Transport.
// The session's writer goroutine is its only user.
type connTransport struct {
	conn *websocket.Conn
}

func (t *connTransport) WriteFrame(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *connTransport) Close(code int, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}

func (t *connTransport) Abort() error {
	return t.conn.CloseNow()
}
