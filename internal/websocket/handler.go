package websocket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/duochat/internal/auth"
	"github.com/nfrund/duochat/internal/domain"
	"github.com/nfrund/duochat/internal/protocol"
)

// DefaultReadLimit caps a single inbound frame.
const DefaultReadLimit int64 = 64 << 10

// HandlerConfig tunes the upgrade endpoint.
type HandlerConfig struct {
	Session        protocol.Config
	ReadLimit      int64
	OriginPatterns []string
}

// Handler upgrades HTTP requests and runs a protocol.Session per connection.
type Handler struct {
	manager *Manager
	auth    auth.Authenticator
	broker  protocol.Subscriber
	cfg     HandlerConfig
	logger  *slog.Logger
}

// NewHandler creates the upgrade handler.
func NewHandler(m *Manager, a auth.Authenticator, b protocol.Subscriber, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	return &Handler{
		manager: m,
		auth:    a,
		broker:  b,
		cfg:     cfg,
		logger:  logger,
	}
}

// Serve is the echo handler for the WebSocket endpoint. It returns once the
// connection is closed.
func (h *Handler) Serve(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		Subprotocols:   []string{protocol.Subprotocol},
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		// Accept has already written the error response.
		h.logger.Warn("Failed to upgrade connection to WebSocket", "remote_addr", c.RealIP(), "error", err)
		return nil
	}
	conn.SetReadLimit(h.cfg.ReadLimit)

	id := uuid.NewString()
	session := protocol.NewSession(id, &connTransport{conn: conn}, h.auth, h.broker, h.cfg.Session, h.logger)
	if err := h.manager.Add(session); err != nil {
		conn.Close(websocket.StatusGoingAway, domain.ErrShuttingDown.Error())
		return nil
	}
	defer h.manager.Remove(id)

	h.logger.Debug("WebSocket connected", "conn_id", id, "remote_addr", c.RealIP(), "subprotocol", conn.Subprotocol())
	session.Start(h.manager.Context())
	h.readLoop(c.Request().Context(), conn, session)

	<-session.Done()
	h.logger.Debug("WebSocket disconnected", "conn_id", id, "user_id", session.UserID())
	return nil
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, session *protocol.Session) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-session.Done():
			default:
				if status := websocket.CloseStatus(err); status != -1 {
					h.logger.Debug("Peer closed connection", "conn_id", session.ID(), "status", status)
				} else {
					h.logger.Debug("WebSocket read error", "conn_id", session.ID(), "error", err)
				}
			}
			session.Close(nil)
			return
		}

		if typ != websocket.MessageText {
			session.Close(fmt.Errorf("%w: binary frames are not supported", domain.ErrBadFrame))
			return
		}
		if err := session.HandleFrame(ctx, data); err != nil {
			return
		}
	}
}
