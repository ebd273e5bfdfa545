package handlers

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/nfrund/duochat/internal/domain"
	"github.com/nfrund/duochat/internal/protocol"
)

// SessionDirectory looks up live WebSocket sessions.
type SessionDirectory interface {
	Get(id string) (*protocol.Session, bool)
	GetByUser(userID string) []*protocol.Session
}

// ConnectionsHandler lets a user see and close their own live connections.
type ConnectionsHandler struct {
	sessions SessionDirectory
}

// NewConnectionsHandler creates a ConnectionsHandler.
func NewConnectionsHandler(sessions SessionDirectory) *ConnectionsHandler {
	return &ConnectionsHandler{sessions: sessions}
}

// List handles GET /api/v1/connections.
func (h *ConnectionsHandler) List(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	resp := lo.Map(h.sessions.GetByUser(userID), func(s *protocol.Session, _ int) ConnectionResponse {
		return NewConnectionResponse(s)
	})
	sort.Slice(resp, func(i, j int) bool { return resp[i].ID < resp[j].ID })
	return c.JSON(http.StatusOK, resp)
}

// Close handles DELETE /api/v1/connections/:id. Another user's connection
// is reported as not found.
func (h *ConnectionsHandler) Close(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	id := c.Param("id")
	s, ok := h.sessions.Get(id)
	if !ok || s.UserID() != userID {
		return fmt.Errorf("connection %s: %w", id, domain.ErrNotFound)
	}
	s.Close(nil)
	return c.NoContent(http.StatusNoContent)
}
