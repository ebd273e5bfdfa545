package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/duochat/internal/domain"
	"github.com/nfrund/duochat/internal/middleware"
)

// MessageSender persists and publishes a message.
type MessageSender interface {
	Send(ctx context.Context, senderID, recipientID, body string) (domain.Message, error)
}

// RoomFinder resolves the room of a pair, creating it on first contact.
type RoomFinder interface {
	Resolve(ctx context.Context, userA, userB string) (domain.Room, error)
}

// ChatHandler serves the HTTP side of the chat: sending and room lookup.
type ChatHandler struct {
	sender MessageSender
	rooms  RoomFinder
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(sender MessageSender, rooms RoomFinder) *ChatHandler {
	return &ChatHandler{sender: sender, rooms: rooms}
}

func currentUser(c echo.Context) (string, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return "", domain.ErrUnauthorized
	}
	return id, nil
}

// SendMessage handles POST /api/v1/messages.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)

	senderID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid_request", Message: "Invalid request format."})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid_request", Message: err.Error()})
	}

	msg, err := h.sender.Send(ctx, senderID, req.RecipientID, req.Body)
	if err != nil {
		logger.Warn("Failed to send message", "sender_id", senderID, "recipient_id", req.RecipientID, "error", err)
		return err
	}
	return c.JSON(http.StatusCreated, msg)
}

// GetRoom handles GET /api/v1/rooms/:peerId.
func (h *ChatHandler) GetRoom(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	room, err := h.rooms.Resolve(c.Request().Context(), userID, c.Param("peerId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewRoomResponse(room))
}
