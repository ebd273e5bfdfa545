package handlers

import (
	"sort"

	"github.com/nfrund/duochat/internal/domain"
	"github.com/nfrund/duochat/internal/protocol"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RoomResponse answers the room lookup.
type RoomResponse struct {
	RoomID       string   `json:"roomId"`
	Participants []string `json:"participants"`
}

// NewRoomResponse creates a RoomResponse from a domain.Room.
func NewRoomResponse(room domain.Room) RoomResponse {
	return RoomResponse{
		RoomID:       room.ID,
		Participants: room.Participants(),
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Connections   int               `json:"connections"`
	Topics        int               `json:"topics"`
	Subscriptions int               `json:"subscriptions"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// ConnectionResponse describes one live WebSocket connection.
type ConnectionResponse struct {
	ID         string   `json:"id"`
	State      string   `json:"state"`
	Operations []string `json:"operations"`
}

// NewConnectionResponse snapshots a session.
func NewConnectionResponse(s *protocol.Session) ConnectionResponse {
	ops := s.Operations()
	sort.Strings(ops)
	return ConnectionResponse{
		ID:         s.ID(),
		State:      s.State().String(),
		Operations: ops,
	}
}
