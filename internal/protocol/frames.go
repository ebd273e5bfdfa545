package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/nfrund/duochat/internal/domain"
)

// Subprotocol is offered during the WebSocket handshake.
const Subprotocol = "graphql-transport-ws"

// Frame types.
const (
	TypeConnectionInit  = "connection_init"
	TypeConnectionAck   = "connection_ack"
	TypeConnectionError = "connection_error"
	TypeSubscribe       = "subscribe"
	TypeNext            = "next"
	TypeComplete        = "complete"
	TypeError           = "error"
	TypePing            = "ping"
	TypePong            = "pong"
)

// Frame is the envelope of every message on the wire.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// InitPayload carries the credential of a connection_init frame.
type InitPayload struct {
	Token string `json:"token"`
}

// SubscribePayload names the room of a subscribe frame. Clients speaking the
// GraphQL dialect may pass the room as variables.chatRoomId instead.
type SubscribePayload struct {
	RoomID    string `json:"roomId"`
	Variables struct {
		ChatRoomID string `json:"chatRoomId"`
	} `json:"variables"`
}

// Room returns the requested room id.
func (p SubscribePayload) Room() string {
	if p.RoomID != "" {
		return p.RoomID
	}
	return p.Variables.ChatRoomID
}

// ErrorPayload is the body of error and connection_error frames.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// ParseFrame decodes a client frame. Any failure wraps domain.ErrBadFrame.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", domain.ErrBadFrame, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", domain.ErrBadFrame)
	}
	return f, nil
}

// DecodePayload unmarshals the frame payload into v. An absent payload leaves
// v untouched.
func (f Frame) DecodePayload(v any) error {
	if len(f.Payload) == 0 || string(f.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", domain.ErrBadFrame, f.Type, err)
	}
	return nil
}

// NewFrame builds a frame with a JSON payload. A nil payload is omitted.
func NewFrame(typ, id string, payload any) (Frame, error) {
	f := Frame{ID: id, Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		f.Payload = raw
	}
	return f, nil
}

// Encode marshals the frame to its wire form.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
