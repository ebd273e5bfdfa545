package pubsub

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nfrund/duochat/internal/domain"
)

// MessageSent is published once per persisted chat message.
var MessageSent = NewEvent[domain.Message]("chat.message.sent")

const metaKeyRoomID = "room_id"

// Fanout is the local delivery target, normally the broker.
type Fanout interface {
	Publish(roomID string, msg domain.Message)
}

// Relay sends persisted messages through a Bus and hands whatever arrives on
// the bus to the local Fanout. With an in-process bus this is a loopback; a
// networked watermill Pub/Sub turns it into cross-instance delivery.
type Relay struct {
	bus    Bus
	target Fanout
	logger *slog.Logger
}

// NewRelay creates a Relay. Call Start before publishing.
func NewRelay(bus Bus, target Fanout, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{bus: bus, target: target, logger: logger.With("component", "relay")}
}

// Start subscribes the relay to the bus.
func (r *Relay) Start(ctx context.Context) error {
	return r.bus.Subscribe(ctx, MessageSent.Name(), r.handle)
}

// Publish implements chat.Publisher. Bus failures are logged; the message is
// already persisted and the sender has its result.
func (r *Relay) Publish(roomID string, msg domain.Message) {
	err := Publish(context.Background(), r.bus, MessageSent, msg.SenderID, msg, map[string]string{metaKeyRoomID: roomID})
	if err != nil {
		r.logger.Error("Failed to publish message event", "room_id", roomID, "message_id", msg.ID, "error", err)
	}
}

func (r *Relay) handle(_ context.Context, m Message) error {
	msg, err := Decode(MessageSent, m)
	if err != nil {
		return err
	}
	roomID := m.Metadata[metaKeyRoomID]
	if roomID == "" {
		roomID = msg.RoomID
	}
	if roomID == "" {
		return errors.New("message event without room id")
	}
	r.target.Publish(roomID, msg)
	return nil
}

// Shutdown closes the bus, ending the subscription.
func (r *Relay) Shutdown() error {
	return r.bus.Close()
}
