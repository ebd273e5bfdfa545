package pubsub

import (
	"context"
)

// Message is the structure passed between components on the bus.
type Message struct {
	// Topic identifies the channel the message belongs to (e.g., "chat.message.sent").
	Topic string
	// UserID identifies the user who initiated the message.
	UserID string
	// Payload contains the encoded event.
	Payload []byte
	// Metadata carries routing context such as the room id.
	Metadata map[string]string
}

// Handler defines the function signature for processing a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher defines the contract for sending messages to the Pub/Sub system.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber defines the contract for receiving messages from the Pub/Sub system.
type Subscriber interface {
	// Subscribe starts consuming topic in the background and returns once the
	// subscription is live.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Bus is a Publisher and Subscriber sharing one transport.
type Bus interface {
	Publisher
	Subscriber
}
