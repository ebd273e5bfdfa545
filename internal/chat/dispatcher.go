package chat

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/nfrund/duochat/internal/domain"
)

const defaultStripes = 64

// Dispatcher implements the send path: validate, resolve the room, persist,
// publish. Persist and publish for one room run under the same stripe lock,
// so subscribers see messages in sequence order.
type Dispatcher struct {
	rooms     RoomResolver
	messages  domain.MessageRepository
	publisher Publisher
	maxLen    int
	stripes   []sync.Mutex
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxMessageLength caps message bodies, in runes.
func WithMaxMessageLength(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxLen = n
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher wires a Dispatcher.
func NewDispatcher(rooms RoomResolver, messages domain.MessageRepository, publisher Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		rooms:     rooms,
		messages:  messages,
		publisher: publisher,
		maxLen:    domain.DefaultMaxMessageLength,
		stripes:   make([]sync.Mutex, defaultStripes),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d
}

// Send delivers body from senderID to recipientID and returns the persisted
// message. Validation failures wrap domain.ErrInvalidMessage; storage failures
// wrap domain.ErrPersistenceFailure and are not retried.
func (d *Dispatcher) Send(ctx context.Context, senderID, recipientID, body string) (domain.Message, error) {
	req := domain.SendRequest{SenderID: senderID, RecipientID: recipientID, Body: body}
	if err := req.Validate(d.maxLen); err != nil {
		return domain.Message{}, err
	}

	roomID, err := d.rooms.ResolveOrCreate(ctx, senderID, recipientID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidMessage) {
			return domain.Message{}, err
		}
		d.logger.Error("Failed to resolve room", "sender_id", senderID, "recipient_id", recipientID, "error", err)
		return domain.Message{}, fmt.Errorf("%w: resolve room: %v", domain.ErrPersistenceFailure, err)
	}

	mu := d.stripe(roomID)
	mu.Lock()
	defer mu.Unlock()

	msg, err := d.messages.PersistMessage(ctx, roomID, senderID, body)
	if err != nil {
		d.logger.Error("Failed to persist message", "room_id", roomID, "sender_id", senderID, "error", err)
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}

	d.publisher.Publish(roomID, msg)
	d.logger.Debug("Message sent", "room_id", roomID, "message_id", msg.ID, "seq", msg.Seq)
	return msg, nil
}

func (d *Dispatcher) stripe(roomID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return &d.stripes[h.Sum32()%uint32(len(d.stripes))]
}
