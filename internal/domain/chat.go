//go:generate go run go.uber.org/mock/mockgen -source=chat.go -destination=../mocks/mock_repositories.go -package=mocks

package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// roomNamespace seeds the UUIDv5 room ids so the same pair always maps to the
// same room, whichever participant makes first contact.
var roomNamespace = uuid.MustParse("6f1c3b9e-2a47-5d0f-9a8e-0c6f4e2d7b15")

// Room is the conversation between an unordered pair of users. UserA is always
// the lexically smaller id.
type Room struct {
	ID        string    `json:"roomId"`
	UserA     string    `json:"userA"`
	UserB     string    `json:"userB"`
	CreatedAt time.Time `json:"createdAt"`
}

// Participants returns both user ids in canonical order.
func (r Room) Participants() []string {
	return []string{r.UserA, r.UserB}
}

// Has reports whether userID takes part in the room.
func (r Room) Has(userID string) bool {
	return r.UserA == userID || r.UserB == userID
}

// Message is one persisted chat utterance. Seq is monotonic per room and
// starts at 1.
type Message struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"roomId"`
	SenderID string    `json:"senderId"`
	Body     string    `json:"body"`
	Seq      int64     `json:"seq"`
	SentAt   time.Time `json:"sentAt"`
}

// CanonicalPair orders two user ids so {a,b} and {b,a} compare equal.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// NewRoom builds the canonical room for a pair of users.
func NewRoom(a, b string) Room {
	lo, hi := CanonicalPair(a, b)
	return Room{
		ID:        RoomIDFor(lo, hi),
		UserA:     lo,
		UserB:     hi,
		CreatedAt: time.Now().UTC(),
	}
}

// RoomIDFor derives the deterministic room id for a pair of users.
func RoomIDFor(a, b string) string {
	lo, hi := CanonicalPair(a, b)
	return uuid.NewSHA1(roomNamespace, []byte(lo+"\x00"+hi)).String()
}

// RoomRepository defines room storage. FindOrCreate must be atomic: when two
// callers race on the same pair, both get the same stored room back.
type RoomRepository interface {
	FindOrCreate(ctx context.Context, room Room) (Room, error)
	FindByID(ctx context.Context, roomID string) (Room, error)
}

// MessageRepository persists messages and assigns their per-room sequence.
type MessageRepository interface {
	PersistMessage(ctx context.Context, roomID, senderID, body string) (Message, error)
}

// NewMessage stamps the fields every backend fills the same way.
func NewMessage(roomID, senderID, body string, seq int64) Message {
	return Message{
		ID:       uuid.NewString(),
		RoomID:   roomID,
		SenderID: senderID,
		Body:     body,
		Seq:      seq,
		SentAt:   time.Now().UTC(),
	}
}
