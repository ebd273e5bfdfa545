//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks

package chat

import (
	"context"

	"github.com/nfrund/duochat/internal/domain"
)

// RoomResolver maps a pair of users to their room id.
type RoomResolver interface {
	ResolveOrCreate(ctx context.Context, userA, userB string) (string, error)
}

// Publisher hands a persisted message to the fan-out layer. It must not block
// on subscribers.
type Publisher interface {
	Publish(roomID string, msg domain.Message)
}
