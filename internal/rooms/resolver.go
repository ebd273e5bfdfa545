package rooms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/nfrund/duochat/internal/domain"
)

// Resolver maps an unordered pair of users to their room, creating it on
// first contact. Concurrent first-contact calls for the same pair share one
// repository round trip.
type Resolver struct {
	repo   domain.RoomRepository
	group  singleflight.Group
	cache  sync.Map // room id -> domain.Room
	logger *slog.Logger
}

// NewResolver creates a Resolver backed by repo.
func NewResolver(repo domain.RoomRepository, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{repo: repo, logger: logger.With("component", "room_resolver")}
}

// ResolveOrCreate returns the room id for the pair.
func (r *Resolver) ResolveOrCreate(ctx context.Context, userA, userB string) (string, error) {
	room, err := r.Resolve(ctx, userA, userB)
	if err != nil {
		return "", err
	}
	return room.ID, nil
}

// Resolve returns the full room for the pair. Empty ids and self pairs wrap
// domain.ErrInvalidMessage.
func (r *Resolver) Resolve(ctx context.Context, userA, userB string) (domain.Room, error) {
	if userA == "" || userB == "" {
		return domain.Room{}, fmt.Errorf("%w: both participants are required", domain.ErrInvalidMessage)
	}
	if userA == userB {
		return domain.Room{}, fmt.Errorf("%w: a room needs two distinct participants", domain.ErrInvalidMessage)
	}

	proposed := domain.NewRoom(userA, userB)
	if cached, ok := r.cache.Load(proposed.ID); ok {
		return cached.(domain.Room), nil
	}

	v, err, shared := r.group.Do(proposed.ID, func() (any, error) {
		if cached, ok := r.cache.Load(proposed.ID); ok {
			return cached, nil
		}
		room, err := r.repo.FindOrCreate(context.WithoutCancel(ctx), proposed)
		if err != nil {
			return nil, err
		}
		r.cache.Store(room.ID, room)
		return room, nil
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("resolve room for %s/%s: %w", proposed.UserA, proposed.UserB, err)
	}
	room := v.(domain.Room)
	r.logger.Debug("Resolved room", "room_id", room.ID, "shared", shared)
	return room, nil
}
