package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/nfrund/duochat/internal/domain"
)

// MemoryStore keeps everything in process memory. Data is lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	rooms    map[string]domain.Room
	seq      map[string]int64
	messages map[string][]domain.Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]domain.Room),
		seq:      make(map[string]int64),
		messages: make(map[string][]domain.Message),
	}
}

func (s *MemoryStore) FindOrCreate(_ context.Context, room domain.Room) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rooms[room.ID]; ok {
		return existing, nil
	}
	s.rooms[room.ID] = room
	return room, nil
}

func (s *MemoryStore) FindByID(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	return room, nil
}

func (s *MemoryStore) PersistMessage(_ context.Context, roomID, senderID, body string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[roomID]++
	msg := domain.NewMessage(roomID, senderID, body, s.seq[roomID])
	s.messages[roomID] = append(s.messages[roomID], msg)
	return msg, nil
}

func (s *MemoryStore) Close() error { return nil }
