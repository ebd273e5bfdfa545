package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/nfrund/duochat/internal/domain"
)

const maxTxnRetries = 64

// BadgerStore persists rooms and messages in an embedded Badger database.
//
// Keys:
//
//	pair:{userA}\x00{userB}      -> room (JSON)
//	room:{roomID}                -> room (JSON)
//	seq:{roomID}                 -> last sequence (uint64, big endian)
//	msg:{roomID}:{seq padded}    -> message (JSON)
//
// Sequence numbers are padded to 20 digits so keys sort in sequence order.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger database in dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already opened database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func pairKey(a, b string) []byte  { return []byte("pair:" + a + "\x00" + b) }
func roomKey(id string) []byte    { return []byte("room:" + id) }
func seqKey(roomID string) []byte { return []byte("seq:" + roomID) }
func msgKey(roomID string, seq int64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", roomID, seq))
}

// update runs fn in a read-write transaction, retrying when Badger detects a
// conflicting concurrent commit.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxTxnRetries {
			return err
		}
	}
}

func (s *BadgerStore) FindOrCreate(ctx context.Context, room domain.Room) (domain.Room, error) {
	var stored domain.Room
	err := s.update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey(room.UserA, room.UserB))
		switch {
		case err == nil:
			return item.Value(func(v []byte) error { return json.Unmarshal(v, &stored) })
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		data, err := json.Marshal(room)
		if err != nil {
			return err
		}
		if err := txn.Set(pairKey(room.UserA, room.UserB), data); err != nil {
			return err
		}
		stored = room
		return txn.Set(roomKey(room.ID), data)
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("badger find or create room: %w", err)
	}
	return stored, nil
}

func (s *BadgerStore) FindByID(_ context.Context, roomID string) (domain.Room, error) {
	var room domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(roomID))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &room) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("badger find room: %w", err)
	}
	return room, nil
}

func (s *BadgerStore) PersistMessage(ctx context.Context, roomID, senderID, body string) (domain.Message, error) {
	var msg domain.Message
	err := s.update(ctx, func(txn *badger.Txn) error {
		var last uint64
		item, err := txn.Get(seqKey(roomID))
		switch {
		case err == nil:
			if err := item.Value(func(v []byte) error {
				last = binary.BigEndian.Uint64(v)
				return nil
			}); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		next := last + 1
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, next)
		if err := txn.Set(seqKey(roomID), buf); err != nil {
			return err
		}

		msg = domain.NewMessage(roomID, senderID, body, int64(next))
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return txn.Set(msgKey(roomID, msg.Seq), data)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("badger persist message: %w", err)
	}
	return msg, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
