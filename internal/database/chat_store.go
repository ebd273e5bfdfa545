package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/nfrund/duochat/internal/domain"
)

const (
	roomTable    = "room"
	seqTable     = "room_seq"
	messageTable = "message"
)

var (
	_ domain.RoomRepository    = (*ChatStore)(nil)
	_ domain.MessageRepository = (*ChatStore)(nil)
)

type roomRecord struct {
	RoomID    string `json:"room_id"`
	UserA     string `json:"user_a"`
	UserB     string `json:"user_b"`
	CreatedAt int64  `json:"created_at"`
}

func (r roomRecord) toDomain() domain.Room {
	return domain.Room{
		ID:        r.RoomID,
		UserA:     r.UserA,
		UserB:     r.UserB,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

type messageRecord struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	SenderID  string `json:"sender_id"`
	Body      string `json:"body"`
	Seq       int64  `json:"seq"`
	SentAt    int64  `json:"sent_at"`
}

func (m messageRecord) toDomain() domain.Message {
	return domain.Message{
		ID:       m.MessageID,
		RoomID:   m.RoomID,
		SenderID: m.SenderID,
		Body:     m.Body,
		Seq:      m.Seq,
		SentAt:   time.Unix(0, m.SentAt).UTC(),
	}
}

// ChatStore keeps rooms and messages in SurrealDB. Rooms use the room id as
// their record id so creation is a compare-and-create; sequences come from a
// counter record per room bumped inside the message transaction.
type ChatStore struct {
	conn *Connection
}

// NewChatStore creates a ChatStore over an established connection.
func NewChatStore(conn *Connection) *ChatStore {
	return &ChatStore{conn: conn}
}

// Close closes the underlying connection.
func (s *ChatStore) Close() error {
	return s.conn.Close(context.Background())
}

// Ping checks the server is reachable.
func (s *ChatStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// FindOrCreate stores room unless a room for the same pair exists, and
// returns the stored one either way.
func (s *ChatStore) FindOrCreate(ctx context.Context, room domain.Room) (domain.Room, error) {
	ctx, cancel := getTimeoutFromContext(ctx, DefaultExecuteTimeout, ContextKeyExecuteTimeout)
	defer cancel()

	const create = `CREATE type::thing($tb, $id) CONTENT {
		room_id: $id, user_a: $user_a, user_b: $user_b, created_at: $created_at
	} RETURN room_id, user_a, user_b, created_at`
	params := map[string]any{
		"tb":         roomTable,
		"id":         room.ID,
		"user_a":     room.UserA,
		"user_b":     room.UserB,
		"created_at": room.CreatedAt.UnixNano(),
	}

	var created *roomRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		created, err = QueryOne[roomRecord](ctx, db, create, params)
		return err
	})
	switch {
	case err == nil && created != nil:
		return created.toDomain(), nil
	case err != nil && !isAlreadyExists(err):
		return domain.Room{}, WrapError(err, "create room")
	}

	return s.FindByID(ctx, room.ID)
}

// FindByID loads a room by id, returning domain.ErrNotFound when absent.
func (s *ChatStore) FindByID(ctx context.Context, roomID string) (domain.Room, error) {
	ctx, cancel := getTimeoutFromContext(ctx, DefaultQueryTimeout, ContextKeyQueryTimeout)
	defer cancel()

	const query = `SELECT room_id, user_a, user_b, created_at FROM type::thing($tb, $id)`
	var rec *roomRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		rec, err = QueryOne[roomRecord](ctx, db, query, map[string]any{"tb": roomTable, "id": roomID})
		return err
	})
	if err != nil {
		return domain.Room{}, WrapError(err, "select room")
	}
	if rec == nil {
		return domain.Room{}, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	return rec.toDomain(), nil
}

// PersistMessage stores a message with the next sequence number of its room.
func (s *ChatStore) PersistMessage(ctx context.Context, roomID, senderID, body string) (domain.Message, error) {
	ctx, cancel := getTimeoutFromContext(ctx, DefaultExecuteTimeout, ContextKeyExecuteTimeout)
	defer cancel()

	const tx = `BEGIN TRANSACTION;
		LET $seq = (UPSERT type::thing($seq_tb, $room_id) SET value += 1 RETURN AFTER)[0].value;
		CREATE type::thing($msg_tb, $message_id) CONTENT {
			message_id: $message_id, room_id: $room_id, sender_id: $sender_id,
			body: $body, seq: $seq, sent_at: $sent_at
		} RETURN message_id, room_id, sender_id, body, seq, sent_at;
		COMMIT TRANSACTION;`
	params := map[string]any{
		"seq_tb":     seqTable,
		"msg_tb":     messageTable,
		"message_id": uuid.NewString(),
		"room_id":    roomID,
		"sender_id":  senderID,
		"body":       body,
		"sent_at":    time.Now().UTC().UnixNano(),
	}

	var rows []messageRecord
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		rows, err = QueryLast[messageRecord](ctx, db, tx, params)
		return err
	})
	if err != nil {
		return domain.Message{}, WrapError(err, "persist message")
	}
	if len(rows) == 0 {
		return domain.Message{}, NewDBError(errors.New("transaction returned no rows"), "persist message")
	}
	return rows[0].toDomain(), nil
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists) || strings.Contains(err.Error(), "already exists")
}
