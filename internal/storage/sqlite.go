package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nfrund/duochat/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	user_a     TEXT NOT NULL,
	user_b     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (user_a, user_b)
);
CREATE TABLE IF NOT EXISTS messages (
	id        TEXT PRIMARY KEY,
	room_id   TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	body      TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	sent_at   INTEGER NOT NULL,
	UNIQUE (room_id, seq)
);
`

// SQLiteStore persists rooms and messages in a single SQLite file. The pool
// is limited to one connection so sequence assignment is serialised.
type SQLiteStore struct {
	db *sql.DB
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// OpenSQLite opens the database at path and creates the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) FindOrCreate(ctx context.Context, room domain.Room) (domain.Room, error) {
	const insert = `INSERT INTO rooms (id, user_a, user_b, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`
	if _, err := s.db.ExecContext(ctx, insert, room.ID, room.UserA, room.UserB, toMillis(room.CreatedAt)); err != nil {
		return domain.Room{}, fmt.Errorf("insert room: %w", err)
	}

	const query = `SELECT id, user_a, user_b, created_at FROM rooms WHERE user_a = ? AND user_b = ?`
	return scanRoom(s.db.QueryRowContext(ctx, query, room.UserA, room.UserB))
}

func (s *SQLiteStore) FindByID(ctx context.Context, roomID string) (domain.Room, error) {
	const query = `SELECT id, user_a, user_b, created_at FROM rooms WHERE id = ?`
	room, err := scanRoom(s.db.QueryRowContext(ctx, query, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	return room, err
}

func scanRoom(row *sql.Row) (domain.Room, error) {
	var (
		room    domain.Room
		created int64
	)
	if err := row.Scan(&room.ID, &room.UserA, &room.UserB, &created); err != nil {
		return domain.Room{}, err
	}
	room.CreatedAt = fromMillis(created)
	return room, nil
}

func (s *SQLiteStore) PersistMessage(ctx context.Context, roomID, senderID, body string) (domain.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM messages WHERE room_id = ?`, roomID).Scan(&last); err != nil {
		return domain.Message{}, fmt.Errorf("read sequence: %w", err)
	}

	msg := domain.NewMessage(roomID, senderID, body, last+1)
	msg.SentAt = fromMillis(toMillis(msg.SentAt))
	const insert = `INSERT INTO messages (id, room_id, sender_id, body, seq, sent_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, msg.ID, msg.RoomID, msg.SenderID, msg.Body, msg.Seq, toMillis(msg.SentAt)); err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, fmt.Errorf("commit message: %w", err)
	}
	return msg, nil
}

// Ping checks that the database file is still usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
