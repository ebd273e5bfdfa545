package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/nfrund/duochat/internal/config"
	"github.com/nfrund/duochat/internal/database"
	"github.com/nfrund/duochat/internal/domain"
)

// Store is a room and message backend.
type Store interface {
	domain.RoomRepository
	domain.MessageRepository
	Close() error
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Settings is the configuration Open reads. config.Provider satisfies it.
type Settings interface {
	database.Settings
	GetStorageDriver() string
	GetBadgerDir() string
	GetSQLitePath() string
}

// Open builds the Store selected by the configured driver.
func Open(ctx context.Context, cfg Settings) (Store, error) {
	return OpenFs(ctx, afero.NewOsFs(), cfg)
}

// OpenFs is Open with an explicit filesystem for data directory setup.
func OpenFs(ctx context.Context, fs afero.Fs, cfg Settings) (Store, error) {
	driver := cfg.GetStorageDriver()
	slog.InfoContext(ctx, "Opening store", "driver", driver)

	switch driver {
	case config.DriverMemory, "":
		return NewMemoryStore(), nil
	case config.DriverBadger:
		if err := ensureDir(fs, cfg.GetBadgerDir()); err != nil {
			return nil, err
		}
		return OpenBadger(cfg.GetBadgerDir())
	case config.DriverSQLite:
		if err := ensureDir(fs, filepath.Dir(cfg.GetSQLitePath())); err != nil {
			return nil, err
		}
		return OpenSQLite(ctx, cfg.GetSQLitePath())
	case config.DriverSurreal:
		conn := database.NewConnection(cfg, database.WithLogger(slog.Default()))
		if err := conn.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect surrealdb: %w", err)
		}
		conn.Monitor()
		return database.NewChatStore(conn), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// ensureDir creates dir and its parents. "" and "." need nothing.
func ensureDir(fs afero.Fs, dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", dir, err)
	}
	return nil
}
