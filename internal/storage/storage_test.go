package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/duochat/internal/config"
	"github.com/nfrund/duochat/internal/domain"
)

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"badger": func(t *testing.T) Store {
			db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
			require.NoError(t, err)
			return NewBadgerStore(db)
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestStores(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("find or create returns the first room", func(t *testing.T) {
				s := factory(t)
				defer s.Close()
				ctx := context.Background()

				first, err := s.FindOrCreate(ctx, domain.NewRoom("alice", "bob"))
				require.NoError(t, err)
				second, err := s.FindOrCreate(ctx, domain.NewRoom("bob", "alice"))
				require.NoError(t, err)

				assert.Equal(t, first.ID, second.ID)
				assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
				assert.Equal(t, "alice", second.UserA)

				found, err := s.FindByID(ctx, first.ID)
				require.NoError(t, err)
				assert.Equal(t, first.ID, found.ID)

				_, err = s.FindByID(ctx, "missing")
				assert.ErrorIs(t, err, domain.ErrNotFound)
			})

			t.Run("concurrent first contact creates one room", func(t *testing.T) {
				s := factory(t)
				defer s.Close()

				var wg sync.WaitGroup
				ids := make([]string, 10)
				for i := range ids {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						room, err := s.FindOrCreate(context.Background(), domain.NewRoom("carol", "dave"))
						assert.NoError(t, err)
						ids[i] = room.ID
					}(i)
				}
				wg.Wait()
				for _, id := range ids {
					assert.Equal(t, domain.RoomIDFor("carol", "dave"), id)
				}
			})

			t.Run("sequence is per room and gapless", func(t *testing.T) {
				s := factory(t)
				defer s.Close()
				ctx := context.Background()

				var wg sync.WaitGroup
				var mu sync.Mutex
				seqs := map[string][]int64{}
				for i := 0; i < 10; i++ {
					for _, room := range []string{"room-1", "room-2"} {
						wg.Add(1)
						go func(room string) {
							defer wg.Done()
							msg, err := s.PersistMessage(ctx, room, "alice", "hi")
							if !assert.NoError(t, err) {
								return
							}
							assert.Equal(t, room, msg.RoomID)
							assert.NotEmpty(t, msg.ID)
							mu.Lock()
							seqs[room] = append(seqs[room], msg.Seq)
							mu.Unlock()
						}(room)
					}
				}
				wg.Wait()

				want := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
				assert.ElementsMatch(t, want, seqs["room-1"])
				assert.ElementsMatch(t, want, seqs["room-2"])
			})
		})
	}
}

func TestOpenFs(t *testing.T) {
	ctx := context.Background()

	s, err := OpenFs(ctx, afero.NewMemMapFs(), &config.Config{StorageDriver: config.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	dir := filepath.Join(t.TempDir(), "nested", "badger")
	s, err = OpenFs(ctx, afero.NewOsFs(), &config.Config{StorageDriver: config.DriverBadger, BadgerDir: dir})
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	path := filepath.Join(t.TempDir(), "db", "chat.db")
	s, err = OpenFs(ctx, afero.NewOsFs(), &config.Config{StorageDriver: config.DriverSQLite, SQLitePath: path})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = OpenFs(ctx, afero.NewMemMapFs(), &config.Config{StorageDriver: "mongo"})
	assert.Error(t, err)
}

func TestEnsureDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, ensureDir(fs, "data/badger"))
	ok, err := afero.DirExists(fs, "data/badger")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, ensureDir(fs, ""))
	assert.NoError(t, ensureDir(fs, "."))
}
