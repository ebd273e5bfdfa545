package database

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/duochat/internal/domain"
)

func TestChatStore_FindOrCreate(t *testing.T) {
	store := NewChatStore(setupTestConnection(t))
	ctx := context.Background()

	first, err := store.FindOrCreate(ctx, domain.NewRoom("alice", "bob"))
	require.NoError(t, err)
	second, err := store.FindOrCreate(ctx, domain.NewRoom("bob", "alice"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	found, err := store.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.UserA)

	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChatStore_PersistMessageAssignsSequence(t *testing.T) {
	store := NewChatStore(setupTestConnection(t))
	ctx := context.Background()
	room, err := store.FindOrCreate(ctx, domain.NewRoom("alice", "bob"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	seqs := make([]int64, 10)
	for i := range seqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, err := store.PersistMessage(ctx, room.ID, "alice", "hi")
			assert.NoError(t, err)
			seqs[i] = msg.Seq
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, seqs)
}
