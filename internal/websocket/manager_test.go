package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/duochat/internal/broker"
	"github.com/nfrund/duochat/internal/domain"
	"github.com/nfrund/duochat/internal/protocol"
)

type recordingTransport struct {
	mu   sync.Mutex
	code int
}

func (t *recordingTransport) WriteFrame(context.Context, []byte) error { return nil }

func (t *recordingTransport) Close(code int, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.code = code
	return nil
}

func (t *recordingTransport) Abort() error { return nil }

func (t *recordingTransport) closeCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.code
}

func newManagedSession(t *testing.T, m *Manager, id string) (*protocol.Session, *recordingTransport) {
	t.Helper()
	tr := &recordingTransport{}
	s := protocol.NewSession(id, tr, nil, broker.New(), protocol.Config{InitTimeout: time.Minute}, nil)
	require.NoError(t, m.Add(s))
	s.Start(m.Context())
	return s, tr
}

func TestManager_AddRemove(t *testing.T) {
	m := NewManager(nil)
	newManagedSession(t, m, "c1")
	newManagedSession(t, m, "c2")

	assert.Equal(t, 2, m.Count())
	got, ok := m.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID())
	assert.Len(t, m.GetAll(), 2)
	assert.Empty(t, m.GetByUser("alice"), "sessions are anonymous until init")

	m.Remove("c1")
	m.Remove("c1")
	assert.Equal(t, 1, m.Count())
	_, ok = m.Get("c1")
	assert.False(t, ok)

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_ShutdownClosesSessions(t *testing.T) {
	m := NewManager(nil)
	s1, tr1 := newManagedSession(t, m, "c1")
	s2, tr2 := newManagedSession(t, m, "c2")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	for _, s := range []*protocol.Session{s1, s2} {
		select {
		case <-s.Done():
		default:
			t.Fatalf("session %s still open after shutdown", s.ID())
		}
		assert.ErrorIs(t, s.Err(), domain.ErrShuttingDown)
	}
	assert.Equal(t, domain.CloseGoingAway, tr1.closeCode())
	assert.Equal(t, domain.CloseGoingAway, tr2.closeCode())

	late := protocol.NewSession("late", &recordingTransport{}, nil, broker.New(), protocol.Config{}, nil)
	assert.ErrorIs(t, m.Add(late), domain.ErrShuttingDown)
}

func TestManager_ShutdownRespectsDeadline(t *testing.T) {
	m := NewManager(nil)
	// Never started: no writer will ever close it.
	s := protocol.NewSession("stuck", &recordingTransport{}, nil, broker.New(), protocol.Config{}, nil)
	require.NoError(t, m.Add(s))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Shutdown(ctx), context.DeadlineExceeded)
}
