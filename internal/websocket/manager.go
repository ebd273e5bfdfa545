package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"github.com/nfrund/duochat/internal/domain"
	"github.com/nfrund/duochat/internal/protocol"
)

// Manager tracks live sessions and owns the context they run under.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*protocol.Session
	closing  bool

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewManager creates a Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sessions: make(map[string]*protocol.Session),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With("component", "ws_manager"),
	}
}

// Context is cancelled when the manager shuts down. Sessions started with it
// close with 1001.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Add registers a session. It fails once shutdown has begun.
func (m *Manager) Add(s *protocol.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return domain.ErrShuttingDown
	}
	m.sessions[s.ID()] = s
	return nil
}

// Remove unregisters a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Get returns the session with the given connection id.
func (m *Manager) Get(id string) (*protocol.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GetByUser returns every session authenticated as userID.
func (m *Manager) GetByUser(userID string) []*protocol.Session {
	return lo.Filter(m.GetAll(), func(s *protocol.Session, _ int) bool {
		return s.UserID() == userID
	})
}

// GetAll returns all currently registered sessions.
func (m *Manager) GetAll() []*protocol.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Values(m.sessions)
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown refuses new sessions, closes the live ones with 1001 and waits
// for their transports to close or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	live := m.GetAll()
	m.logger.Info("Closing WebSocket sessions", "count", len(live))
	m.cancel()

	for _, s := range live {
		select {
		case <-s.Done():
		case <-ctx.Done():
			m.logger.Warn("Timed out waiting for sessions to close", "error", ctx.Err())
			return ctx.Err()
		}
	}
	return nil
}
