package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/surrealdb/surrealdb.go"
)

// Settings is the slice of configuration a Connection needs.
// config.Provider satisfies it.
type Settings interface {
	GetDBURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
}

// Backoff is an exponential retry policy with optional jitter.
type Backoff struct {
	Retries int
	Base    time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  bool
}

// DefaultBackoff retries five times, starting at 100ms and capped at 30s.
var DefaultBackoff = Backoff{
	Retries: 5,
	Base:    100 * time.Millisecond,
	Max:     30 * time.Second,
	Factor:  2,
	Jitter:  true,
}

// Retry calls fn until it succeeds, the retries run out or ctx ends.
func (b Backoff) Retry(ctx context.Context, logger *slog.Logger, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= b.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == b.Retries {
			break
		}

		wait := b.delay(attempt)
		logger.DebugContext(ctx, "Surreal operation failed, backing off",
			"attempt", attempt+1, "max_attempts", b.Retries+1,
			"delay_ms", wait.Milliseconds(), "error", lastErr)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", b.Retries+1, lastErr)
}

func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.Base) * math.Pow(b.Factor, float64(attempt))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter {
		d += rand.Float64() * d * 0.25
	}
	return time.Duration(d)
}

// ConnectionOption customizes a Connection.
type ConnectionOption func(*Connection)

// WithLogger sets the logger used for connection events.
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(c *Connection) { c.logger = logger }
}

// WithBackoff replaces DefaultBackoff for reconnects.
func WithBackoff(b Backoff) ConnectionOption {
	return func(c *Connection) { c.backoff = b }
}

// WithHealthInterval sets how often Monitor pings the server.
func WithHealthInterval(d time.Duration) ConnectionOption {
	return func(c *Connection) { c.interval = d }
}

// Connection owns a SurrealDB client and replaces it when it breaks.
type Connection struct {
	cfg      Settings
	logger   *slog.Logger
	backoff  Backoff
	interval time.Duration

	mu      sync.RWMutex
	db      *surrealdb.DB
	healthy bool

	done chan struct{}
	stop sync.Once
}

// NewConnection creates an unconnected Connection; call Connect before use.
func NewConnection(cfg Settings, opts ...ConnectionOption) *Connection {
	c := &Connection{
		cfg:      cfg,
		logger:   slog.Default(),
		backoff:  DefaultBackoff,
		interval: 30 * time.Second,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "surreal")
	return c
}

// Connect dials, signs in and selects the namespace and database.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return nil
	}
	return c.dialLocked(ctx)
}

// WithConnection runs fn against the live client. When fn fails with a
// transport error the client is redialed and fn retried under the backoff
// policy; query errors come back unchanged.
func (c *Connection) WithConnection(ctx context.Context, fn func(*surrealdb.DB) error) error {
	db := c.client()
	if db == nil {
		return NewDBError(ErrNotConnected, "database not connected")
	}

	err := fn(db)
	if err == nil || !isConnectionError(err) {
		return err
	}

	c.logger.WarnContext(ctx, "Surreal connection lost, redialing", "error", err, "db_url", c.redactedURL())
	return c.backoff.Retry(ctx, c.logger, func() error {
		if dialErr := c.redial(ctx); dialErr != nil {
			return fmt.Errorf("redial: %w (after %v)", dialErr, err)
		}
		return fn(c.client())
	})
}

// Monitor pings the server on the health interval until Close, redialing
// when a ping fails.
func (c *Connection) Monitor() {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				c.probe()
			}
		}
	}()
}

func (c *Connection) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Ping(ctx)
	if err == nil {
		return
	}
	c.logger.WarnContext(ctx, "Surreal health check failed", "error", err, "db_url", c.redactedURL())
	if err := c.backoff.Retry(ctx, c.logger, func() error { return c.redial(ctx) }); err != nil {
		c.logger.ErrorContext(ctx, "Surreal reconnect failed", "error", err)
	}
}

// Ping asks the server for its version and records the outcome.
func (c *Connection) Ping(ctx context.Context) error {
	db := c.client()
	if db == nil {
		c.setHealthy(false)
		return NewDBError(ErrNotConnected, "ping")
	}
	if _, err := db.Version(ctx); err != nil {
		c.setHealthy(false)
		return NewDBError(err, "ping")
	}
	c.setHealthy(true)
	return nil
}

// Healthy reports the outcome of the last dial or ping.
func (c *Connection) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// Close stops Monitor and closes the client. Safe to call twice.
func (c *Connection) Close(ctx context.Context) error {
	c.stop.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close(ctx)
	c.db = nil
	c.healthy = false
	return err
}

func (c *Connection) client() *surrealdb.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

func (c *Connection) redial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialLocked(ctx)
}

func (c *Connection) dialLocked(ctx context.Context) error {
	if c.db != nil {
		_ = c.db.Close(ctx)
		c.db = nil
	}
	c.healthy = false

	db, err := surrealdb.FromEndpointURLString(ctx, c.cfg.GetDBURL())
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.redactedURL(), err)
	}
	if _, err := db.SignIn(ctx, &surrealdb.Auth{Username: c.cfg.GetDBUser(), Password: c.cfg.GetDBPass()}); err != nil {
		_ = db.Close(ctx)
		return fmt.Errorf("sign in as %s: %w", c.cfg.GetDBUser(), err)
	}
	if err := db.Use(ctx, c.cfg.GetDBNs(), c.cfg.GetDBDb()); err != nil {
		_ = db.Close(ctx)
		return fmt.Errorf("use %s/%s: %w", c.cfg.GetDBNs(), c.cfg.GetDBDb(), err)
	}

	c.db = db
	c.healthy = true
	c.logger.InfoContext(ctx, "Surreal connected",
		"db_url", c.redactedURL(), "namespace", c.cfg.GetDBNs(), "database", c.cfg.GetDBDb())
	return nil
}

func (c *Connection) setHealthy(v bool) {
	c.mu.Lock()
	c.healthy = v
	c.mu.Unlock()
}

func (c *Connection) redactedURL() string {
	return redactDBURL(c.cfg.GetDBURL())
}

// isConnectionError separates a broken transport from a failed query.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConnected) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "broken pipe", "unexpected eof", "use of closed network connection"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func redactDBURL(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}
