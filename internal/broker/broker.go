package broker

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/nfrund/duochat/internal/domain"
)

// DefaultShards is the number of topic buckets when no option overrides it.
const DefaultShards = 32

// SubscriptionID identifies one subscription process-wide.
type SubscriptionID string

// Sink receives deliveries for a subscription. Deliver is called with the
// topic lock held, so it must not block and must not call back into the
// Broker. Returning false means the sink cannot take the message; the
// subscription is then evicted.
type Sink interface {
	Deliver(id SubscriptionID, msg domain.Message) bool
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(id SubscriptionID, msg domain.Message) bool

// Deliver calls f.
func (f SinkFunc) Deliver(id SubscriptionID, msg domain.Message) bool { return f(id, msg) }

// Stats is a point-in-time view of the registry.
type Stats struct {
	Topics        int `json:"topics"`
	Subscriptions int `json:"subscriptions"`
}

type subscription struct {
	id        SubscriptionID
	connID    string
	roomID    string
	sink      Sink
	createdAt time.Time
}

// topic holds the subscribers of one room in registration order.
type topic struct {
	mu     sync.Mutex
	subs   []*subscription
	byConn map[string]*subscription
}

func (t *topic) remove(id SubscriptionID) bool {
	for i, s := range t.subs {
		if s.id == id {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			if t.byConn[s.connID] == s {
				delete(t.byConn, s.connID)
			}
			return true
		}
	}
	return false
}

type shard struct {
	mu     sync.RWMutex
	topics map[string]*topic
}

// Broker maps room ids to live subscriptions and fans published messages out
// to them. Locks are taken shard first, topic second.
type Broker struct {
	shards []*shard
	index  sync.Map // SubscriptionID -> room id
	logger *slog.Logger
}

// Option configures a Broker.
type Option func(*Broker)

// WithShards sets the number of topic buckets.
func WithShards(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.shards = make([]*shard, n)
		}
	}
}

// WithLogger sets the logger used for eviction events.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = l
	}
}

// New creates an empty Broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		shards: make([]*shard, DefaultShards),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	for i := range b.shards {
		b.shards[i] = &shard{topics: make(map[string]*topic)}
	}
	b.logger = b.logger.With("component", "broker")
	return b
}

func (b *Broker) shardFor(roomID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return b.shards[h.Sum32()%uint32(len(b.shards))]
}

// Subscribe registers sink on roomID for connID. A connection may hold at most
// one live subscription per room.
func (b *Broker) Subscribe(connID, roomID string, sink Sink) (SubscriptionID, error) {
	sh := b.shardFor(roomID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	t, ok := sh.topics[roomID]
	if !ok {
		t = &topic{byConn: make(map[string]*subscription)}
		sh.topics[roomID] = t
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.byConn[connID]; dup {
		return "", fmt.Errorf("connection %s already subscribed to room %s: %w", connID, roomID, domain.ErrDuplicateSubscription)
	}

	sub := &subscription{
		id:        SubscriptionID(uuid.NewString()),
		connID:    connID,
		roomID:    roomID,
		sink:      sink,
		createdAt: time.Now(),
	}
	t.subs = append(t.subs, sub)
	t.byConn[connID] = sub
	b.index.Store(sub.id, roomID)
	return sub.id, nil
}

// Unsubscribe removes a subscription. Unknown or already removed ids are a
// no-op. Once it returns, the subscription's sink is never called again.
func (b *Broker) Unsubscribe(id SubscriptionID) {
	v, ok := b.index.LoadAndDelete(id)
	if !ok {
		return
	}
	roomID := v.(string)

	sh := b.shardFor(roomID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	t, ok := sh.topics[roomID]
	if !ok {
		return
	}
	t.mu.Lock()
	t.remove(id)
	empty := len(t.subs) == 0
	t.mu.Unlock()
	if empty {
		delete(sh.topics, roomID)
	}
}

// Publish delivers msg to every subscription on roomID in registration order.
// It never blocks on a subscriber: a sink that refuses the message is evicted.
func (b *Broker) Publish(roomID string, msg domain.Message) {
	sh := b.shardFor(roomID)
	sh.mu.RLock()
	t, ok := sh.topics[roomID]
	if !ok {
		sh.mu.RUnlock()
		return
	}

	t.mu.Lock()
	var evicted []*subscription
	for _, sub := range t.subs {
		if !sub.sink.Deliver(sub.id, msg) {
			evicted = append(evicted, sub)
		}
	}
	for _, sub := range evicted {
		t.remove(sub.id)
		b.index.Delete(sub.id)
	}
	empty := len(t.subs) == 0
	t.mu.Unlock()
	sh.mu.RUnlock()

	for _, sub := range evicted {
		b.logger.Warn("Evicted slow subscriber",
			"room_id", roomID,
			"conn_id", sub.connID,
			"subscription_id", sub.id,
			"age", time.Since(sub.createdAt).Round(time.Millisecond),
			"error", domain.ErrSlowConsumer)
	}
	if empty && len(evicted) > 0 {
		b.pruneTopic(sh, roomID, t)
	}
}

func (b *Broker) pruneTopic(sh *shard, roomID string, t *topic) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.topics[roomID] != t {
		return
	}
	t.mu.Lock()
	empty := len(t.subs) == 0
	t.mu.Unlock()
	if empty {
		delete(sh.topics, roomID)
	}
}

// Subscribers returns the number of live subscriptions on roomID.
func (b *Broker) Subscribers(roomID string) int {
	sh := b.shardFor(roomID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	t, ok := sh.topics[roomID]
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Stats counts non-empty topics and live subscriptions.
func (b *Broker) Stats() Stats {
	var st Stats
	for _, sh := range b.shards {
		sh.mu.RLock()
		counts := lo.MapToSlice(sh.topics, func(_ string, t *topic) int {
			t.mu.Lock()
			defer t.mu.Unlock()
			return len(t.subs)
		})
		sh.mu.RUnlock()
		st.Topics += lo.CountBy(counts, func(n int) bool { return n > 0 })
		st.Subscriptions += lo.Sum(counts)
	}
	return st
}
