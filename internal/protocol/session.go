package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/nfrund/duochat/internal/auth"
	"github.com/nfrund/duochat/internal/broker"
	"github.com/nfrund/duochat/internal/domain"
)

// ErrSessionClosed is returned for frames that arrive after teardown began.
var ErrSessionClosed = errors.New("session closed")

const (
	DefaultInitTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultQueueSize    = 256
)

// Transport is the connection a Session writes to. The WebSocket layer
// implements it; tests use an in-memory fake.
type Transport interface {
	WriteFrame(ctx context.Context, data []byte) error
	Close(code int, reason string) error
	// Abort drops the connection without a closing handshake.
	Abort() error
}

// Subscriber is the part of the broker a Session needs.
type Subscriber interface {
	Subscribe(connID, roomID string, sink broker.Sink) (broker.SubscriptionID, error)
	Unsubscribe(id broker.SubscriptionID)
}

// Config tunes a Session.
type Config struct {
	InitTimeout  time.Duration
	WriteTimeout time.Duration
	QueueSize    int
}

func (c Config) withDefaults() Config {
	if c.InitTimeout <= 0 {
		c.InitTimeout = DefaultInitTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// outbound is one queued write. Control frames carry pre-encoded data; next
// frames carry the message and are encoded by the writer once it has checked
// that the operation is still live.
type outbound struct {
	opID  string
	subID broker.SubscriptionID
	msg   *domain.Message
	data  []byte
}

// Session drives the protocol for one connection. Frames are fed in by a
// single reader through HandleFrame; a single writer goroutine started by
// Start owns the transport.
type Session struct {
	id        string
	transport Transport
	auth      auth.Authenticator
	broker    Subscriber
	cfg       Config
	logger    *slog.Logger

	mu           sync.Mutex
	state        State
	initReceived bool
	userID       string
	ops          map[string]broker.SubscriptionID

	outbox     chan outbound
	done       chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
	reasonOnce sync.Once
	reason     error
	overflow   sync.Once
	initTimer  *time.Timer
}

// NewSession creates a Session in the Pending state.
func NewSession(id string, t Transport, a auth.Authenticator, b Subscriber, cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Session{
		id:        id,
		transport: t,
		auth:      a,
		broker:    b,
		cfg:       cfg,
		logger:    logger.With("component", "session", "conn_id", id),
		state:     StatePending,
		ops:       make(map[string]broker.SubscriptionID),
		outbox:    make(chan outbound, cfg.QueueSize),
		done:      make(chan struct{}),
		closed:    make(chan struct{}),
	}
}

// Start arms the init timeout and launches the writer goroutine.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	s.initTimer = time.AfterFunc(s.cfg.InitTimeout, s.checkInit)
	s.mu.Unlock()
	go s.writeLoop(ctx)
}

func (s *Session) checkInit() {
	s.mu.Lock()
	pending := s.state == StatePending
	s.mu.Unlock()
	if pending {
		s.logger.Info("Connection init timed out", "timeout", s.cfg.InitTimeout)
		s.Close(domain.ErrInitTimeout)
	}
}

// ID returns the connection id.
func (s *Session) ID() string { return s.id }

// UserID returns the authenticated user, or "" before the handshake.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// State returns the current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Operations returns the ids of the live operations.
func (s *Session) Operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Keys(s.ops)
}

// Done is closed once the transport has been closed.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Err returns the reason the session ended. It is nil while the session is
// open and after a normal close.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.reason
	default:
		return nil
	}
}

// HandleFrame processes one inbound frame. A non-nil error means the session
// is closing and the reader should stop.
func (s *Session) HandleFrame(ctx context.Context, data []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	f, err := ParseFrame(data)
	if err != nil {
		s.logger.Debug("Rejecting malformed frame", "error", err)
		s.Close(err)
		return err
	}

	switch f.Type {
	case TypeConnectionInit:
		return s.handleInit(ctx, f)
	case TypeSubscribe:
		return s.handleSubscribe(f)
	case TypeComplete:
		s.handleComplete(f)
		return nil
	case TypePing:
		s.enqueueControl(TypePong, "", nil)
		return nil
	case TypePong:
		return nil
	default:
		err := fmt.Errorf("%w: unknown message type %q", domain.ErrBadFrame, f.Type)
		s.Close(err)
		return err
	}
}

func (s *Session) handleInit(ctx context.Context, f Frame) error {
	s.mu.Lock()
	if s.initReceived {
		s.mu.Unlock()
		s.Close(domain.ErrTooManyInitRequests)
		return domain.ErrTooManyInitRequests
	}
	s.initReceived = true
	s.mu.Unlock()

	var p InitPayload
	if err := f.DecodePayload(&p); err != nil {
		s.Close(err)
		return err
	}

	userID, err := s.auth.Authenticate(ctx, p.Token)
	if err != nil {
		if !errors.Is(err, domain.ErrAuthRejected) {
			err = fmt.Errorf("%w: %v", domain.ErrAuthRejected, err)
		}
		s.logger.Info("Connection init rejected", "error", err)
		s.enqueueControl(TypeConnectionError, "", ErrorPayload{Reason: domain.ErrAuthRejected.Error()})
		s.Close(err)
		return err
	}

	s.mu.Lock()
	if s.state != StatePending {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateInitialized
	s.userID = userID
	if s.initTimer != nil {
		s.initTimer.Stop()
	}
	s.mu.Unlock()

	s.logger.Info("Client authenticated", "user_id", userID)
	s.enqueueControl(TypeConnectionAck, "", nil)
	return nil
}

func (s *Session) handleSubscribe(f Frame) error {
	if s.State() == StatePending {
		s.enqueueControl(TypeError, f.ID, ErrorPayload{Reason: domain.ErrUnauthorized.Error()})
		s.Close(domain.ErrUnauthorized)
		return domain.ErrUnauthorized
	}
	if f.ID == "" {
		err := fmt.Errorf("%w: subscribe without id", domain.ErrBadFrame)
		s.Close(err)
		return err
	}
	var p SubscribePayload
	if err := f.DecodePayload(&p); err != nil {
		s.Close(err)
		return err
	}
	roomID := p.Room()
	if roomID == "" {
		err := fmt.Errorf("%w: subscribe without room id", domain.ErrBadFrame)
		s.Close(err)
		return err
	}

	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	if _, dup := s.ops[f.ID]; dup {
		s.mu.Unlock()
		s.logger.Debug("Duplicate operation id", "op_id", f.ID)
		s.enqueueControl(TypeError, f.ID, ErrorPayload{Reason: domain.ErrDuplicateSubscription.Error()})
		return nil
	}

	subID, err := s.broker.Subscribe(s.id, roomID, &opSink{s: s, opID: f.ID})
	if err != nil {
		s.mu.Unlock()
		reason := "internal error"
		if errors.Is(err, domain.ErrDuplicateSubscription) {
			reason = domain.ErrDuplicateSubscription.Error()
		}
		s.logger.Debug("Subscribe refused", "op_id", f.ID, "room_id", roomID, "error", err)
		s.enqueueControl(TypeError, f.ID, ErrorPayload{Reason: reason})
		return nil
	}
	s.ops[f.ID] = subID
	s.state = StateActive
	s.mu.Unlock()

	s.logger.Debug("Subscribed", "op_id", f.ID, "room_id", roomID, "subscription_id", subID)
	return nil
}

func (s *Session) handleComplete(f Frame) {
	s.mu.Lock()
	subID, ok := s.ops[f.ID]
	if ok {
		delete(s.ops, f.ID)
	}
	s.mu.Unlock()

	if ok {
		s.broker.Unsubscribe(subID)
		s.logger.Debug("Completed", "op_id", f.ID, "subscription_id", subID)
	}
}

// enqueueControl queues a control frame. A full queue means the client is not
// reading and the session is failed as a slow consumer.
func (s *Session) enqueueControl(typ, id string, payload any) {
	f, err := NewFrame(typ, id, payload)
	if err != nil {
		s.logger.Error("Failed to build frame", "type", typ, "error", err)
		return
	}
	data, err := f.Encode()
	if err != nil {
		s.logger.Error("Failed to encode frame", "type", typ, "error", err)
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.outbox <- outbound{data: data}:
	default:
		s.Close(domain.ErrSlowConsumer)
	}
}

// Close tears the session down with the given reason; nil is a normal close.
// Only the first call has an effect.
func (s *Session) Close(reason error) {
	s.setReason(reason)
	s.teardown()
}

func (s *Session) setReason(err error) {
	s.reasonOnce.Do(func() { s.reason = err })
}

func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosing
		ops := s.ops
		s.ops = make(map[string]broker.SubscriptionID)
		if s.initTimer != nil {
			s.initTimer.Stop()
		}
		s.mu.Unlock()

		for _, subID := range lo.Values(ops) {
			s.broker.Unsubscribe(subID)
		}
		close(s.done)

		if s.reason != nil {
			s.logger.Info("Closing connection", "reason", s.reason, "code", domain.CloseCodeFor(s.reason))
		}
	})
}

func (s *Session) writeLoop(ctx context.Context) {
	defer close(s.closed)
	for {
		select {
		case item := <-s.outbox:
			if err := s.write(ctx, item); err != nil {
				s.logger.Debug("Write failed", "error", err)
				s.Close(fmt.Errorf("write: %w", err))
				s.finish(ctx, false)
				return
			}
		case <-s.done:
			s.finish(ctx, true)
			return
		case <-ctx.Done():
			s.Close(domain.ErrShuttingDown)
			s.finish(context.WithoutCancel(ctx), true)
			return
		}
	}
}

func (s *Session) write(ctx context.Context, item outbound) error {
	data := item.data
	if item.msg != nil {
		var (
			live bool
			err  error
		)
		if data, live, err = s.encodeNext(item); err != nil || !live {
			return err
		}
	}

	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	return s.transport.WriteFrame(wctx, data)
}

// encodeNext builds the next frame for item if its operation is still live.
// A complete handled after this check orders after the frame; one handled
// before it drops the frame.
func (s *Session) encodeNext(item outbound) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.ops[item.opID]; !ok || cur != item.subID {
		return nil, false, nil
	}
	f, err := NewFrame(TypeNext, item.opID, item.msg)
	if err != nil {
		return nil, false, err
	}
	data, err := f.Encode()
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// finish flushes queued control frames when the transport is still healthy,
// then closes it with the code matching the teardown reason.
func (s *Session) finish(ctx context.Context, healthy bool) {
	defer func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
	}()

	if !healthy {
		if err := s.transport.Abort(); err != nil {
			s.logger.Debug("Abort failed", "error", err)
		}
		return
	}

	fctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
drain:
	for {
		select {
		case item := <-s.outbox:
			if item.data == nil {
				continue
			}
			if err := s.transport.WriteFrame(fctx, item.data); err != nil {
				break drain
			}
		default:
			break drain
		}
	}

	code := domain.CloseCodeFor(s.reason)
	if err := s.transport.Close(code, closeReason(s.reason)); err != nil {
		s.logger.Debug("Close failed", "code", code, "error", err)
	}
}

// closeReason names the failure without leaking wrapped details.
func closeReason(err error) string {
	if err == nil {
		return ""
	}
	for _, known := range []error{
		domain.ErrAuthRejected,
		domain.ErrUnauthorized,
		domain.ErrInitTimeout,
		domain.ErrTooManyInitRequests,
		domain.ErrBadFrame,
		domain.ErrSlowConsumer,
		domain.ErrShuttingDown,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}

// opSink routes broker deliveries for one operation into the session outbox.
type opSink struct {
	s    *Session
	opID string
}

// Deliver never blocks. When the outbox is full the session is failed as a
// slow consumer; teardown runs on its own goroutine since the broker calls
// Deliver with its topic lock held.
func (k *opSink) Deliver(id broker.SubscriptionID, msg domain.Message) bool {
	s := k.s
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.outbox <- outbound{opID: k.opID, subID: id, msg: &msg}:
		return true
	default:
		s.overflow.Do(func() {
			s.setReason(domain.ErrSlowConsumer)
			go s.teardown()
		})
		return false
	}
}
