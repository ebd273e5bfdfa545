package pubsub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/duochat/internal/domain"
)

type recordingFanout struct {
	mu    sync.Mutex
	rooms []string
	msgs  []domain.Message
}

func (f *recordingFanout) Publish(roomID string, msg domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, roomID)
	f.msgs = append(f.msgs, msg)
}

func (f *recordingFanout) snapshot() ([]string, []domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rooms...), append([]domain.Message(nil), f.msgs...)
}

func newTestRelay(t *testing.T) (*Relay, *WatermillBridge, *recordingFanout) {
	t.Helper()
	bus := NewWatermillBridge(nil)
	target := &recordingFanout{}
	relay := NewRelay(bus, target, nil)
	require.NoError(t, relay.Start(context.Background()))
	t.Cleanup(func() { _ = relay.Shutdown() })
	return relay, bus, target
}

func TestRelay_DeliversInOrder(t *testing.T) {
	relay, _, target := newTestRelay(t)

	roomID := domain.RoomIDFor("alice", "bob")
	for i := 1; i <= 10; i++ {
		relay.Publish(roomID, domain.NewMessage(roomID, "alice", fmt.Sprintf("msg %d", i), int64(i)))
	}

	require.Eventually(t, func() bool {
		_, msgs := target.snapshot()
		return len(msgs) == 10
	}, 2*time.Second, 10*time.Millisecond)

	rooms, msgs := target.snapshot()
	for i, msg := range msgs {
		assert.Equal(t, roomID, rooms[i])
		assert.Equal(t, int64(i+1), msg.Seq)
		assert.Equal(t, fmt.Sprintf("msg %d", i+1), msg.Body)
		assert.Equal(t, "alice", msg.SenderID)
	}
}

func TestRelay_RoomFromMetadata(t *testing.T) {
	relay, _, target := newTestRelay(t)

	msg := domain.NewMessage("", "alice", "hi", 1)
	relay.Publish("room-x", msg)

	require.Eventually(t, func() bool {
		rooms, _ := target.snapshot()
		return len(rooms) == 1
	}, 2*time.Second, 10*time.Millisecond)
	rooms, _ := target.snapshot()
	assert.Equal(t, "room-x", rooms[0])
}

func TestRelay_BadPayloadDoesNotBlock(t *testing.T) {
	relay, bus, target := newTestRelay(t)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, Message{Topic: MessageSent.Name(), Payload: []byte("not json")}))
	require.NoError(t, bus.Publish(ctx, Message{Topic: MessageSent.Name(), Payload: []byte(`{"body":"no room"}`)}))

	roomID := domain.RoomIDFor("alice", "bob")
	relay.Publish(roomID, domain.NewMessage(roomID, "bob", "after", 1))

	require.Eventually(t, func() bool {
		_, msgs := target.snapshot()
		return len(msgs) == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, msgs := target.snapshot()
	assert.Equal(t, "after", msgs[0].Body)
}

func TestRelay_PublishAfterShutdownIsLogged(t *testing.T) {
	relay, _, target := newTestRelay(t)
	require.NoError(t, relay.Shutdown())

	assert.NotPanics(t, func() {
		relay.Publish("room", domain.NewMessage("room", "alice", "late", 1))
	})
	_, msgs := target.snapshot()
	assert.Empty(t, msgs)
}

func TestTypedEvent_RoundTrip(t *testing.T) {
	bus := NewWatermillBridge(nil)
	t.Cleanup(func() { _ = bus.Close() })

	event := NewEvent[domain.Message]("chat.roundtrip")
	got := make(chan domain.Message, 1)
	require.NoError(t, bus.Subscribe(context.Background(), event.Name(), func(_ context.Context, m Message) error {
		msg, err := Decode(event, m)
		if err != nil {
			return err
		}
		got <- msg
		return nil
	}))

	sent := domain.NewMessage("room", "alice", "hello", 7)
	require.NoError(t, Publish(context.Background(), bus, event, "alice", sent, nil))

	select {
	case msg := <-got:
		assert.Equal(t, sent.ID, msg.ID)
		assert.Equal(t, sent.Seq, msg.Seq)
		assert.True(t, sent.SentAt.Equal(msg.SentAt))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}
