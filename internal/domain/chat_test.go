package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomIDFor_IsSymmetric(t *testing.T) {
	assert.Equal(t, RoomIDFor("alice", "bob"), RoomIDFor("bob", "alice"))
	assert.NotEqual(t, RoomIDFor("alice", "bob"), RoomIDFor("alice", "carol"))
	// The separator keeps concatenation collisions apart.
	assert.NotEqual(t, RoomIDFor("ab", "c"), RoomIDFor("a", "bc"))
}

func TestNewRoom_Canonical(t *testing.T) {
	r := NewRoom("zed", "amy")
	assert.Equal(t, "amy", r.UserA)
	assert.Equal(t, "zed", r.UserB)
	assert.True(t, r.Has("zed"))
	assert.False(t, r.Has("bob"))
	assert.Equal(t, RoomIDFor("amy", "zed"), r.ID)
}

func TestSendRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SendRequest
		maxLen  int
		wantErr bool
	}{
		{"ok", SendRequest{SenderID: "a", RecipientID: "b", Body: "hi"}, 10, false},
		{"empty body", SendRequest{SenderID: "a", RecipientID: "b", Body: ""}, 10, true},
		{"blank body", SendRequest{SenderID: "a", RecipientID: "b", Body: "  \n\t"}, 10, true},
		{"no recipient", SendRequest{SenderID: "a", Body: "hi"}, 10, true},
		{"self", SendRequest{SenderID: "a", RecipientID: "a", Body: "hi"}, 10, true},
		{"too long", SendRequest{SenderID: "a", RecipientID: "b", Body: strings.Repeat("x", 11)}, 10, true},
		{"at limit", SendRequest{SenderID: "a", RecipientID: "b", Body: strings.Repeat("x", 10)}, 10, false},
		{"multibyte counts runes", SendRequest{SenderID: "a", RecipientID: "b", Body: strings.Repeat("é", 10)}, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(tt.maxLen)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidMessage))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCloseCodeFor(t *testing.T) {
	assert.Equal(t, CloseNormal, CloseCodeFor(nil))
	assert.Equal(t, CloseForbidden, CloseCodeFor(ErrAuthRejected))
	assert.Equal(t, CloseUnauthorized, CloseCodeFor(ErrUnauthorized))
	assert.Equal(t, CloseInitTimeout, CloseCodeFor(ErrInitTimeout))
	assert.Equal(t, CloseTooManyInitCalls, CloseCodeFor(ErrTooManyInitRequests))
	assert.Equal(t, CloseBadRequest, CloseCodeFor(ErrBadFrame))
	assert.Equal(t, ClosePolicyViolation, CloseCodeFor(ErrSlowConsumer))
	assert.Equal(t, CloseGoingAway, CloseCodeFor(ErrShuttingDown))
	assert.Equal(t, CloseInternalError, CloseCodeFor(errors.New("boom")))
}
