package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/duochat/internal/auth"
	"github.com/nfrund/duochat/internal/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		tokenUser, tokenTTL = "", 24*time.Hour
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("JWT_ISSUER", "cli-issuer")

	out, err := run(t, "token", "--user", "alice", "--ttl", "5m")
	require.NoError(t, err)

	userID, err := auth.NewJWTAuthenticator("cli-secret", "cli-issuer").Authenticate(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := run(t, "token", "--user", "alice")
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestRoomCommand(t *testing.T) {
	out, err := run(t, "room", "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomIDFor("alice", "bob"), strings.TrimSpace(out))

	_, err = run(t, "room", "alice", "alice")
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "duochat dev\n", out)
}
