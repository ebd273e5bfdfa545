package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/duochat/internal/auth"
	"github.com/nfrund/duochat/internal/domain"
)

const (
	testSecret = "middleware-secret"
	testIssuer = "duochat-test"
)

func newProtectedEcho(t *testing.T) (*echo.Echo, *error) {
	t.Helper()
	var handled error
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		handled = err
		_ = c.NoContent(http.StatusUnauthorized)
	}
	e.GET("/me", func(c echo.Context) error {
		id, ok := UserID(c)
		require.True(t, ok)
		return c.String(http.StatusOK, id)
	}, Auth(auth.NewJWTAuthenticator(testSecret, testIssuer)))
	return e, &handled
}

func TestAuthMiddleware(t *testing.T) {
	valid, err := auth.IssueToken(testSecret, testIssuer, "alice", time.Minute)
	require.NoError(t, err)
	expired, err := auth.IssueToken(testSecret, testIssuer, "alice", -time.Minute)
	require.NoError(t, err)
	foreign, err := auth.IssueToken("other-secret", testIssuer, "alice", time.Minute)
	require.NoError(t, err)

	t.Run("valid bearer token", func(t *testing.T) {
		e, _ := newProtectedEcho(t)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+valid)
		rec := httptest.NewRecorder()

		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", rec.Body.String())
	})

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"missing header", "", domain.ErrUnauthorized},
		{"wrong scheme", "Basic " + valid, domain.ErrUnauthorized},
		{"expired token", "Bearer " + expired, domain.ErrAuthRejected},
		{"foreign signature", "Bearer " + foreign, domain.ErrAuthRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, handled := newProtectedEcho(t)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()

			e.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.ErrorIs(t, *handled, tt.want)
		})
	}
}

func TestUserID_Unset(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, ok := UserID(c)
	assert.False(t, ok)
}
