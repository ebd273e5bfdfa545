package middleware

import (
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/duochat/internal/auth"
	"github.com/nfrund/duochat/internal/domain"
)

// UserContextKey holds the authenticated user id on the echo context.
const UserContextKey = "user_id"

// Auth protects routes with a bearer token checked by a.
func Auth(a auth.Authenticator) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(token string, c echo.Context) (bool, error) {
			userID, err := a.Authenticate(c.Request().Context(), token)
			if err != nil {
				return false, err
			}
			c.Set(UserContextKey, userID)
			return true, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			if errors.Is(err, domain.ErrAuthRejected) {
				return err
			}
			return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		},
	})
}

// UserID returns the user id set by Auth.
func UserID(c echo.Context) (string, bool) {
	id, ok := c.Get(UserContextKey).(string)
	return id, ok && id != ""
}
