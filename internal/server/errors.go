package server

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/duochat/internal/domain"
	"github.com/nfrund/duochat/internal/handlers"
	"github.com/nfrund/duochat/internal/middleware"
)

// statusFor maps an error returned by a handler to a status and body.
func statusFor(err error) (int, handlers.ErrorResponse) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code, handlers.ErrorResponse{Code: http.StatusText(he.Code), Message: fmt.Sprint(he.Message)}
	case errors.Is(err, domain.ErrInvalidMessage):
		return http.StatusBadRequest, handlers.ErrorResponse{Code: "invalid_message", Message: err.Error()}
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrAuthRejected):
		return http.StatusUnauthorized, handlers.ErrorResponse{Code: "unauthorized", Message: "authentication required"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, handlers.ErrorResponse{Code: "not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrPersistenceFailure):
		return http.StatusBadGateway, handlers.ErrorResponse{Code: "persistence_failure", Message: "message could not be stored"}
	case errors.Is(err, domain.ErrShuttingDown):
		return http.StatusServiceUnavailable, handlers.ErrorResponse{Code: "shutting_down", Message: err.Error()}
	default:
		return http.StatusInternalServerError, handlers.ErrorResponse{Code: "internal_error", Message: http.StatusText(http.StatusInternalServerError)}
	}
}

// setupErrorHandling installs the central error handler. Errors that map to
// a 500 are logged with a stack trace.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := statusFor(err)
		logger := middleware.FromContext(c.Request().Context())
		switch {
		case code >= http.StatusInternalServerError && code != http.StatusBadGateway && code != http.StatusServiceUnavailable:
			logger.Error("Internal Server Error (Unhandled)",
				"error", err,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"stack_trace", string(debug.Stack()),
			)
		case code >= http.StatusInternalServerError:
			logger.Error("Request failed", "error", err, "status", code)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.Error("Failed to write error response", "error", err)
		}
	}
}
