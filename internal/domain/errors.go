package domain

import "errors"

// Sentinel errors for the chat core. Callers check them with errors.Is; the
// layers that produce them wrap with additional context.
var (
	// ErrAuthRejected means the credential presented at connection_init was
	// invalid or expired. Fatal to the connection.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrUnauthorized means a client issued an operation that requires a
	// completed handshake. Fatal to the connection.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDuplicateSubscription means the operation id (or the room) is already
	// bound to a live subscription on the same connection. Recoverable.
	ErrDuplicateSubscription = errors.New("duplicate subscription")

	// ErrInvalidMessage rejects a single send call.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrPersistenceFailure is surfaced to the sender when the message store
	// fails. The dispatcher never retries.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrSlowConsumer drops the one connection whose outbound queue overflowed.
	ErrSlowConsumer = errors.New("slow consumer")

	// ErrInitTimeout closes a connection that never completed its handshake.
	ErrInitTimeout = errors.New("connection initialisation timeout")

	// ErrTooManyInitRequests closes a connection that sent connection_init twice.
	ErrTooManyInitRequests = errors.New("too many initialisation requests")

	// ErrBadFrame closes a connection that sent an unparseable or unknown frame.
	ErrBadFrame = errors.New("bad frame")

	// ErrShuttingDown closes every connection when the server stops.
	ErrShuttingDown = errors.New("server shutting down")

	// ErrNotFound is returned by repositories for missing records.
	ErrNotFound = errors.New("requested resource not found")
)

// Close codes used on the WebSocket transport. The 44xx range mirrors the
// graphql-transport-ws conventions clients already understand.
const (
	CloseNormal           = 1000
	CloseGoingAway        = 1001
	ClosePolicyViolation  = 1008
	CloseInternalError    = 1011
	CloseBadRequest       = 4400
	CloseUnauthorized     = 4401
	CloseForbidden        = 4403
	CloseInitTimeout      = 4408
	CloseTooManyInitCalls = 4429
)

// CloseCodeFor maps a fatal error to a transport close code.
func CloseCodeFor(err error) int {
	switch {
	case err == nil:
		return CloseNormal
	case errors.Is(err, ErrAuthRejected):
		return CloseForbidden
	case errors.Is(err, ErrUnauthorized):
		return CloseUnauthorized
	case errors.Is(err, ErrInitTimeout):
		return CloseInitTimeout
	case errors.Is(err, ErrTooManyInitRequests):
		return CloseTooManyInitCalls
	case errors.Is(err, ErrBadFrame):
		return CloseBadRequest
	case errors.Is(err, ErrSlowConsumer):
		return ClosePolicyViolation
	case errors.Is(err, ErrShuttingDown):
		return CloseGoingAway
	default:
		return CloseInternalError
	}
}
