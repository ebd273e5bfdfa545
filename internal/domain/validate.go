package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validatorInstance is shared so struct metadata is cached once.
var validatorInstance = validator.New()

// DefaultMaxMessageLength bounds a message body in runes when no limit is configured.
const DefaultMaxMessageLength = 4096

// SendRequest is the input of a send operation.
type SendRequest struct {
	SenderID    string `json:"-" validate:"required"`
	RecipientID string `json:"recipientId" validate:"required,nefield=SenderID"`
	Body        string `json:"body" validate:"required"`
}

// Validate checks the request against the given body limit. Violations wrap
// ErrInvalidMessage.
func (r SendRequest) Validate(maxLen int) error {
	if err := validatorInstance.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMessage, describe(err))
	}
	if strings.TrimSpace(r.Body) == "" {
		return fmt.Errorf("%w: body is blank", ErrInvalidMessage)
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	if err := validatorInstance.Var(r.Body, fmt.Sprintf("max=%d", maxLen)); err != nil {
		return fmt.Errorf("%w: body exceeds %d characters", ErrInvalidMessage, maxLen)
	}
	return nil
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return strings.ToLower(fe.Field()) + " is required"
	case "nefield":
		return "cannot send a message to yourself"
	default:
		return fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag())
	}
}
