package message

import "errors"

var (
	// ErrValidation rejects a request before any store mutation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound means no message exists with the given id.
	ErrNotFound = errors.New("message not found")

	// ErrForbidden means the actor is not a participant of the message's
	// conversation.
	ErrForbidden = errors.New("actor not authorized")
)
