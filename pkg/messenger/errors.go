package messenger

import "errors"

var (
	// ErrTimeout is returned when a request was not acknowledged within the retry budget
	ErrTimeout = errors.New("delivery timeout")

	// ErrNotFound is reserved for address resolution failures
	ErrNotFound = errors.New("not found")

	ErrClosed         = errors.New("messenger closed")
	ErrAckPending     = errors.New("acknowledgment already pending for id")
	ErrInvalidCommand = errors.New("invalid command")
)
