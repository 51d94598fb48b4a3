package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrEmptyMessage   = errors.New("message must not be empty")
	ErrMessageTooLong = errors.New("message exceeds 4096 bytes")
	ErrInvalidKind    = errors.New("invalid kind: must be info, success, warning, or error")
	ErrDuplicateID    = errors.New("an active item with this id already exists")
	ErrEmptyPayload   = errors.New("payload is empty")
)
