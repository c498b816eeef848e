package model

import "errors"

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an account with the same internal user id already exists.
	ErrDuplicate = errors.New("duplicate internal user id")
	// ErrDatabaseLocked signals that the store stayed locked across all retry attempts.
	// Callers should treat it as "try again later", not as a logic error.
	ErrDatabaseLocked = errors.New("database locked")
	// ErrValidation covers bad input and hard-fail policy aborts.
	ErrValidation = errors.New("validation error")
)
