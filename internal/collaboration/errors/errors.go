package errors

import "errors"

var (
	ErrNotFound = errors.New("record not found")

	ErrAlreadyExists = errors.New("record already exists")

	// ErrStaleVersion means the record changed since it was read.
	ErrStaleVersion = errors.New("record version is stale")

	// ErrTransient wraps store failures that may succeed on retry.
	ErrTransient = errors.New("store temporarily unavailable")

	ErrContention = errors.New("too much contention on key")

	ErrInvalidID = errors.New("invalid identifier")
)
