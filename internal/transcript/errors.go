package transcript

import "errors"

// Sentinel errors for transcript operations, checked with errors.Is().
var (
	// ErrEmptySession indicates an empty session identifier.
	ErrEmptySession = errors.New("empty session id")

	// ErrInvalidRole indicates a role outside the persistable set.
	// Notably the system preamble must never reach the store.
	ErrInvalidRole = errors.New("invalid role")
)
