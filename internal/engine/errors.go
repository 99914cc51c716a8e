package engine

import "errors"

// Sentinel errors surfaced by engine operations. The transport layer maps
// them onto status codes with errors.Is.
var (
	// ErrNotFound means the id has no corresponding record.
	ErrNotFound = errors.New("not found")

	// ErrWrongState means a task transition guard rejected the call.
	ErrWrongState = errors.New("wrong state")

	// ErrNotOwner means a task mutation was attempted by an agent other
	// than the assigned one.
	ErrNotOwner = errors.New("not owner")

	// ErrProviderUnavailable means a required external provider is
	// unconfigured or unreachable.
	ErrProviderUnavailable = errors.New("provider unavailable")
)
