package broker

import "errors"

var (
	// ErrAuthStreamEmpty is returned when a connection closes or aborts
	// before its Auth message completes.
	ErrAuthStreamEmpty = errors.New("broker: connection closed before Auth message finished")

	// ErrClientStateMissing indicates an internal bookkeeping bug: a
	// connection was authorized but its role-assignment state vanished.
	ErrClientStateMissing = errors.New("broker: client state missing after authorization")
)
