package session

import "errors"

var (
	// ErrUnknownUser indicates the user id is not in the store.
	ErrUnknownUser = errors.New("unknown user")
	// ErrDuplicateUser indicates an append of a user id that is already stored.
	ErrDuplicateUser = errors.New("duplicate user")
	// ErrConcurrentWriter indicates the persisted index changed underneath this
	// store, usually because another process opened the same namespace.
	ErrConcurrentWriter = errors.New("session store modified by another writer")
	// ErrCorruptState indicates persisted state that violates store invariants.
	ErrCorruptState = errors.New("corrupt session state")
)
