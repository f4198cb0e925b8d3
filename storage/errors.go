package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist in its namespace.
	ErrNotFound = errors.New("record not found")
	// ErrNamespaceNotFound is returned when no record exists under a namespace.
	ErrNamespaceNotFound = errors.New("namespace not found")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)
