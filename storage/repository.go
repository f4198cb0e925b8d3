// Package storage provides the durable storage abstraction for persisted
// session state.
//
// Records are addressed by (namespace, recordType, recordID). A namespace is
// the identity of one installed application; every backend keeps namespaces
// fully isolated from each other.
package storage

import "context"

// BatchTx provides writes within an atomic transaction.
// The namespace is scoped to the batch, so methods don't require it.
type BatchTx interface {
	Put(recordType string, recordID string, envelope *Envelope) error
	PutCAS(recordType string, recordID string, expectedVersion uint64, envelope *Envelope) error
	Delete(recordType string, recordID string) error
}

// Repository defines the interface for durable record storage.
//
// PutCAS with expectedVersion 0 is create-only. Batch commits all writes made
// through the BatchTx or none of them.
type Repository interface {
	Put(ctx context.Context, namespace string, recordType string, recordID string, envelope *Envelope) error
	Get(ctx context.Context, namespace string, recordType string, recordID string) (*Envelope, error)
	Delete(ctx context.Context, namespace string, recordType string, recordID string) error
	List(ctx context.Context, namespace string, recordType string) ([]string, error)
	PutCAS(ctx context.Context, namespace string, recordType string, recordID string, expectedVersion uint64, envelope *Envelope) error
	Batch(ctx context.Context, namespace string, fn func(tx BatchTx) error) error
}
