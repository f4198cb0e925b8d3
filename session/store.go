// Package session implements the durable, ordered store of locally known
// users and the pointer to the active one.
//
// Records keep first-login order for their whole lifetime: appends go to the
// tail, replacements happen in place and nothing is ever reordered. Every
// mutation is written to the backing storage.Repository before the in-memory
// view changes, so a reopened Store observes exactly the last committed
// state.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"

	icrypto "github.com/productinfo/stitch-js-sdk/internal/crypto"
	"github.com/productinfo/stitch-js-sdk/internal/util"
	"github.com/productinfo/stitch-js-sdk/storage"
)

// Option configures a Store.
type Option func(*options)

type options struct {
	masterKey []byte
}

// WithEncryptionKey seals persisted records with AES-256-GCM under a key
// derived from masterKey and the namespace. masterKey must be 32 bytes.
func WithEncryptionKey(masterKey []byte) Option {
	return func(o *options) {
		o.masterKey = masterKey
	}
}

// Store is the session store for one namespace. It is safe for concurrent
// use; mutations are serialised and reads observe committed snapshots.
type Store struct {
	repo      storage.Repository
	namespace string
	recordKey *memguard.Enclave

	mu      sync.RWMutex
	st      state
	version uint64
}

// Open rehydrates the store for namespace from repo.
func Open(ctx context.Context, repo storage.Repository, namespace string, opts ...Option) (*Store, error) {
	if namespace == "" {
		return nil, fmt.Errorf("session store: namespace is required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{repo: repo, namespace: namespace}
	if o.masterKey != nil {
		key, err := icrypto.DeriveStoreKey(o.masterKey, namespace)
		if err != nil {
			return nil, fmt.Errorf("deriving store key: %w", err)
		}
		s.recordKey = memguard.NewEnclave(key)
		util.WipeBytes(key)
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Namespace returns the namespace this store persists under.
func (s *Store) Namespace() string {
	return s.namespace
}

// List returns the records in first-login order.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.clone().records
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.records)
}

// Get returns a copy of the record for userID.
func (s *Store) Get(userID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.st.find(userID)
	if i < 0 {
		return Record{}, false
	}
	return s.st.records[i].Clone(), true
}

// ActiveUserID returns the active user id, or "" when no user is active.
func (s *Store) ActiveUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.active
}

// Active returns a copy of the active record.
func (s *Store) Active() (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.st.active == "" {
		return Record{}, false
	}
	return s.st.records[s.st.find(s.st.active)].Clone(), true
}

// Append adds rec at the tail. It fails with ErrDuplicateUser if the user id
// is already stored.
func (s *Store) Append(ctx context.Context, rec Record) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.Append(rec) })
}

// Replace mutates the record for userID in place. It fails with
// ErrUnknownUser if the user id is not stored.
func (s *Store) Replace(ctx context.Context, userID string, mutate func(*Record)) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.Replace(userID, mutate) })
}

// Remove deletes the record for userID and clears the active pointer if it
// was active.
func (s *Store) Remove(ctx context.Context, userID string) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.Remove(userID) })
}

// SetActive sets the active user; "" clears it.
func (s *Store) SetActive(ctx context.Context, userID string) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.SetActive(userID) })
}

// Update runs fn against a copy of the current state. If fn returns nil the
// resulting state is persisted atomically and then committed; otherwise
// nothing changes.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s.st)
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.modified {
		return nil
	}
	if err := s.persist(ctx, tx); err != nil {
		return err
	}
	s.st = tx.st
	s.version++
	return nil
}
