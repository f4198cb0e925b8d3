package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/productinfo/stitch-js-sdk/internal/codec"
	icrypto "github.com/productinfo/stitch-js-sdk/internal/crypto"
	"github.com/productinfo/stitch-js-sdk/storage"
)

const (
	recordTypeUser  = "USER"
	recordTypeIndex = "INDEX"
	indexRecordID   = "current"

	indexVer = 1
	aadVer   = 1
)

// index is the durable ordering of user ids plus the active pointer.
type index struct {
	Ver    int      `cbor:"ver"`
	Order  []string `cbor:"order"`
	Active string   `cbor:"active,omitempty"`
}

func (s *Store) load(ctx context.Context) error {
	env, err := s.repo.Get(ctx, s.namespace, recordTypeIndex, indexRecordID)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNamespaceNotFound) {
		return s.sweep(ctx, nil)
	}
	if err != nil {
		return fmt.Errorf("loading session index: %w", err)
	}

	var idx index
	if err := s.open(env, recordTypeIndex, indexRecordID, &idx); err != nil {
		return fmt.Errorf("%w: index: %v", ErrCorruptState, err)
	}
	if idx.Ver != indexVer {
		return fmt.Errorf("%w: unsupported index version %d", ErrCorruptState, idx.Ver)
	}

	st := state{records: make([]Record, 0, len(idx.Order))}
	seen := make(map[string]struct{}, len(idx.Order))
	for _, userID := range idx.Order {
		if _, dup := seen[userID]; dup {
			return fmt.Errorf("%w: user %s listed twice", ErrCorruptState, userID)
		}
		seen[userID] = struct{}{}

		recEnv, err := s.repo.Get(ctx, s.namespace, recordTypeUser, userID)
		if err != nil {
			return fmt.Errorf("%w: loading user %s: %v", ErrCorruptState, userID, err)
		}
		var rec Record
		if err := s.open(recEnv, recordTypeUser, userID, &rec); err != nil {
			return fmt.Errorf("%w: user %s: %v", ErrCorruptState, userID, err)
		}
		if rec.UserID != userID {
			return fmt.Errorf("%w: record %s holds user %s", ErrCorruptState, userID, rec.UserID)
		}
		st.records = append(st.records, rec)
	}
	if idx.Active != "" {
		if _, ok := seen[idx.Active]; !ok {
			return fmt.Errorf("%w: active user %s is not stored", ErrCorruptState, idx.Active)
		}
	}
	st.active = idx.Active

	s.st = st
	s.version = env.Version
	return s.sweep(ctx, seen)
}

// sweep deletes user records the index does not reference.
func (s *Store) sweep(ctx context.Context, keep map[string]struct{}) error {
	ids, err := s.repo.List(ctx, s.namespace, recordTypeUser)
	if err != nil {
		return fmt.Errorf("listing user records: %w", err)
	}
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			continue
		}
		if err := s.repo.Delete(ctx, s.namespace, recordTypeUser, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("deleting orphaned user %s: %w", id, err)
		}
	}
	return nil
}

// persist writes the changed records and the new index in one batch. The
// index write is a CAS on the version this store last committed.
func (s *Store) persist(ctx context.Context, tx *Tx) error {
	next := s.version + 1
	idxEnv, err := s.seal(recordTypeIndex, indexRecordID, index{
		Ver:    indexVer,
		Order:  tx.st.order(),
		Active: tx.st.active,
	}, next)
	if err != nil {
		return err
	}

	writes := make(map[string]*storage.Envelope, len(tx.dirty))
	for _, userID := range slices.Sorted(maps.Keys(tx.dirty)) {
		rec, _ := tx.Get(userID)
		env, err := s.seal(recordTypeUser, userID, rec, 0)
		if err != nil {
			return err
		}
		writes[userID] = env
	}

	err = s.repo.Batch(ctx, s.namespace, func(btx storage.BatchTx) error {
		for userID := range tx.removed {
			if err := btx.Delete(recordTypeUser, userID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
		}
		for userID, env := range writes {
			if err := btx.Put(recordTypeUser, userID, env); err != nil {
				return err
			}
		}
		return btx.PutCAS(recordTypeIndex, indexRecordID, s.version, idxEnv)
	})
	if errors.Is(err, storage.ErrCASFailed) {
		return fmt.Errorf("%w: namespace %s", ErrConcurrentWriter, s.namespace)
	}
	if err != nil {
		return fmt.Errorf("persisting session state: %w", err)
	}
	return nil
}

func (s *Store) seal(recordType, recordID string, v any, version uint64) (*storage.Envelope, error) {
	payload, err := codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s/%s: %w", recordType, recordID, err)
	}
	if s.recordKey == nil {
		return storage.RawRecord(payload, version), nil
	}

	keyBuf, err := s.recordKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening record key: %w", err)
	}
	defer keyBuf.Destroy()

	aad := icrypto.RecordAAD(s.namespace, recordType, recordID, aadVer)
	return storage.SealRecord(keyBuf.Bytes(), payload, aad, version)
}

func (s *Store) open(env *storage.Envelope, recordType, recordID string, v any) error {
	var key []byte
	if s.recordKey != nil {
		keyBuf, err := s.recordKey.Open()
		if err != nil {
			return fmt.Errorf("opening record key: %w", err)
		}
		defer keyBuf.Destroy()
		key = keyBuf.Bytes()
	}

	payload, err := storage.OpenRecord(key, env, icrypto.RecordAAD(s.namespace, recordType, recordID, aadVer))
	if err != nil {
		return err
	}
	return codec.Unmarshal(payload, v)
}
