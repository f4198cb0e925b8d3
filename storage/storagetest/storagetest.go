// Package storagetest holds a behavioural suite shared by every
// storage.Repository backend.
package storagetest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productinfo/stitch-js-sdk/storage"
)

// Run exercises repo semantics against a fresh repository per subtest.
func Run(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	t.Helper()

	env := func(payload string, version uint64) *storage.Envelope {
		return storage.RawRecord([]byte(payload), version)
	}

	t.Run("PutGet", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		require.NoError(t, repo.Put(ctx, "app-1", "USER", "u1", env("one", 0)))

		got, err := repo.Get(ctx, "app-1", "USER", "u1")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), got.Ciphertext)
		assert.Equal(t, storage.SchemeRaw, got.Scheme)

		require.NoError(t, repo.Put(ctx, "app-1", "USER", "u1", env("two", 0)))
		got, err = repo.Get(ctx, "app-1", "USER", "u1")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got.Ciphertext)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		_, err := repo.Get(ctx, "missing", "USER", "u1")
		assert.True(t, errors.Is(err, storage.ErrNamespaceNotFound) || errors.Is(err, storage.ErrNotFound), "got %v", err)

		require.NoError(t, repo.Put(ctx, "app-1", "USER", "u1", env("one", 0)))
		_, err = repo.Get(ctx, "app-1", "USER", "u2")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("NamespaceIsolation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		require.NoError(t, repo.Put(ctx, "app-1", "USER", "u1", env("one", 0)))
		require.NoError(t, repo.Put(ctx, "app-2", "USER", "u1", env("other", 0)))

		got, err := repo.Get(ctx, "app-1", "USER", "u1")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), got.Ciphertext)

		ids, err := repo.List(ctx, "app-2", "USER")
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, ids)
	})

	t.Run("List", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		require.NoError(t, repo.Put(ctx, "app-1", "USER", "u2", env("b", 0)))
		require.NoError(t, repo.Put(ctx, "app-1", "USER", "u1", env("a", 0)))
		require.NoError(t, repo.Put(ctx, "app-1", "INDEX", "current", env("i", 0)))

		ids, err := repo.List(ctx, "app-1", "USER")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"u1", "u2"}, ids)

		ids, err = repo.List(ctx, "nonexistent", "USER")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		require.NoError(t, repo.Put(ctx, "app-1", "USER", "u1", env("a", 0)))
		require.NoError(t, repo.Put(ctx, "app-1", "USER", "u2", env("b", 0)))
		require.NoError(t, repo.Delete(ctx, "app-1", "USER", "u1"))

		_, err := repo.Get(ctx, "app-1", "USER", "u1")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		err = repo.Delete(ctx, "app-1", "USER", "u1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("PutCAS", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()

		require.NoError(t, repo.PutCAS(ctx, "app-1", "INDEX", "current", 0, env("v1", 1)))
		assert.ErrorIs(t, repo.PutCAS(ctx, "app-1", "INDEX", "current", 0, env("v1", 1)), storage.ErrCASFailed)
		assert.ErrorIs(t, repo.PutCAS(ctx, "app-1", "INDEX", "other", 1, env("v1", 1)), storage.ErrCASFailed)

		require.NoError(t, repo.PutCAS(ctx, "app-1", "INDEX", "current", 1, env("v2", 2)))
		assert.ErrorIs(t, repo.PutCAS(ctx, "app-1", "INDEX", "current", 1, env("stale", 2)), storage.ErrCASFailed)

		got, err := repo.Get(ctx, "app-1", "INDEX", "current")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), got.Version)
		assert.Equal(t, []byte("v2"), got.Ciphertext)
	})

	t.Run("BatchCommit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		require.NoError(t, repo.Put(ctx, "app-1", "USER", "gone", env("x", 0)))

		err := repo.Batch(ctx, "app-1", func(tx storage.BatchTx) error {
			if err := tx.Put("USER", "u1", env("a", 0)); err != nil {
				return err
			}
			if err := tx.Delete("USER", "gone"); err != nil {
				return err
			}
			return tx.PutCAS("INDEX", "current", 0, env("i", 1))
		})
		require.NoError(t, err)

		ids, err := repo.List(ctx, "app-1", "USER")
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, ids)
		_, err = repo.Get(ctx, "app-1", "INDEX", "current")
		assert.NoError(t, err)
	})

	t.Run("BatchRollback", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()
		require.NoError(t, repo.PutCAS(ctx, "app-1", "INDEX", "current", 0, env("i", 1)))

		err := repo.Batch(ctx, "app-1", func(tx storage.BatchTx) error {
			if err := tx.Put("USER", "u1", env("a", 0)); err != nil {
				return err
			}
			return tx.PutCAS("INDEX", "current", 5, env("i", 6))
		})
		require.ErrorIs(t, err, storage.ErrCASFailed)

		_, err = repo.Get(ctx, "app-1", "USER", "u1")
		assert.ErrorIs(t, err, storage.ErrNotFound, "writes before the failed CAS must roll back")

		got, err := repo.Get(ctx, "app-1", "INDEX", "current")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), got.Version)
	})
}
