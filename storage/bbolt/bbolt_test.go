package bbolt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productinfo/stitch-js-sdk/storage"
	"github.com/productinfo/stitch-js-sdk/storage/storagetest"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	return s
}

func TestBBoltStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		s := newTestStore(t, filepath.Join(t.TempDir(), "sessions.db"))
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestBBoltStorageSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := t.Context()

	s := newTestStore(t, path)
	require.NoError(t, s.PutCAS(ctx, "app-1", "INDEX", "current", 0, storage.RawRecord([]byte("idx"), 1)))
	require.NoError(t, s.Close())

	s = newTestStore(t, path)
	defer s.Close()
	got, err := s.Get(ctx, "app-1", "INDEX", "current")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Version)
	assert.Equal(t, []byte("idx"), got.Ciphertext)
}

func TestBBoltDeleteMissingNamespace(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "sessions.db"))
	defer s.Close()
	err := s.Delete(t.Context(), "nope", "USER", "u1")
	assert.ErrorIs(t, err, storage.ErrNamespaceNotFound)
}
