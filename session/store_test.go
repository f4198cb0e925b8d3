package session_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productinfo/stitch-js-sdk/session"
	"github.com/productinfo/stitch-js-sdk/storage"
	"github.com/productinfo/stitch-js-sdk/storage/bbolt"
	"github.com/productinfo/stitch-js-sdk/storage/memory"
)

const ns = "app-1"

func rec(id string) session.Record {
	return session.Record{
		UserID:               id,
		DeviceID:             "device-1",
		AccessToken:          "access-" + id,
		RefreshToken:         "refresh-" + id,
		LoggedInProviderType: "local-userpass",
		LoggedInProviderName: "local-userpass",
		Profile: session.Profile{
			UserType:   session.UserTypeNormal,
			Identities: []session.Identity{{ID: "ident-" + id, ProviderType: "local-userpass"}},
			Data:       map[string]string{"email": id + "@example.com"},
		},
		LastAuthActivity: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func ids(records []session.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.UserID
	}
	return out
}

func openStore(t *testing.T, repo storage.Repository, opts ...session.Option) *session.Store {
	t.Helper()
	s, err := session.Open(t.Context(), repo, ns, opts...)
	require.NoError(t, err)
	return s
}

func TestAppendPreservesOrder(t *testing.T) {
	s := openStore(t, memory.NewRepository())
	ctx := t.Context()

	for _, id := range []string{"u3", "u1", "u2"} {
		require.NoError(t, s.Append(ctx, rec(id)))
	}
	assert.Equal(t, []string{"u3", "u1", "u2"}, ids(s.List()))
	assert.Equal(t, 3, s.Len())
	assert.Empty(t, s.ActiveUserID())

	err := s.Append(ctx, rec("u1"))
	assert.ErrorIs(t, err, session.ErrDuplicateUser)
	assert.Equal(t, []string{"u3", "u1", "u2"}, ids(s.List()))
}

func TestReplaceKeepsPosition(t *testing.T) {
	s := openStore(t, memory.NewRepository())
	ctx := t.Context()
	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, s.Append(ctx, rec(id)))
	}

	require.NoError(t, s.Replace(ctx, "u2", func(r *session.Record) {
		r.AccessToken = "new-access"
	}))
	assert.Equal(t, []string{"u1", "u2", "u3"}, ids(s.List()))
	got, ok := s.Get("u2")
	require.True(t, ok)
	assert.Equal(t, "new-access", got.AccessToken)
	assert.Equal(t, "refresh-u2", got.RefreshToken)

	err := s.Replace(ctx, "missing", func(*session.Record) {})
	assert.ErrorIs(t, err, session.ErrUnknownUser)

	err = s.Replace(ctx, "u2", func(r *session.Record) { r.UserID = "u9" })
	assert.Error(t, err)
	_, ok = s.Get("u9")
	assert.False(t, ok)
}

func TestActivePointer(t *testing.T) {
	s := openStore(t, memory.NewRepository())
	ctx := t.Context()
	require.NoError(t, s.Append(ctx, rec("u1")))
	require.NoError(t, s.Append(ctx, rec("u2")))

	assert.ErrorIs(t, s.SetActive(ctx, "missing"), session.ErrUnknownUser)

	require.NoError(t, s.SetActive(ctx, "u2"))
	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "u2", active.UserID)

	require.NoError(t, s.Remove(ctx, "u2"))
	assert.Empty(t, s.ActiveUserID(), "removing the active user clears the pointer")
	_, ok = s.Active()
	assert.False(t, ok)

	require.NoError(t, s.SetActive(ctx, "u1"))
	require.NoError(t, s.SetActive(ctx, ""))
	assert.Empty(t, s.ActiveUserID())

	assert.ErrorIs(t, s.Remove(ctx, "u2"), session.ErrUnknownUser)
}

func TestRemovedUserReappendsAtTail(t *testing.T) {
	s := openStore(t, memory.NewRepository())
	ctx := t.Context()
	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, s.Append(ctx, rec(id)))
	}
	require.NoError(t, s.Remove(ctx, "u1"))
	require.NoError(t, s.Append(ctx, rec("u1")))
	assert.Equal(t, []string{"u2", "u3", "u1"}, ids(s.List()))
}

func TestSnapshotsAreCopies(t *testing.T) {
	s := openStore(t, memory.NewRepository())
	require.NoError(t, s.Append(t.Context(), rec("u1")))

	list := s.List()
	list[0].AccessToken = "tampered"
	list[0].Profile.Identities[0].ID = "tampered"
	list[0].Profile.Data["email"] = "tampered"

	got, _ := s.Get("u1")
	assert.Equal(t, "access-u1", got.AccessToken)
	assert.Equal(t, "ident-u1", got.Profile.Identities[0].ID)
	assert.Equal(t, "u1@example.com", got.Profile.Data["email"])
}

func TestUpdateIsAtomic(t *testing.T) {
	repo := memory.NewRepository()
	s := openStore(t, repo)
	ctx := t.Context()
	require.NoError(t, s.Append(ctx, rec("u1")))

	boom := errors.New("boom")
	err := s.Update(ctx, func(tx *session.Tx) error {
		if err := tx.Append(rec("u2")); err != nil {
			return err
		}
		if err := tx.SetActive("u2"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"u1"}, ids(s.List()))
	assert.Empty(t, s.ActiveUserID())

	reopened := openStore(t, repo)
	assert.Equal(t, []string{"u1"}, ids(reopened.List()))
}

func TestUpdateMultipleOperations(t *testing.T) {
	repo := memory.NewRepository()
	s := openStore(t, repo)
	ctx := t.Context()
	require.NoError(t, s.Append(ctx, rec("u1")))

	err := s.Update(ctx, func(tx *session.Tx) error {
		if err := tx.Append(rec("u2")); err != nil {
			return err
		}
		if err := tx.Replace("u1", func(r *session.Record) { r.ClearTokens() }); err != nil {
			return err
		}
		return tx.SetActive("u2")
	})
	require.NoError(t, err)

	reopened := openStore(t, repo)
	assert.Equal(t, []string{"u1", "u2"}, ids(reopened.List()))
	assert.Equal(t, "u2", reopened.ActiveUserID())
	u1, _ := reopened.Get("u1")
	assert.False(t, u1.LoggedIn())
}

func TestRestartRehydratesExactly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := t.Context()

	repo, err := bbolt.NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	s := openStore(t, repo)
	for _, id := range []string{"anon", "alice", "bob"} {
		require.NoError(t, s.Append(ctx, rec(id)))
	}
	require.NoError(t, s.SetActive(ctx, "alice"))
	want := s.List()
	require.NoError(t, repo.Close())

	repo, err = bbolt.NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	defer repo.Close()
	reopened := openStore(t, repo)

	got := reopened.List()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].UserID, got[i].UserID)
		assert.Equal(t, want[i].AccessToken, got[i].AccessToken)
		assert.Equal(t, want[i].Profile, got[i].Profile)
		assert.True(t, want[i].LastAuthActivity.Equal(got[i].LastAuthActivity))
	}
	assert.Equal(t, "alice", reopened.ActiveUserID())
}

func TestNamespacesAreIsolated(t *testing.T) {
	repo := memory.NewRepository()
	ctx := t.Context()
	a, err := session.Open(ctx, repo, "app-a")
	require.NoError(t, err)
	b, err := session.Open(ctx, repo, "app-b")
	require.NoError(t, err)

	require.NoError(t, a.Append(ctx, rec("u1")))
	assert.Equal(t, 0, b.Len())
	require.NoError(t, b.Append(ctx, rec("u1")))

	_, err = session.Open(ctx, repo, "")
	assert.Error(t, err)
}

func TestEncryptedStore(t *testing.T) {
	repo := memory.NewRepository()
	ctx := t.Context()
	key := []byte("0123456789abcdef0123456789abcdef")

	s := openStore(t, repo, session.WithEncryptionKey(slices.Clone(key)))
	require.NoError(t, s.Append(ctx, rec("u1")))
	require.NoError(t, s.SetActive(ctx, "u1"))

	env, err := repo.Get(ctx, ns, "USER", "u1")
	require.NoError(t, err)
	assert.Equal(t, storage.SchemeAES256GCM, env.Scheme)
	assert.NotContains(t, string(env.Ciphertext), "refresh-u1")

	reopened := openStore(t, repo, session.WithEncryptionKey(slices.Clone(key)))
	assert.Equal(t, "u1", reopened.ActiveUserID())

	_, err = session.Open(ctx, repo, ns, session.WithEncryptionKey([]byte("ffffffffffffffffffffffffffffffff")))
	assert.ErrorIs(t, err, session.ErrCorruptState)

	_, err = session.Open(ctx, repo, ns)
	assert.ErrorIs(t, err, session.ErrCorruptState, "unkeyed reader must not open sealed records")

	_, err = session.Open(ctx, repo, ns, session.WithEncryptionKey([]byte("short")))
	assert.Error(t, err)
}

func TestSecondWriterIsDetected(t *testing.T) {
	repo := memory.NewRepository()
	ctx := t.Context()
	first := openStore(t, repo)
	second := openStore(t, repo)

	require.NoError(t, first.Append(ctx, rec("u1")))
	err := second.Append(ctx, rec("u2"))
	assert.ErrorIs(t, err, session.ErrConcurrentWriter)
	assert.Equal(t, 0, second.Len())

	reopened := openStore(t, repo)
	assert.Equal(t, []string{"u1"}, ids(reopened.List()))
}

type failingRepo struct {
	storage.Repository
	failBatch bool
}

func (f *failingRepo) Batch(ctx context.Context, namespace string, fn func(storage.BatchTx) error) error {
	if f.failBatch {
		return errors.New("disk full")
	}
	return f.Repository.Batch(ctx, namespace, fn)
}

func TestPersistFailureLeavesStateUnchanged(t *testing.T) {
	repo := &failingRepo{Repository: memory.NewRepository()}
	s := openStore(t, repo)
	ctx := t.Context()
	require.NoError(t, s.Append(ctx, rec("u1")))
	require.NoError(t, s.SetActive(ctx, "u1"))

	repo.failBatch = true
	assert.Error(t, s.Append(ctx, rec("u2")))
	assert.Error(t, s.Remove(ctx, "u1"))
	assert.Equal(t, []string{"u1"}, ids(s.List()))
	assert.Equal(t, "u1", s.ActiveUserID())

	repo.failBatch = false
	require.NoError(t, s.Append(ctx, rec("u2")), "version must not advance on a failed write")
}

func TestCorruptIndexIsRejected(t *testing.T) {
	repo := memory.NewRepository()
	ctx := t.Context()
	s := openStore(t, repo)
	require.NoError(t, s.Append(ctx, rec("u1")))

	require.NoError(t, repo.Delete(ctx, ns, "USER", "u1"))
	_, err := session.Open(ctx, repo, ns)
	assert.ErrorIs(t, err, session.ErrCorruptState)
}

func TestOrphanedRecordsAreSwept(t *testing.T) {
	repo := memory.NewRepository()
	ctx := t.Context()
	require.NoError(t, repo.Put(ctx, ns, "USER", "ghost", storage.RawRecord([]byte{0xa0}, 0)))

	s := openStore(t, repo)
	assert.Equal(t, 0, s.Len())
	_, err := repo.Get(ctx, ns, "USER", "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConcurrentMutations(t *testing.T) {
	s := openStore(t, memory.NewRepository())
	ctx := t.Context()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			id := fmt.Sprintf("u%02d", i)
			assert.NoError(t, s.Append(ctx, rec(id)))
			assert.NoError(t, s.SetActive(ctx, id))
			_ = s.List()
		})
	}
	wg.Wait()

	list := s.List()
	assert.Len(t, list, 20)
	seen := map[string]bool{}
	for _, r := range list {
		assert.False(t, seen[r.UserID])
		seen[r.UserID] = true
	}
	_, ok := s.Get(s.ActiveUserID())
	assert.True(t, ok)
}

// TestRandomOperationsKeepInvariants drives the store with random operations
// and checks it against a simple model after every step and after reopening.
func TestRandomOperationsKeepInvariants(t *testing.T) {
	repo := memory.NewRepository()
	s := openStore(t, repo)
	ctx := t.Context()
	rng := rand.New(rand.NewPCG(1, 2))

	var order []string
	active := ""
	pool := []string{"a", "b", "c", "d", "e"}

	for step := range 500 {
		id := pool[rng.IntN(len(pool))]
		present := slices.Contains(order, id)
		switch rng.IntN(4) {
		case 0:
			err := s.Append(ctx, rec(id))
			if present {
				require.ErrorIs(t, err, session.ErrDuplicateUser, "step %d", step)
			} else {
				require.NoError(t, err)
				order = append(order, id)
			}
		case 1:
			err := s.Remove(ctx, id)
			if !present {
				require.ErrorIs(t, err, session.ErrUnknownUser, "step %d", step)
			} else {
				require.NoError(t, err)
				order = slices.DeleteFunc(order, func(x string) bool { return x == id })
				if active == id {
					active = ""
				}
			}
		case 2:
			err := s.SetActive(ctx, id)
			if !present {
				require.ErrorIs(t, err, session.ErrUnknownUser, "step %d", step)
			} else {
				require.NoError(t, err)
				active = id
			}
		case 3:
			err := s.Replace(ctx, id, func(r *session.Record) { r.AccessToken = fmt.Sprint(step) })
			if !present {
				require.ErrorIs(t, err, session.ErrUnknownUser, "step %d", step)
			} else {
				require.NoError(t, err)
			}
		}

		got := ids(s.List())
		if len(order) == 0 {
			require.Empty(t, got, "step %d", step)
		} else {
			require.Equal(t, order, got, "step %d", step)
		}
		require.Equal(t, active, s.ActiveUserID(), "step %d", step)
	}

	reopened := openStore(t, repo)
	if len(order) > 0 {
		assert.Equal(t, order, ids(reopened.List()))
	}
	assert.Equal(t, active, reopened.ActiveUserID())
}
