package auth_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/productinfo/stitch-js-sdk/auth"
	"github.com/productinfo/stitch-js-sdk/session"
	"github.com/productinfo/stitch-js-sdk/storage"
	"github.com/productinfo/stitch-js-sdk/storage/memory"
)

var (
	errIdentityTaken = errors.New("identity already linked to another user")
	errBackendDown   = errors.New("backend unavailable")
)

// fakeClient is an in-memory backend with failure injection.
type fakeClient struct {
	mu sync.Mutex

	now      func() time.Time
	tokenTTL time.Duration

	seq        int
	identities map[string]string // identity key -> user id
	profiles   map[string]*session.Profile
	access     map[string]string // access token -> user id
	sessions   map[string]string // refresh token -> user id

	calls       map[string]int
	invalidated []string
	deviceIDs   []string

	exchangeErr   error
	profileErr    error
	linkErr       error
	refreshErr    error
	invalidateErr error

	// refreshGate, when set, blocks Refresh until closed or ctx is done.
	refreshGate chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		now:        time.Now,
		tokenTTL:   30 * time.Minute,
		identities: map[string]string{},
		profiles:   map[string]*session.Profile{},
		access:     map[string]string{},
		sessions:   map[string]string{},
		calls:      map[string]int{},
	}
}

func (f *fakeClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeClient) set(fn func(f *fakeClient)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeClient) mintAccess(userID string) string {
	f.seq++
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        fmt.Sprint(f.seq),
		ExpiresAt: jwt.NewNumericDate(f.now().Add(f.tokenTTL)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("fake"))
	if err != nil {
		panic(err)
	}
	f.access[tok] = userID
	return tok
}

func identityKey(cred auth.Credential, seq int) string {
	switch c := cred.(type) {
	case auth.UserPasswordCredential:
		return "userpass:" + c.Material()["username"].(string)
	case auth.CustomCredential:
		return "custom:" + c.Token
	default:
		return fmt.Sprintf("anon:%d", seq)
	}
}

func (f *fakeClient) ExchangeCredential(ctx context.Context, cred auth.Credential, deviceID string) (auth.Exchange, error) {
	if err := ctx.Err(); err != nil {
		return auth.Exchange{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["exchange"]++
	f.deviceIDs = append(f.deviceIDs, deviceID)
	if f.exchangeErr != nil {
		return auth.Exchange{}, f.exchangeErr
	}

	f.seq++
	key := identityKey(cred, f.seq)
	userID, ok := f.identities[key]
	if !ok {
		userID = fmt.Sprintf("user-%d", f.seq)
		f.identities[key] = userID
		userType := session.UserTypeNormal
		if cred.ProviderType() == auth.ProviderTypeAnonymous {
			userType = session.UserTypeAnonymous
		}
		f.profiles[userID] = &session.Profile{
			UserType:   userType,
			Identities: []session.Identity{{ID: key, ProviderType: cred.ProviderType()}},
			Data:       map[string]string{"key": key},
		}
	}
	if deviceID == "" {
		deviceID = fmt.Sprintf("device-%d", f.seq)
	}
	refresh := fmt.Sprintf("refresh-%s-%d", userID, f.seq)
	f.sessions[refresh] = userID
	return auth.Exchange{
		UserID:       userID,
		DeviceID:     deviceID,
		AccessToken:  f.mintAccess(userID),
		RefreshToken: refresh,
	}, nil
}

func (f *fakeClient) LinkCredential(ctx context.Context, accessToken string, cred auth.Credential) (auth.Exchange, error) {
	if err := ctx.Err(); err != nil {
		return auth.Exchange{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["link"]++
	if f.linkErr != nil {
		return auth.Exchange{}, f.linkErr
	}
	userID, ok := f.access[accessToken]
	if !ok {
		return auth.Exchange{}, auth.ErrInvalidSession
	}
	f.seq++
	key := identityKey(cred, f.seq)
	if owner, ok := f.identities[key]; ok && owner != userID {
		return auth.Exchange{}, errIdentityTaken
	}
	f.identities[key] = userID
	p := f.profiles[userID]
	p.AddIdentities(session.Identity{ID: key, ProviderType: cred.ProviderType()})
	if cred.ProviderType() != auth.ProviderTypeAnonymous {
		p.UserType = session.UserTypeNormal
	}
	return auth.Exchange{UserID: userID, AccessToken: f.mintAccess(userID)}, nil
}

func (f *fakeClient) FetchProfile(ctx context.Context, accessToken string) (session.Profile, error) {
	if err := ctx.Err(); err != nil {
		return session.Profile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["profile"]++
	if f.profileErr != nil {
		return session.Profile{}, f.profileErr
	}
	userID, ok := f.access[accessToken]
	if !ok {
		return session.Profile{}, auth.ErrInvalidSession
	}
	p := *f.profiles[userID]
	return session.Record{Profile: p}.Clone().Profile, nil
}

func (f *fakeClient) Refresh(ctx context.Context, refreshToken string) (string, error) {
	f.mu.Lock()
	gate := f.refreshGate
	if gate != nil {
		f.calls["refresh_wait"]++
	}
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["refresh"]++
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	userID, ok := f.sessions[refreshToken]
	if !ok {
		return "", auth.ErrInvalidSession
	}
	return f.mintAccess(userID), nil
}

func (f *fakeClient) Invalidate(ctx context.Context, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["invalidate"]++
	f.invalidated = append(f.invalidated, refreshToken)
	if f.invalidateErr != nil {
		return f.invalidateErr
	}
	delete(f.sessions, refreshToken)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	auth   *auth.Auth
	client *fakeClient
	repo   storage.Repository
	store  *session.Store
	events *eventRecorder
}

type eventRecorder struct {
	mu     sync.Mutex
	events []auth.Event
}

func (r *eventRecorder) listen(ev auth.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) take() []auth.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func newHarness(t *testing.T, opts ...auth.Option) *harness {
	t.Helper()
	repo := memory.NewRepository()
	return newHarnessWith(t, repo, newFakeClient(), opts...)
}

func newHarnessWith(t *testing.T, repo storage.Repository, client *fakeClient, opts ...auth.Option) *harness {
	t.Helper()
	store, err := session.Open(t.Context(), repo, "app-1")
	require.NoError(t, err)
	rec := &eventRecorder{}
	all := append([]auth.Option{
		auth.WithLogger(quietLogger()),
		auth.WithoutRefresher(),
		auth.WithListener(rec.listen),
	}, opts...)
	a := auth.New(client, store, all...)
	t.Cleanup(func() { a.Close() })
	return &harness{auth: a, client: client, repo: repo, store: store, events: rec}
}

func userIDs(users []auth.User) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

func alice() auth.UserPasswordCredential {
	return auth.UserPasswordCredential{Username: "alice@example.com", Password: "pw"}
}

func bob() auth.UserPasswordCredential {
	return auth.UserPasswordCredential{Username: "bob@example.com", Password: "pw"}
}
