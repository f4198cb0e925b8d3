// Package auth manages the users logged in on one application installation.
//
// Auth is the only writer of its session.Store. Every mutating operation
// holds a single write slot for its whole read, network, persist sequence,
// so concurrent logins, links, logouts and refreshes apply one at a time in
// arrival order. Reads never wait for network calls; they see the last
// committed state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/productinfo/stitch-js-sdk/session"
	"github.com/productinfo/stitch-js-sdk/token"
)

// Auth is the multi-user authentication state machine.
type Auth struct {
	client    Client
	store     *session.Store
	decoder   token.Decoder
	logger    *slog.Logger
	audit     *auditLogger
	metrics   *Metrics
	listeners []Listener
	now       func() time.Time

	refreshInterval  time.Duration
	expirationWindow time.Duration
	noRefresher      bool
	refresher        *Refresher

	writer chan struct{}
	closed atomic.Bool
}

// New returns an Auth over store that talks to the backend through client.
// Unless WithoutRefresher is given, a background Refresher is started and
// runs until Close.
func New(client Client, store *session.Store, opts ...Option) *Auth {
	a := &Auth{
		client:           client,
		store:            store,
		decoder:          token.JWT,
		now:              time.Now,
		refreshInterval:  DefaultRefreshInterval,
		expirationWindow: DefaultExpirationWindow,
		writer:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.audit = newAuditLogger(a.logger)
	a.reportUsers()

	if !a.noRefresher {
		a.refresher = NewRefresher(a,
			WithInterval(a.refreshInterval),
			WithWindow(a.expirationWindow),
		)
		a.refresher.Start(context.Background())
	}
	return a
}

// Close stops the background refresher. Further mutating calls fail with
// ErrClosed; reads keep working.
func (a *Auth) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	if a.refresher != nil {
		a.refresher.Stop()
	}
	return nil
}

// lock acquires the write slot, waiting in arrival order until it is free
// or ctx is done.
func (a *Auth) lock(ctx context.Context) error {
	if a.closed.Load() {
		return ErrClosed
	}
	select {
	case a.writer <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if a.closed.Load() {
		a.unlock()
		return ErrClosed
	}
	return nil
}

func (a *Auth) unlock() {
	<-a.writer
}

func (a *Auth) dispatch(events eventLog) {
	if len(events) == 0 {
		return
	}
	a.reportUsers()
	for _, ev := range events {
		for _, l := range a.listeners {
			l(ev)
		}
	}
}

func (a *Auth) reportUsers() {
	if a.metrics == nil {
		return
	}
	in, out := 0, 0
	for _, rec := range a.store.List() {
		if rec.LoggedIn() {
			in++
		} else {
			out++
		}
	}
	a.metrics.setUsers(in, out)
}

// ListUsers returns every locally known user in first-login order.
func (a *Auth) ListUsers() []User {
	active := a.store.ActiveUserID()
	records := a.store.List()
	users := make([]User, len(records))
	for i, rec := range records {
		users[i] = newUser(rec, active)
	}
	return users
}

// CurrentUser returns the active user.
func (a *Auth) CurrentUser() (User, bool) {
	rec, ok := a.store.Active()
	if !ok {
		return User{}, false
	}
	return newUser(rec, rec.UserID), true
}

// IsLoggedIn reports whether there is an active, logged-in user.
func (a *Auth) IsLoggedIn() bool {
	rec, ok := a.store.Active()
	return ok && rec.LoggedIn()
}

// UserWithID returns the user with the given id.
func (a *Auth) UserWithID(userID string) (User, error) {
	rec, ok := a.store.Get(userID)
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return newUser(rec, a.store.ActiveUserID()), nil
}

// SwitchToUserWithID makes userID the active user without any network call.
// Switching to the already active user is a no-op.
func (a *Auth) SwitchToUserWithID(ctx context.Context, userID string) (user User, err error) {
	var events eventLog
	defer func() { a.dispatch(events) }()
	defer func() { a.metrics.observeOperation("switch", err) }()

	if err := a.lock(ctx); err != nil {
		return User{}, err
	}
	defer a.unlock()

	rec, ok := a.store.Get(userID)
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if !rec.LoggedIn() {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotLoggedIn, userID)
	}
	prev := a.store.ActiveUserID()
	if prev == userID {
		return newUser(rec, userID), nil
	}
	if err := a.store.SetActive(ctx, userID); err != nil {
		return User{}, err
	}
	events.activeChanged(prev, userID)
	a.audit.log(ctx, AuditSwitch, userID, slog.String("previous_user_id", prev))
	return newUser(rec, userID), nil
}

// invalidate ends a server session, logging rather than returning failures.
func (a *Auth) invalidate(ctx context.Context, userID, refreshToken string) {
	if refreshToken == "" {
		return
	}
	if err := a.client.Invalidate(ctx, refreshToken); err != nil {
		a.audit.logFailure(ctx, AuditInvalidateFailed, userID, err)
	}
}

// installationDeviceID returns the device id this installation already has,
// preferring the active user's.
func (a *Auth) installationDeviceID() string {
	if rec, ok := a.store.Active(); ok && rec.DeviceID != "" {
		return rec.DeviceID
	}
	for _, rec := range a.store.List() {
		if rec.DeviceID != "" {
			return rec.DeviceID
		}
	}
	return ""
}

// IsInvalidSession reports whether err means the backend rejected the
// access token.
func IsInvalidSession(err error) bool {
	return errors.Is(err, ErrInvalidSession)
}
