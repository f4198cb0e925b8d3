package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/productinfo/stitch-js-sdk/session"
)

const (
	triggerManual    = "manual"
	triggerProactive = "proactive"
	triggerRetry     = "invalid_session"
)

// RefreshAccessToken exchanges the active user's refresh token for a new
// access token. Only the access token changes. On failure or cancellation
// the stored tokens are left as they were.
func (a *Auth) RefreshAccessToken(ctx context.Context) (err error) {
	defer func() { a.metrics.observeOperation("refresh", err) }()

	if err := a.lock(ctx); err != nil {
		return err
	}
	defer a.unlock()

	return a.refreshLocked(ctx, triggerManual)
}

func (a *Auth) refreshLocked(ctx context.Context, trigger string) (err error) {
	defer func() { a.metrics.observeRefresh(trigger, err) }()

	rec, ok := a.store.Active()
	if !ok {
		return ErrNotLoggedIn
	}
	if !rec.LoggedIn() {
		return fmt.Errorf("%w: %s", ErrUserNotLoggedIn, rec.UserID)
	}

	accessToken, err := a.client.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		a.audit.logFailure(ctx, AuditRefreshFailure, rec.UserID, err, slog.String("trigger", trigger))
		return fmt.Errorf("refreshing access token: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = a.store.Replace(ctx, rec.UserID, func(r *session.Record) {
		r.AccessToken = accessToken
	})
	if err != nil {
		return fmt.Errorf("refreshing access token: %w", err)
	}
	a.audit.log(ctx, AuditRefresh, rec.UserID, slog.String("trigger", trigger))
	return nil
}

// shouldRefresh reports whether the active user's access token is inside the
// expiration window. A token that cannot be decoded is never refreshed
// proactively.
func (a *Auth) shouldRefresh(window time.Duration) bool {
	if a.closed.Load() {
		return false
	}
	rec, ok := a.store.Active()
	if !ok || !rec.LoggedIn() {
		return false
	}
	tok, err := a.decoder.Decode(rec.AccessToken)
	if err != nil {
		a.logger.Debug("access token not decodable; skipping proactive refresh",
			"component", "auth", "user_id", rec.UserID, "error", err)
		return false
	}
	return tok.ExpiresWithin(a.now(), window)
}

// refreshIfNeeded refreshes the active token when it is close to expiry. It
// reports whether a refresh was attempted.
func (a *Auth) refreshIfNeeded(ctx context.Context, window time.Duration) (bool, error) {
	if err := a.lock(ctx); err != nil {
		return false, err
	}
	defer a.unlock()

	if !a.shouldRefresh(window) {
		return false, nil
	}
	return true, a.refreshLocked(ctx, triggerProactive)
}

// DoAuthenticated calls fn with the active user's access token. If fn fails
// with an error matching ErrInvalidSession, the token is refreshed and fn is
// called once more with the new token.
func (a *Auth) DoAuthenticated(ctx context.Context, fn func(ctx context.Context, accessToken string) error) error {
	rec, ok := a.store.Active()
	if !ok || !rec.LoggedIn() {
		return ErrNotLoggedIn
	}
	err := fn(ctx, rec.AccessToken)
	if !IsInvalidSession(err) {
		return err
	}

	if err := a.lock(ctx); err != nil {
		return err
	}
	current, ok := a.store.Active()
	switch {
	case !ok || current.UserID != rec.UserID:
		// The user changed underneath the call; the rejection stands.
	case current.AccessToken != rec.AccessToken:
		// Another caller already refreshed while we waited.
		err = nil
	default:
		err = a.refreshLocked(ctx, triggerRetry)
	}
	a.unlock()
	if err != nil {
		return err
	}

	rec, ok = a.store.Active()
	if !ok || !rec.LoggedIn() {
		return ErrNotLoggedIn
	}
	return fn(ctx, rec.AccessToken)
}
