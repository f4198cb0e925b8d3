package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/productinfo/stitch-js-sdk/session"
)

// Logout logs out the active user. With no active user it does nothing.
func (a *Auth) Logout(ctx context.Context) (err error) {
	var events eventLog
	defer func() { a.dispatch(events) }()
	defer func() { a.metrics.observeOperation("logout", err) }()

	if err := a.lock(ctx); err != nil {
		return err
	}
	defer a.unlock()

	userID := a.store.ActiveUserID()
	if userID == "" {
		return nil
	}
	return a.logoutLocked(ctx, userID, &events)
}

// LogoutUserWithID logs out userID. The server session is invalidated on a
// best-effort basis; local state changes regardless. Anonymous users are
// removed, others keep their record without tokens. If userID was active,
// no user is active afterwards.
func (a *Auth) LogoutUserWithID(ctx context.Context, userID string) (err error) {
	var events eventLog
	defer func() { a.dispatch(events) }()
	defer func() { a.metrics.observeOperation("logout", err) }()

	if err := a.lock(ctx); err != nil {
		return err
	}
	defer a.unlock()

	return a.logoutLocked(ctx, userID, &events)
}

func (a *Auth) logoutLocked(ctx context.Context, userID string, events *eventLog) error {
	rec, ok := a.store.Get(userID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	wasLoggedIn := rec.LoggedIn()
	if wasLoggedIn {
		a.invalidate(ctx, userID, rec.RefreshToken)
	}

	prevActive := a.store.ActiveUserID()
	err := a.store.Update(context.WithoutCancel(ctx), func(tx *session.Tx) error {
		if rec.Anonymous() {
			return tx.Remove(userID)
		}
		if wasLoggedIn {
			if err := tx.Replace(userID, func(r *session.Record) { r.ClearTokens() }); err != nil {
				return err
			}
		}
		if tx.ActiveUserID() == userID {
			return tx.SetActive("")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	if wasLoggedIn {
		events.add(EventUserLoggedOut, userID)
	}
	if rec.Anonymous() {
		events.add(EventUserRemoved, userID)
	}
	events.activeChanged(prevActive, a.store.ActiveUserID())
	a.audit.log(ctx, AuditLogout, userID, slog.Bool("removed", rec.Anonymous()))
	return nil
}

// RemoveUser removes the active user.
func (a *Auth) RemoveUser(ctx context.Context) (err error) {
	var events eventLog
	defer func() { a.dispatch(events) }()
	defer func() { a.metrics.observeOperation("remove", err) }()

	if err := a.lock(ctx); err != nil {
		return err
	}
	defer a.unlock()

	userID := a.store.ActiveUserID()
	if userID == "" {
		return ErrNotLoggedIn
	}
	return a.removeLocked(ctx, userID, &events)
}

// RemoveUserWithID invalidates the server session of userID on a best-effort
// basis and removes its record, logged in or not.
func (a *Auth) RemoveUserWithID(ctx context.Context, userID string) (err error) {
	var events eventLog
	defer func() { a.dispatch(events) }()
	defer func() { a.metrics.observeOperation("remove", err) }()

	if err := a.lock(ctx); err != nil {
		return err
	}
	defer a.unlock()

	return a.removeLocked(ctx, userID, &events)
}

func (a *Auth) removeLocked(ctx context.Context, userID string, events *eventLog) error {
	rec, ok := a.store.Get(userID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if rec.LoggedIn() {
		a.invalidate(ctx, userID, rec.RefreshToken)
	}

	prevActive := a.store.ActiveUserID()
	if err := a.store.Remove(context.WithoutCancel(ctx), userID); err != nil {
		return fmt.Errorf("remove: %w", err)
	}

	if rec.LoggedIn() {
		events.add(EventUserLoggedOut, userID)
	}
	events.add(EventUserRemoved, userID)
	events.activeChanged(prevActive, a.store.ActiveUserID())
	a.audit.log(ctx, AuditRemove, userID)
	return nil
}
