package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/productinfo/stitch-js-sdk/session"
)

// LoginWithCredential logs in with cred and makes the resulting user active.
//
// A user id already stored locally is logged in again in place: its tokens
// and provider fields are replaced and it keeps its position and device id.
// A new user id is appended. Credentials that reuse existing sessions
// resume a logged-in user of the same provider type without a network call.
func (a *Auth) LoginWithCredential(ctx context.Context, cred Credential) (user User, err error) {
	var events eventLog
	defer func() { a.dispatch(events) }()
	defer func() { a.metrics.observeOperation("login", err) }()

	if err := a.lock(ctx); err != nil {
		return User{}, err
	}
	defer a.unlock()

	prevActive := a.store.ActiveUserID()

	if r, ok := cred.(SessionReuser); ok && r.ReusesExistingSession() {
		if rec, ok := a.reusableSession(cred.ProviderType()); ok {
			if err := a.store.SetActive(ctx, rec.UserID); err != nil {
				return User{}, err
			}
			events.activeChanged(prevActive, rec.UserID)
			a.audit.log(ctx, AuditSessionReused, rec.UserID, providerAttrs(cred)...)
			return newUser(rec, rec.UserID), nil
		}
	}

	ex, err := a.client.ExchangeCredential(ctx, cred, a.installationDeviceID())
	if err != nil {
		a.audit.logFailure(ctx, AuditLoginFailure, "", err, providerAttrs(cred)...)
		return User{}, fmt.Errorf("login: %w", err)
	}

	profile, err := a.client.FetchProfile(ctx, ex.AccessToken)
	if err != nil {
		a.invalidate(context.WithoutCancel(ctx), ex.UserID, ex.RefreshToken)
		a.audit.logFailure(ctx, AuditLoginFailure, ex.UserID, err, providerAttrs(cred)...)
		return User{}, fmt.Errorf("login: fetching profile: %w", err)
	}

	now := a.now()
	existed := false
	err = a.store.Update(ctx, func(tx *session.Tx) error {
		if _, ok := tx.Get(ex.UserID); ok {
			existed = true
			err := tx.Replace(ex.UserID, func(r *session.Record) {
				r.AccessToken = ex.AccessToken
				r.RefreshToken = ex.RefreshToken
				r.LoggedInProviderType = cred.ProviderType()
				r.LoggedInProviderName = cred.ProviderName()
				if r.DeviceID == "" {
					r.DeviceID = ex.DeviceID
				}
				if profile.Data != nil {
					r.Profile.Data = profile.Data
				}
				r.LastAuthActivity = now
			})
			if err != nil {
				return err
			}
		} else {
			err := tx.Append(session.Record{
				UserID:               ex.UserID,
				DeviceID:             ex.DeviceID,
				AccessToken:          ex.AccessToken,
				RefreshToken:         ex.RefreshToken,
				LoggedInProviderType: cred.ProviderType(),
				LoggedInProviderName: cred.ProviderName(),
				Profile:              profile,
				LastAuthActivity:     now,
			})
			if err != nil {
				return err
			}
		}
		return tx.SetActive(ex.UserID)
	})
	if err != nil {
		// The server session can no longer be reached through local state.
		a.invalidate(context.WithoutCancel(ctx), ex.UserID, ex.RefreshToken)
		return User{}, fmt.Errorf("login: %w", err)
	}

	if existed {
		a.audit.log(ctx, AuditRelogin, ex.UserID, providerAttrs(cred)...)
	} else {
		events.add(EventUserAdded, ex.UserID)
		a.audit.log(ctx, AuditLogin, ex.UserID, providerAttrs(cred)...)
	}
	events.add(EventUserLoggedIn, ex.UserID)
	events.activeChanged(prevActive, ex.UserID)

	rec, _ := a.store.Get(ex.UserID)
	return newUser(rec, ex.UserID), nil
}

// reusableSession finds a logged-in user of providerType, preferring the
// active user.
func (a *Auth) reusableSession(providerType string) (session.Record, bool) {
	matches := func(r session.Record) bool {
		return r.LoggedIn() && r.LoggedInProviderType == providerType
	}
	if rec, ok := a.store.Active(); ok && matches(rec) {
		return rec, true
	}
	for _, rec := range a.store.List() {
		if matches(rec) {
			return rec, true
		}
	}
	return session.Record{}, false
}

// LinkWithCredential binds the identity behind cred to userID, which must be
// the active user. On success the identity is appended to the user's
// profile and an anonymous user becomes a normal user.
func (a *Auth) LinkWithCredential(ctx context.Context, userID string, cred Credential) (user User, err error) {
	var events eventLog
	defer func() { a.dispatch(events) }()
	defer func() { a.metrics.observeOperation("link", err) }()

	if err := a.lock(ctx); err != nil {
		return User{}, err
	}
	defer a.unlock()

	rec, ok := a.store.Get(userID)
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if a.store.ActiveUserID() != userID {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotActive, userID)
	}
	if !rec.LoggedIn() {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotLoggedIn, userID)
	}

	ex, err := a.client.LinkCredential(ctx, rec.AccessToken, cred)
	if err != nil {
		a.audit.logFailure(ctx, AuditLinkFailure, userID, err, providerAttrs(cred)...)
		return User{}, fmt.Errorf("link: %w", err)
	}
	if ex.UserID != "" && ex.UserID != userID {
		err := fmt.Errorf("%w: linked to %s, expected %s", ErrLinkedUserMismatch, ex.UserID, userID)
		a.audit.logFailure(ctx, AuditLinkFailure, userID, err, providerAttrs(cred)...)
		return User{}, err
	}

	accessToken := rec.AccessToken
	if ex.AccessToken != "" {
		accessToken = ex.AccessToken
	}
	profile, err := a.client.FetchProfile(ctx, accessToken)
	if err != nil {
		a.audit.logFailure(ctx, AuditLinkFailure, userID, err, providerAttrs(cred)...)
		return User{}, fmt.Errorf("link: fetching profile: %w", err)
	}

	now := a.now()
	var added int
	err = a.store.Replace(ctx, userID, func(r *session.Record) {
		r.AccessToken = accessToken
		if ex.RefreshToken != "" {
			r.RefreshToken = ex.RefreshToken
		}
		r.LoggedInProviderType = cred.ProviderType()
		r.LoggedInProviderName = cred.ProviderName()
		added = r.Profile.AddIdentities(profile.Identities...)
		if profile.Data != nil {
			r.Profile.Data = profile.Data
		}
		if r.Profile.UserType == session.UserTypeAnonymous && cred.ProviderType() != ProviderTypeAnonymous {
			r.Profile.UserType = session.UserTypeNormal
		}
		r.LastAuthActivity = now
	})
	if err != nil {
		return User{}, fmt.Errorf("link: %w", err)
	}

	events.add(EventUserLinked, userID)
	a.audit.log(ctx, AuditLink, userID, append(providerAttrs(cred), slog.Int("identities_added", added))...)

	rec, _ = a.store.Get(userID)
	return newUser(rec, userID), nil
}
