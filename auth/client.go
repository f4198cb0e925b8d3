package auth

import (
	"context"

	"github.com/productinfo/stitch-js-sdk/session"
)

// Exchange is the result of presenting a credential to the backend.
// RefreshToken and DeviceID may be empty for link exchanges.
type Exchange struct {
	UserID       string
	DeviceID     string
	AccessToken  string
	RefreshToken string
}

// Client performs the network calls Auth depends on. Implementations must
// return errors that let callers tell backend rejections apart from
// transport failures, and should match ErrInvalidSession when the backend
// rejects an access token.
type Client interface {
	// ExchangeCredential logs in with cred. deviceID is the installation's
	// device id, or "" on first login.
	ExchangeCredential(ctx context.Context, cred Credential, deviceID string) (Exchange, error)
	// LinkCredential binds the identity behind cred to the user that owns
	// accessToken.
	LinkCredential(ctx context.Context, accessToken string, cred Credential) (Exchange, error)
	// FetchProfile returns the profile of the user that owns accessToken.
	FetchProfile(ctx context.Context, accessToken string) (session.Profile, error)
	// Refresh exchanges a refresh token for a new access token.
	Refresh(ctx context.Context, refreshToken string) (string, error)
	// Invalidate ends the server-side session of refreshToken.
	Invalidate(ctx context.Context, refreshToken string) error
}
