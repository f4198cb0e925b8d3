package auth

import (
	"log/slog"
	"time"

	"github.com/productinfo/stitch-js-sdk/token"
)

const (
	// DefaultRefreshInterval is how often the refresher checks the active token.
	DefaultRefreshInterval = 60 * time.Second
	// DefaultExpirationWindow is how long before expiry a token is refreshed.
	DefaultExpirationWindow = 300 * time.Second
)

// Option configures an Auth.
type Option func(*Auth)

// WithLogger sets the structured logger. Default: JSON handler on stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Auth) {
		a.logger = logger
	}
}

// WithDecoder sets the access token decoder. Default: token.JWT.
func WithDecoder(d token.Decoder) Option {
	return func(a *Auth) {
		a.decoder = d
	}
}

// WithClock replaces time.Now for expiry checks and activity timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Auth) {
		a.now = now
	}
}

// WithListener registers a listener for committed auth events.
func WithListener(l Listener) Option {
	return func(a *Auth) {
		a.listeners = append(a.listeners, l)
	}
}

// WithMetrics reports operations to m.
func WithMetrics(m *Metrics) Option {
	return func(a *Auth) {
		a.metrics = m
	}
}

// WithRefreshInterval sets how often the background refresher runs.
func WithRefreshInterval(d time.Duration) Option {
	return func(a *Auth) {
		a.refreshInterval = d
	}
}

// WithExpirationWindow sets how close to expiry a token must be before the
// refresher renews it.
func WithExpirationWindow(d time.Duration) Option {
	return func(a *Auth) {
		a.expirationWindow = d
	}
}

// WithoutRefresher disables the background refresher. Callers can still
// refresh with RefreshAccessToken or run their own Refresher.
func WithoutRefresher() Option {
	return func(a *Auth) {
		a.noRefresher = true
	}
}
