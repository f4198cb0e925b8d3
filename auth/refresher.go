package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithInterval sets the time between checks.
func WithInterval(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithWindow sets how close to expiry a token must be to get refreshed.
func WithWindow(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d >= 0 {
			r.window = d
		}
	}
}

// Refresher proactively refreshes the active user's access token shortly
// before it expires. Each tick refreshes at most once and waits for that
// refresh to finish before scheduling the next tick. Failures are logged and
// retried on the next tick.
type Refresher struct {
	auth     *Auth
	interval time.Duration
	window   time.Duration
	logger   *slog.Logger

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewRefresher returns a stopped Refresher for a.
func NewRefresher(a *Auth, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		auth:     a,
		interval: DefaultRefreshInterval,
		window:   DefaultExpirationWindow,
		logger:   a.logger.With("component", "refresher"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the refresh loop in a new goroutine until ctx is done, Stop is
// called, or the Auth is closed. Only the first Start or Run has effect.
func (r *Refresher) Start(ctx context.Context) {
	if r.running.CompareAndSwap(false, true) {
		go r.run(ctx)
	}
}

// Run runs the refresh loop on the calling goroutine.
func (r *Refresher) Run(ctx context.Context) {
	if r.running.CompareAndSwap(false, true) {
		r.run(ctx)
	}
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	timer := time.NewTimer(r.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !r.Tick(ctx) {
			return
		}
		timer.Reset(r.interval)
	}
}

// Tick performs one check and reports whether the loop should continue.
func (r *Refresher) Tick(ctx context.Context) bool {
	if r.auth.closed.Load() {
		return false
	}
	attempted, err := r.auth.refreshIfNeeded(ctx, r.window)
	switch {
	case err == nil:
		if attempted {
			r.logger.Debug("access token refreshed")
		}
	case ctx.Err() != nil:
		return false
	case errors.Is(err, ErrClosed):
		return false
	default:
		r.logger.Warn("proactive token refresh failed", "error", err)
	}
	return true
}

// Stop ends the loop and waits for an in-flight tick to finish. It is safe
// to call more than once and before Start.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	if r.running.Load() {
		<-r.done
	}
}
