// Package devserver is a small in-memory implementation of the backend's
// client API. It serves the login, link, profile, session and function
// routes the client package talks to, and is meant for local development,
// demos and end-to-end tests.
package devserver

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-openapi/runtime/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/productinfo/stitch-js-sdk/internal/util"
)

// DefaultAccessTokenTTL is how long issued access tokens stay valid.
const DefaultAccessTokenTTL = 30 * time.Minute

// Provider types served by the dev server.
const (
	providerAnonymous    = "anon-user"
	providerUserPassword = "local-userpass"
	providerCustom       = "custom-token"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Server holds the dev server's state. It is safe for concurrent use.
type Server struct {
	appID      string
	signingKey []byte
	customKey  []byte
	accessTTL  time.Duration
	passwords  util.Argon2idParams
	now        func() time.Time

	providers map[string]string // provider name -> provider type
	functions map[string]Function
	users     *directory

	accountLimiter *failureLimiter
	ipLimiter      *failureLimiter

	logger   *slog.Logger
	audit    *auditLogger
	gatherer prometheus.Gatherer
	logins   *prometheus.CounterVec
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger. Default: JSON handler on stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSigningKey sets the HS256 key for access tokens. Default: a random key.
func WithSigningKey(key []byte) Option {
	return func(s *Server) {
		s.signingKey = util.CopyBytes(key)
	}
}

// WithCustomTokenKey enables the custom-token provider, accepting HS256
// tokens signed with key whose audience is the app id.
func WithCustomTokenKey(key []byte) Option {
	return func(s *Server) {
		s.customKey = util.CopyBytes(key)
	}
}

// WithAccessTokenTTL sets the lifetime of issued access tokens.
func WithAccessTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.accessTTL = d
		}
	}
}

// WithPasswordParams sets the argon2id parameters for stored passwords.
func WithPasswordParams(p util.Argon2idParams) Option {
	return func(s *Server) {
		s.passwords = p
	}
}

// WithClock replaces time.Now for token issuance and rate limiting.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithFunction registers fn under name, replacing any builtin of that name.
func WithFunction(name string, fn Function) Option {
	return func(s *Server) {
		s.functions[name] = fn
	}
}

// WithProvider exposes a provider of providerType under name in addition to
// the defaults.
func WithProvider(name, providerType string) Option {
	return func(s *Server) {
		s.providers[name] = providerType
	}
}

// WithMetrics registers the server's collectors with reg and serves the
// registry on /metrics.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.gatherer = reg
		reg.MustRegister(s.logins)
	}
}

// New returns a Server hosting appID.
func New(appID string, opts ...Option) (*Server, error) {
	s := &Server{
		appID:     appID,
		accessTTL: DefaultAccessTokenTTL,
		passwords: util.DefaultArgon2idParams(),
		now:       time.Now,
		providers: map[string]string{
			providerAnonymous:    providerAnonymous,
			providerUserPassword: providerUserPassword,
			providerCustom:       providerCustom,
		},
		functions: builtinFunctions(),
		users:     newDirectory(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stitch",
			Subsystem: "devserver",
			Name:      "logins_total",
			Help:      "Provider logins by provider type and result.",
		}, []string{"provider", "result"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	s.logger = s.logger.With("component", "devserver")
	s.audit = newAuditLogger(s.logger)
	if len(s.signingKey) == 0 {
		key, err := util.RandomBytes(32)
		if err != nil {
			return nil, err
		}
		s.signingKey = key
	}
	s.accountLimiter = newFailureLimiter(accountMaxFailures, accountBaseLockout, accountMaxLockout, s.now)
	s.ipLimiter = newFailureLimiter(ipMaxFailures, ipBaseLockout, ipMaxLockout, s.now)
	return s, nil
}

// AppID returns the hosted application id.
func (s *Server) AppID() string { return s.appID }

// Handler returns the full HTTP handler: client API routes, API docs, and
// /metrics when enabled.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/client/v2.0/app/{appId}", func(r chi.Router) {
		r.Use(s.requireApp)
		r.Post("/auth/providers/local-userpass/register", s.Register)
		r.Post("/auth/providers/{provider}/login", s.Login)
		r.With(s.requireAccess).Get("/auth/profile", s.Profile)
		r.Post("/auth/session", s.RefreshSession)
		r.Delete("/auth/session", s.InvalidateSession)
		r.With(s.requireAccess).Post("/functions/call", s.CallFunction)
	})
	return r
}

func appIDParam(r *http.Request) string {
	return chi.URLParam(r, "appId")
}
