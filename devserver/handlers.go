package devserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/productinfo/stitch-js-sdk/internal/util"
	"github.com/productinfo/stitch-js-sdk/internal/uuid"
	"github.com/productinfo/stitch-js-sdk/session"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 128
)

// authenticated is the outcome of checking a provider's login material.
type authenticated struct {
	identity session.Identity
	userType session.UserType
	data     map[string]string
}

// Login handles provider login, and linking when ?link=true is given.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	providerType, ok := s.providers[name]
	if !ok {
		writeError(w, http.StatusNotFound, codeAuthProviderNotFound, "auth provider not found: "+name)
		return
	}
	req, ok := decodeJSON[LoginRequest](w, r)
	if !ok {
		return
	}

	authn, ok := s.authenticate(w, r, providerType, req)
	if !ok {
		return
	}
	if r.URL.Query().Get("link") == "true" {
		s.link(w, r, authn)
		return
	}

	u, created := s.users.resolve(authn.identity, authn.userType, authn.data)
	sess, refresh, err := s.users.openSession(u.id, req.Options.Device.DeviceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeUnknown, "opening session")
		return
	}
	access, err := s.mintAccess(sess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeUnknown, "issuing access token")
		return
	}
	s.logins.WithLabelValues(providerType, "ok").Inc()
	s.audit.log(AuditLoginSuccess, r, u.id,
		slog.String("provider_type", providerType),
		slog.Bool("created", created),
		slog.String("device_id", sess.deviceID))
	writeJSON(w, http.StatusOK, LoginResponse{
		UserID:       u.id,
		DeviceID:     sess.deviceID,
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

// authenticate checks req against the provider and writes the error
// response itself when the material is rejected.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, providerType string, req LoginRequest) (authenticated, bool) {
	fail := func(status int, code, reason string) (authenticated, bool) {
		s.logins.WithLabelValues(providerType, "error").Inc()
		s.audit.logFailure(AuditLoginFailure, r, reason, slog.String("provider_type", providerType))
		writeError(w, status, code, reason)
		return authenticated{}, false
	}

	switch providerType {
	case providerAnonymous:
		return authenticated{
			identity: session.Identity{ID: uuid.New(), ProviderType: providerAnonymous},
			userType: session.UserTypeAnonymous,
		}, true

	case providerUserPassword:
		username := util.NormalizeUsername(req.Username)
		if username == "" || req.Password == "" {
			return fail(http.StatusBadRequest, codeInvalidParameter, "username and password are required")
		}
		ip := clientIP(r)
		if blocked, retryAfter := s.ipLimiter.check(ip); blocked {
			s.audit.logFailure(AuditLoginRateLimited, r, "ip rate limited", slog.String("client_ip", ip))
			writeRateLimited(w, retryAfter)
			return authenticated{}, false
		}
		if blocked, retryAfter := s.accountLimiter.check(username); blocked {
			s.audit.logFailure(AuditLoginRateLimited, r, "account rate limited")
			writeRateLimited(w, retryAfter)
			return authenticated{}, false
		}
		match, err := s.users.verify(username, req.Password, s.passwords)
		if err != nil || !match {
			s.ipLimiter.recordFailure(ip)
			s.accountLimiter.recordFailure(username)
			return fail(http.StatusUnauthorized, codeInvalidPassword, "invalid username/password")
		}
		s.ipLimiter.recordSuccess(ip)
		s.accountLimiter.recordSuccess(username)
		return authenticated{
			identity: session.Identity{ID: username, ProviderType: providerUserPassword},
			userType: session.UserTypeNormal,
			data:     map[string]string{"email": username},
		}, true

	case providerCustom:
		claims, err := s.verifyCustom(req.Token)
		if err != nil {
			return fail(http.StatusUnauthorized, codeInvalidSession, "invalid custom token")
		}
		return authenticated{
			identity: session.Identity{ID: claims.Subject, ProviderType: providerCustom},
			userType: session.UserTypeNormal,
			data:     claims.Data,
		}, true
	}
	return fail(http.StatusNotFound, codeAuthProviderNotFound, "unsupported provider type")
}

func (s *Server) link(w http.ResponseWriter, r *http.Request, authn authenticated) {
	claims, err := s.verifyAccess(bearerToken(r))
	if err != nil {
		writeInvalidSession(w)
		return
	}
	u, err := s.users.link(claims.Subject, authn.identity)
	switch {
	case errors.Is(err, errIdentityInUse):
		s.audit.logFailure(AuditLinkFailure, r, err.Error(), slog.String("user_id", claims.Subject))
		writeError(w, http.StatusConflict, codeIdentityInUse, err.Error())
		return
	case err != nil:
		writeInvalidSession(w)
		return
	}

	sess := &serverSession{id: claims.SessionID, userID: u.id}
	access, err := s.mintAccess(sess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeUnknown, "issuing access token")
		return
	}
	s.audit.log(AuditLink, r, u.id, slog.String("provider_type", authn.identity.ProviderType))
	writeJSON(w, http.StatusOK, LoginResponse{UserID: u.id, AccessToken: access})
}

// Profile returns the caller's profile.
func (s *Server) Profile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	p, ok := s.users.user(claims.Subject)
	if !ok {
		writeInvalidSession(w)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RefreshSession issues a new access token for the refresh token in the
// Authorization header.
func (s *Server) RefreshSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.users.session(bearerToken(r))
	if err != nil {
		writeInvalidSession(w)
		return
	}
	access, err := s.mintAccess(sess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeUnknown, "issuing access token")
		return
	}
	s.audit.log(AuditSessionRefreshed, r, sess.userID)
	writeJSON(w, http.StatusCreated, RefreshResponse{AccessToken: access})
}

// InvalidateSession revokes the refresh token in the Authorization header
// and every access token issued from it.
func (s *Server) InvalidateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.users.closeSession(bearerToken(r))
	if err != nil {
		writeInvalidSession(w)
		return
	}
	s.audit.log(AuditSessionRevoked, r, sess.userID)
	w.WriteHeader(http.StatusNoContent)
}

// Register creates a user/password account. Logging in creates the user.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.providers[providerUserPassword]; !ok {
		writeError(w, http.StatusNotFound, codeAuthProviderNotFound, "auth provider not found: "+providerUserPassword)
		return
	}
	req, ok := decodeJSON[RegisterRequest](w, r)
	if !ok {
		return
	}
	username := util.NormalizeUsername(req.Email)
	if username == "" {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "email is required")
		return
	}
	if n := len(req.Password); n < minPasswordLen || n > maxPasswordLen {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "password must be between 6 and 128 characters")
		return
	}
	err := s.users.register(username, s.passwords, req.Password)
	switch {
	case errors.Is(err, errAccountExists):
		writeError(w, http.StatusConflict, codeAccountNameInUse, "name already in use")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, codeUnknown, "registering account")
		return
	}
	s.audit.log(AuditRegister, r, "")
	w.WriteHeader(http.StatusCreated)
}

// CallFunction runs a registered function as the caller.
func (s *Server) CallFunction(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	req, ok := decodeJSON[FunctionCallRequest](w, r)
	if !ok {
		return
	}
	fn, ok := s.functions[req.Name]
	if !ok {
		writeError(w, http.StatusNotFound, codeFunctionNotFound, "function not found: '"+req.Name+"'")
		return
	}
	p, ok := s.users.user(claims.Subject)
	if !ok {
		writeInvalidSession(w)
		return
	}
	result, err := fn(r.Context(), Caller{UserID: p.UserID, UserType: p.Type, Identities: p.Identities}, req.Arguments)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeFunctionExecution, err.Error())
		return
	}
	s.audit.log(AuditFunctionCalled, r, claims.Subject, slog.String("function", req.Name))
	writeJSON(w, http.StatusOK, result)
}
