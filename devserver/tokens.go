package devserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/productinfo/stitch-js-sdk/internal/uuid"
)

const issuer = "stitch-devserver"

var errSessionRevoked = errors.New("session revoked")

type accessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// customClaims is what an external authority puts in a custom-token login.
type customClaims struct {
	jwt.RegisteredClaims
	Data map[string]string `json:"stitch_meta,omitempty"`
}

func (s *Server) mintAccess(sess *serverSession) (string, error) {
	now := s.now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sess.userID,
			Audience:  jwt.ClaimStrings{s.appID},
			ID:        uuid.New(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
		SessionID: sess.id,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

func (s *Server) verifyAccess(raw string) (*accessClaims, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(s.appID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !s.users.sessionActive(claims.SessionID) {
		return nil, errSessionRevoked
	}
	return claims, nil
}

func (s *Server) verifyCustom(raw string) (*customClaims, error) {
	if len(s.customKey) == 0 {
		return nil, errors.New("custom token provider is not configured")
	}
	claims := &customClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.customKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(s.appID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("custom token has no subject")
	}
	return claims, nil
}

// SignCustomToken issues a token the custom-token provider accepts, for
// tests and local tooling.
func SignCustomToken(key []byte, appID, subject string, data map[string]string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{appID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Data: data,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
