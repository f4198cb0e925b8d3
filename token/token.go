// Package token decodes bearer access tokens far enough to read their
// expiry. Signatures are not verified; the issuer does that.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed matches every MalformedTokenError.
var ErrMalformed = errors.New("malformed token")

// MalformedTokenError reports an encoded token that could not be decoded.
type MalformedTokenError struct {
	Reason string
	Err    error
}

func (e *MalformedTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed token: %s: %v", e.Reason, e.Err)
	}
	return "malformed token: " + e.Reason
}

func (e *MalformedTokenError) Unwrap() error { return e.Err }

func (e *MalformedTokenError) Is(target error) bool { return target == ErrMalformed }

// Token is an immutable decoded access token.
type Token struct {
	Encoded   string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresAtEpochSeconds returns the expiry as seconds since the Unix epoch.
func (t Token) ExpiresAtEpochSeconds() int64 {
	return t.ExpiresAt.Unix()
}

// ExpiresWithin reports whether the token expires at or before now+window.
func (t Token) ExpiresWithin(now time.Time, window time.Duration) bool {
	return !now.Before(t.ExpiresAt.Add(-window))
}

// Decoder turns an encoded token into a Token.
type Decoder interface {
	Decode(encoded string) (Token, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(encoded string) (Token, error)

func (f DecoderFunc) Decode(encoded string) (Token, error) { return f(encoded) }

// JWT decodes JSON Web Tokens.
var JWT Decoder = DecoderFunc(Decode)

var parser = jwt.NewParser()

// Decode reads the claims of an encoded JWT without verifying its signature.
// A token without an exp claim is malformed.
func Decode(encoded string) (Token, error) {
	if encoded == "" {
		return Token{}, &MalformedTokenError{Reason: "empty token"}
	}
	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(encoded, &claims); err != nil {
		return Token{}, &MalformedTokenError{Reason: "decode", Err: err}
	}
	if claims.ExpiresAt == nil {
		return Token{}, &MalformedTokenError{Reason: "missing exp claim"}
	}
	t := Token{
		Encoded:   encoded,
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		t.IssuedAt = claims.IssuedAt.Time
	}
	return t, nil
}
