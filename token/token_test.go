package token_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productinfo/stitch-js-sdk/token"
)

func sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestDecode(t *testing.T) {
	exp := time.Unix(1_900_000_000, 0)
	iat := time.Unix(1_899_998_200, 0)
	encoded := sign(t, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(iat),
	})

	tok, err := token.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, tok.Encoded)
	assert.Equal(t, "user-1", tok.Subject)
	assert.Equal(t, int64(1_900_000_000), tok.ExpiresAtEpochSeconds())
	assert.True(t, iat.Equal(tok.IssuedAt))
}

func TestDecodeExpiredTokenStillDecodes(t *testing.T) {
	encoded := sign(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Unix(1000, 0))})
	tok, err := token.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), tok.ExpiresAtEpochSeconds())
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"garbage":     "not-a-jwt",
		"bad base64":  "a.b.c",
		"missing exp": sign(t, jwt.RegisteredClaims{Subject: "user-1"}),
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := token.Decode(encoded)
			require.Error(t, err)
			assert.ErrorIs(t, err, token.ErrMalformed)

			var mte *token.MalformedTokenError
			assert.True(t, errors.As(err, &mte))
		})
	}
}

func TestExpiresWithin(t *testing.T) {
	exp := time.Unix(10_000, 0)
	tok := token.Token{ExpiresAt: exp}
	window := 300 * time.Second

	assert.False(t, tok.ExpiresWithin(exp.Add(-301*time.Second), window))
	assert.True(t, tok.ExpiresWithin(exp.Add(-300*time.Second), window), "boundary refreshes")
	assert.True(t, tok.ExpiresWithin(exp.Add(time.Hour), window))
}

func TestDecoderFunc(t *testing.T) {
	var d token.Decoder = token.DecoderFunc(func(string) (token.Token, error) {
		return token.Token{Subject: "fixed"}, nil
	})
	tok, err := d.Decode("anything")
	require.NoError(t, err)
	assert.Equal(t, "fixed", tok.Subject)
}
