package security

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))

	token, exp, err := Generate(opts, "u42")
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	sub, err := Verify(opts, token)
	require.NoError(t, err)
	assert.Equal(t, "u42", sub)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, _, err := Generate(DefaultOptions([]byte("right")), "u1")
	require.NoError(t, err)

	_, err = Verify(DefaultOptions([]byte("wrong")), token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	secret := []byte("s")
	now := time.Now()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "u1",
		"iat": now.Add(-2 * time.Hour).Unix(),
		"exp": now.Add(-time.Hour).Unix(),
	})
	signed, err := tok.SignedString(secret)
	require.NoError(t, err)

	_, err = Verify(DefaultOptions(secret), signed)
	assert.Error(t, err)
}

func TestUnsupportedAlg(t *testing.T) {
	_, _, err := Generate(Options{Secret: []byte("s"), Alg: "RS256"}, "u1")
	assert.Error(t, err)
}
