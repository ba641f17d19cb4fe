package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSignerRoundTrip(t *testing.T) {
	signer, err := NewTokenSigner("secret", time.Hour)
	require.NoError(t, err)

	token, err := signer.Issue("session-123")
	require.NoError(t, err)

	id, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "session-123", id)
}

func TestTokenSignerRejectsTampering(t *testing.T) {
	signer, _ := NewTokenSigner("secret", time.Hour)
	other, _ := NewTokenSigner("other-secret", time.Hour)

	token, err := other.Issue("session-123")
	require.NoError(t, err)
	_, err = signer.Parse(token)
	assert.Error(t, err)

	_, err = signer.Parse("not-a-token")
	assert.Error(t, err)
}

func TestTokenSignerRejectsExpired(t *testing.T) {
	signer, _ := NewTokenSigner("secret", time.Hour)
	claims := jwt.RegisteredClaims{
		Subject:   "old",
		Issuer:    tokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = signer.Parse(token)
	assert.Error(t, err)
}

func TestTokenSignerRejectsNoneAlgorithm(t *testing.T) {
	signer, _ := NewTokenSigner("secret", time.Hour)
	claims := jwt.RegisteredClaims{
		Subject:   "x",
		Issuer:    tokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = signer.Parse(token)
	assert.Error(t, err)
}

func TestNewTokenSignerRequiresSecret(t *testing.T) {
	_, err := NewTokenSigner("", time.Hour)
	assert.Error(t, err)

	signer, err := NewTokenSigner("s", 0)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, signer.TTL())
}

func TestKeyLock(t *testing.T) {
	locks := newKeyLock()
	unlock, ok := locks.TryLock("a")
	require.True(t, ok)

	_, ok = locks.TryLock("a")
	assert.False(t, ok)
	other, ok := locks.TryLock("b")
	require.True(t, ok)
	other()

	unlock()
	unlock()
	again, ok := locks.TryLock("a")
	assert.True(t, ok)
	again()
}
