package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"plantguard.io/leaf-doctor/internal/config"
)

func withSecret(t *testing.T, secret string) {
	t.Helper()
	prev := config.AppConfig
	config.AppConfig.JWTSecret = secret
	t.Cleanup(func() { config.AppConfig = prev })
}

func TestJWTRoundTrip(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateJWT("alice", "sess-1")
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestValidateJWTRejectsWrongSecret(t *testing.T) {
	withSecret(t, "one")
	token, err := GenerateJWT("alice", "sess-1")
	require.NoError(t, err)

	config.AppConfig.JWTSecret = "two"
	_, err = ValidateJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateJWTRejectsExpiredAndIncomplete(t *testing.T) {
	withSecret(t, "test-secret")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SessionID: "s",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = ValidateJWT(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSession := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
	})
	signed, err = noSession.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = ValidateJWT(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ValidateJWT("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}
