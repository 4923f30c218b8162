package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorlink/tutorlink/internal/config"
)

func newTestJWTService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(&config.JWTConfig{
		SecretKey:    "0123456789abcdef0123456789abcdef",
		AccessExpiry: 15 * time.Minute,
	}, testLogger())
	require.NoError(t, err)
	return svc
}

func TestGenerateAndVerifyAccessToken(t *testing.T) {
	svc := newTestJWTService(t)

	token, expiresIn, err := svc.GenerateAccessToken("+85291234567")
	require.NoError(t, err)
	assert.Equal(t, int64(900), expiresIn)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "+85291234567", claims.Phone)
	assert.Equal(t, "access", claims.Type)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyTokenRejectsTampering(t *testing.T) {
	svc := newTestJWTService(t)

	token, _, err := svc.GenerateAccessToken("+85291234567")
	require.NoError(t, err)

	_, err = svc.VerifyToken(token + "x")
	assert.Error(t, err)

	_, err = svc.VerifyToken("not-a-jwt")
	assert.Error(t, err)
}

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	_, err := NewJWTService(&config.JWTConfig{SecretKey: "short"}, testLogger())
	assert.Error(t, err)
}
