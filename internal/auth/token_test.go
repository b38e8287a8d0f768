package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRoundTrip(t *testing.T) {
	v := NewValidator("secret", "auth-service")
	token, err := v.Sign("alice", time.Minute)
	require.NoError(t, err)

	user, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
}

func TestValidateExpired(t *testing.T) {
	v := NewValidator("secret", "")
	token, err := v.Sign("alice", -time.Minute)
	require.NoError(t, err)

	_, err = v.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateWrongSecret(t *testing.T) {
	token, err := NewValidator("other", "").Sign("alice", time.Minute)
	require.NoError(t, err)

	_, err = NewValidator("secret", "").Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateWrongIssuer(t *testing.T) {
	token, err := NewValidator("secret", "someone-else").Sign("alice", time.Minute)
	require.NoError(t, err)

	_, err = NewValidator("secret", "auth-service").Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateFallsBackToSubject(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "bob", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	user, err := NewValidator("secret", "").Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "bob", user)
}

func TestValidateRejectsMissingIdentity(t *testing.T) {
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewValidator("secret", "").Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateGarbage(t *testing.T) {
	_, err := NewValidator("secret", "").Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
