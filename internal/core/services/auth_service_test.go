package services

import (
	"context"
	"testing"
	"time"

	"vinyl/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_IssueAndValidate(t *testing.T) {
	auth := NewAuthService("secret", time.Hour, 24*time.Hour)

	pair, err := auth.IssueSession("Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", pair.Username)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	claims, err := auth.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, pair.UserID, claims.UserID)
	assert.Equal(t, domain.Session{User: pair.UserID, Username: "alice"}, claims.Session())

	_, err = auth.ValidateToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh tokens are not access tokens")

	refreshed, err := auth.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.UserID, refreshed.UserID)
	assert.NotEmpty(t, refreshed.AccessToken)
}

func TestAuthService_Rejections(t *testing.T) {
	auth := NewAuthService("secret", time.Hour, time.Hour)

	_, err := auth.IssueSession("a b")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = auth.ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewAuthService("other-secret", time.Hour, time.Hour)
	token, err := other.GenerateToken("u1", "bob")
	require.NoError(t, err)
	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewAuthService("secret", -time.Minute, time.Hour)
	token, err = expired.GenerateToken("u1", "bob")
	require.NoError(t, err)
	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestSessionContext(t *testing.T) {
	_, err := SessionFromContext(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)

	ctx := WithSession(context.Background(), domain.Session{User: "u1", Username: "bob"})
	s, err := SessionFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), s.User)
}
