package auth

import (
	"context"
	"testing"
	"time"

	"firewatch/internal/scope"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, ttl time.Duration) *TokenManager {
	t.Helper()
	m, err := NewTokenManager([]byte("test-secret-test-secret-test-secret"), ttl, 0)
	require.NoError(t, err)
	return m
}

func TestIssueAndVerify(t *testing.T) {
	m := newTestManager(t, 0)
	granted := scope.FromGrants([]scope.Grant{{Category: "fire", Action: scope.ActionGet}})

	token, expires, err := m.Issue(42, granted)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), expires, 5*time.Second)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.True(t, claims.Scope.Allows("fire", scope.ActionGet))
	assert.False(t, claims.Scope.Allows("fire", scope.ActionDelete))
	require.NotNil(t, claims.IssuedAt)
	require.NotNil(t, claims.ExpiresAt)
}

func TestVerifyRejections(t *testing.T) {
	m := newTestManager(t, time.Hour)

	t.Run("expired", func(t *testing.T) {
		past := newTestManager(t, time.Minute)
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, _, err := past.Issue(1, nil)
		require.NoError(t, err)

		_, err = m.Verify(token)
		require.Error(t, err)
		assert.Equal(t, "expired", FailureReason(err))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenManager([]byte("another-secret-another-secret-xx"), time.Hour, 0)
		require.NoError(t, err)
		token, _, err := other.Issue(1, nil)
		require.NoError(t, err)

		_, err = m.Verify(token)
		require.Error(t, err)
		assert.Equal(t, "signature", FailureReason(err))
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(m.secret)
		require.NoError(t, err)

		_, err = m.Verify(token)
		require.Error(t, err)
	})

	t.Run("missing expiry", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: 1}).SignedString(m.secret)
		require.NoError(t, err)

		_, err = m.Verify(token)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Verify("not.a.token")
		require.Error(t, err)
		assert.Equal(t, "malformed", FailureReason(err))
	})
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	_, err := NewTokenManager(nil, time.Hour, 0)
	assert.Error(t, err)
}

func TestClaimsContext(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{UserID: 3})
	claims, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(3), claims.UserID)
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse", 4)
	require.NoError(t, err)

	ok, err := CheckPassword(hash, "correct horse")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword(hash, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = CheckPassword("plain", "plain")
	assert.Error(t, err)
}
