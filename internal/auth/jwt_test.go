package auth

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tyeom/zeroquant-sub005/internal/platform/errors"
)

const testSecret = "unit-test-secret-0123456789"

func TestVerify_ValidToken(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	token, err := NewIssuer(testSecret, clock).Issue("user-42", "alice", "trader", time.Hour)
	require.NoError(t, err)

	v, err := NewJWTVerifier(testSecret, WithClock(clock))
	require.NoError(t, err)

	identity, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", identity.UserID)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, "trader", identity.Role)
	assert.NotEmpty(t, identity.TokenID)
	assert.True(t, clock.Now().Add(time.Hour).Equal(identity.ExpiresAt))
}

func TestVerify_Expired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	token, err := NewIssuer(testSecret, clock).Issue("user-42", "alice", "trader", time.Minute)
	require.NoError(t, err)

	v, err := NewJWTVerifier(testSecret, WithClock(clock))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	_, err = v.Verify(context.Background(), token)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuth))
	assert.Contains(t, err.Error(), "token expired")
}

func TestVerify_Leeway(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	token, err := NewIssuer(testSecret, clock).Issue("user-42", "alice", "trader", time.Minute)
	require.NoError(t, err)

	v, err := NewJWTVerifier(testSecret, WithClock(clock), WithLeeway(30*time.Second))
	require.NoError(t, err)

	clock.Advance(time.Minute + 10*time.Second)

	_, err = v.Verify(context.Background(), token)
	assert.NoError(t, err)
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := NewIssuer("another-secret-0123456789", nil).Issue("user-42", "alice", "trader", time.Hour)
	require.NoError(t, err)

	v, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid signature")
}

func TestVerify_Malformed(t *testing.T) {
	v, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuth))
	assert.Contains(t, err.Error(), "malformed token")
}

func TestVerify_MissingSubject(t *testing.T) {
	token, err := NewIssuer(testSecret, nil).Issue("", "alice", "trader", time.Hour)
	require.NoError(t, err)

	v, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no subject")
}

func TestNewJWTVerifier_RequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier("")
	assert.Error(t, err)
}
