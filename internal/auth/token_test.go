package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-lims/meridian-lims/internal/shared"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	sessionID := uuid.New()

	raw, expiresAt, err := issuer.Issue(42, sessionID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, sessionID.String(), claims.SessionID)

	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestTokenExpired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", -time.Minute)

	raw, _, err := issuer.Issue(42, uuid.New())
	require.NoError(t, err)

	_, err = issuer.Parse(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnauthenticated))
}

func TestTokenWrongSecret(t *testing.T) {
	raw, _, err := NewTokenIssuer("secret-a", time.Hour).Issue(42, uuid.New())
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret-b", time.Hour).Parse(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnauthenticated))
}

func TestTokenGarbage(t *testing.T) {
	_, err := NewTokenIssuer("test-secret", time.Hour).Parse("not.a.token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnauthenticated))
}
