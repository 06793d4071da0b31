package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := NewTokenService(testSecret, 15, 7)

	id := Identity{ID: 42, Username: "amara", Role: "user"}
	token, exp, err := svc.IssueAccessToken(id)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.False(t, exp.IsZero())

	got, err := svc.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestAccessTokenCarriesAdminRole(t *testing.T) {
	svc := NewTokenService(testSecret, 15, 7)

	token, _, err := svc.IssueAccessToken(AdminIdentity("admin"))
	require.NoError(t, err)

	got, err := svc.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, AdminID, got.ID)
	assert.True(t, got.IsAdmin())
	assert.True(t, got.IsSentinelAdmin())
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	svc := NewTokenService(testSecret, 15, 7)

	token, _, err := svc.IssueRefreshToken(Identity{ID: 7, Role: "user"})
	require.NoError(t, err)

	sub, err := svc.VerifyRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), sub)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	svc := NewTokenService(testSecret, 15, 7)
	other := NewTokenService("different-secret", 15, 7)

	token, _, err := svc.IssueAccessToken(Identity{ID: 1, Role: "user"})
	require.NoError(t, err)

	_, err = other.VerifyAccess(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	// Negative TTLs put the exp claim in the past.
	svc := NewTokenService(testSecret, -1, -1)

	access, _, err := svc.IssueAccessToken(Identity{ID: 1, Role: "user"})
	require.NoError(t, err)
	_, err = svc.VerifyAccess(access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	refresh, _, err := svc.IssueRefreshToken(Identity{ID: 1, Role: "user"})
	require.NoError(t, err)
	_, err = svc.VerifyRefresh(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := NewTokenService(testSecret, 15, 7)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := svc.VerifyAccess(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestIssuePair(t *testing.T) {
	svc := NewTokenService(testSecret, 15, 7)

	pair, err := svc.IssuePair(Identity{ID: 3, Username: "mirela", Role: "user"})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.True(t, pair.RefreshExpires.After(pair.AccessExpires))
}

func TestHashRefresh(t *testing.T) {
	a := HashRefresh("token-a")
	b := HashRefresh("token-b")

	assert.Len(t, a, 64) // sha256 hex
	assert.Equal(t, a, HashRefresh("token-a"))
	assert.NotEqual(t, a, b)
}
