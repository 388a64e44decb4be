package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

func TestAuthorize(t *testing.T) {
	techP := Principal{UserID: "u1", Role: domain.RoleTech}

	assert.NoError(t, Authorize(techP), "no required roles means authentication only")
	assert.NoError(t, Authorize(techP, domain.RoleTech))
	assert.NoError(t, Authorize(techP, domain.RoleTech, domain.RoleAdmin))

	err := Authorize(techP, domain.RoleAdmin)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	err = Authorize(Principal{}, domain.RoleTech)
	assert.True(t, apperrors.IsCode(err, "UNAUTHENTICATED"))
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)

	token, expiresAt, err := tm.GenerateToken("user-1", domain.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, expiresAt.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestTokenManager_RejectsForgedTokens(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	other := NewTokenManager("other-secret", 5)

	token, _, err := other.GenerateToken("user-1", domain.RoleAdmin)
	require.NoError(t, err)

	_, err = tm.ParseToken(token)
	assert.Error(t, err)

	_, err = tm.ParseToken("not-a-token")
	assert.Error(t, err)
}

func TestTokenManager_RejectsUnknownRole(t *testing.T) {
	tm := NewTokenManager("secret", 5)

	token, _, err := tm.GenerateToken("user-1", domain.Role("root"))
	require.NoError(t, err)

	_, err = tm.ParseToken(token)
	assert.Error(t, err, "tokens carrying roles outside the model are rejected")
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.NoError(t, ComparePassword(hash, "hunter22"))
	assert.Error(t, ComparePassword(hash, "wrong"))
}
