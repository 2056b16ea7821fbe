package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/vitrina-search/vitrina/internal/errors"
)

func TestHashPassword_KnownDigest(t *testing.T) {
	// Pins the scheme: hashes in the user table must keep verifying.
	assert.Equal(t,
		"8335e161fd33d7eefa7d74f2b332351c55bdcdba659297e7cfb2b7f2731bd245",
		HashPassword("secret123"))
}

func TestVerifyPassword(t *testing.T) {
	hashed := HashPassword("correct horse")

	assert.True(t, VerifyPassword("correct horse", hashed))
	assert.False(t, VerifyPassword("wrong horse", hashed))
	assert.False(t, VerifyPassword("correct horse", "not-a-digest"))
}

func TestGenerateAPIKey(t *testing.T) {
	key := GenerateAPIKey("")
	assert.True(t, strings.HasPrefix(key, DefaultKeyPrefix))
	assert.Len(t, key, len(DefaultKeyPrefix)+48)

	custom := GenerateAPIKey("vk_")
	assert.True(t, strings.HasPrefix(custom, "vk_"))
	assert.Len(t, custom, 3+48)

	assert.NotEqual(t, GenerateAPIKey(""), GenerateAPIKey(""))
}

func TestGenerateIDs(t *testing.T) {
	userID := GenerateUserID()
	assert.True(t, strings.HasPrefix(userID, "user_"))
	assert.Len(t, userID, len("user_")+16)

	projectID := GenerateProjectID()
	assert.True(t, strings.HasPrefix(projectID, "proj_"))
	assert.Len(t, projectID, len("proj_")+16)

	assert.NotEqual(t, GenerateUserID(), GenerateUserID())
}

func TestNewAuthenticator_RequiresSecret(t *testing.T) {
	_, err := NewAuthenticator("")
	require.Error(t, err)
}

func TestAuthenticator_IssueAndVerify(t *testing.T) {
	a, err := NewAuthenticator("test-secret")
	require.NoError(t, err)

	token, err := a.IssueToken("user_0123456789abcdef", "shop@example.ru")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := a.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user_0123456789abcdef", claims.UserID)
	assert.Equal(t, "shop@example.ru", claims.Email)
}

func TestAuthenticator_RejectsExpiredToken(t *testing.T) {
	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	issuer, err := NewAuthenticator("test-secret",
		WithClock(func() time.Time { return issued }))
	require.NoError(t, err)

	token, err := issuer.IssueToken("user_1", "a@b.ru")
	require.NoError(t, err)

	// Same secret, clock past the 7-day lifetime.
	verifier, err := NewAuthenticator("test-secret",
		WithClock(func() time.Time { return issued.Add(DefaultTokenTTL + time.Hour) }))
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeUnauthorized, verrors.GetCode(err))
}

func TestAuthenticator_HonorsTokenTTL(t *testing.T) {
	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	a, err := NewAuthenticator("test-secret",
		WithTokenTTL(time.Hour),
		WithClock(func() time.Time { return issued }))
	require.NoError(t, err)

	token, err := a.IssueToken("user_1", "a@b.ru")
	require.NoError(t, err)

	late, err := NewAuthenticator("test-secret",
		WithClock(func() time.Time { return issued.Add(2 * time.Hour) }))
	require.NoError(t, err)

	_, err = late.VerifyToken(token)
	require.Error(t, err)
}

func TestAuthenticator_RejectsForeignSignature(t *testing.T) {
	issuer, err := NewAuthenticator("secret-one")
	require.NoError(t, err)
	verifier, err := NewAuthenticator("secret-two")
	require.NoError(t, err)

	token, err := issuer.IssueToken("user_1", "a@b.ru")
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeUnauthorized, verrors.GetCode(err))
}

func TestAuthenticator_RejectsGarbage(t *testing.T) {
	a, err := NewAuthenticator("test-secret")
	require.NoError(t, err)

	for _, tok := range []string{"", "not.a.token", "a.b"} {
		_, err := a.VerifyToken(tok)
		assert.Error(t, err, "token %q", tok)
	}
}
