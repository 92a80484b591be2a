package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := OpenRegistry(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	return r
}

func TestRegistry_RegisterAndAuthenticate(t *testing.T) {
	r := tempRegistry(t)

	user, err := r.Register("Alice", "Alice@Example.com", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)

	got, err := r.Authenticate("alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = r.Authenticate("alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = r.Authenticate("nobody@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegistry_DuplicateEmail(t *testing.T) {
	r := tempRegistry(t)

	_, err := r.Register("Alice", "alice@example.com", "pw1")
	require.NoError(t, err)

	_, err = r.Register("Alice Again", "ALICE@example.com", "pw2")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegistry_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	r, err := OpenRegistry(path)
	require.NoError(t, err)
	_, err = r.Register("Alice", "alice@example.com", "pw")
	require.NoError(t, err)

	reopened, err := OpenRegistry(path)
	require.NoError(t, err)
	_, err = reopened.Authenticate("alice@example.com", "pw")
	assert.NoError(t, err)
}

func TestTokens_IssueAndVerify(t *testing.T) {
	tokens, err := NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	user := &User{ID: "user-1", Email: "alice@example.com"}
	signed, err := tokens.Issue(user)
	require.NoError(t, err)

	claims, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestTokens_RejectsTamperedAndExpired(t *testing.T) {
	tokens, err := NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	_, err = tokens.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewTokens("different-secret", time.Hour)
	require.NoError(t, err)
	signed, err := other.Issue(&User{ID: "user-1"})
	require.NoError(t, err)
	_, err = tokens.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewTokens("test-secret", -time.Hour)
	require.NoError(t, err)
	signed, err = expired.Issue(&User{ID: "user-1"})
	require.NoError(t, err)
	_, err = tokens.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokens_RequiresSecret(t *testing.T) {
	_, err := NewTokens("", time.Hour)
	assert.Error(t, err)
}
