package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAdminPasswordHash(t *testing.T) {
	hash, err := PasswordHasher{Cost: bcrypt.MinCost}.Hash("s3cret")
	require.NoError(t, err)

	a := NewAdminSecret(Config{AdminPasswordHash: hash, AdminPassword: "ignored"})
	assert.True(t, a.PasswordConfigured())
	assert.True(t, a.VerifyPassword("s3cret"))
	assert.False(t, a.VerifyPassword("ignored"))
	assert.False(t, a.VerifyPassword(""))
}

func TestAdminPlainPassword(t *testing.T) {
	a := NewAdminSecret(Config{AdminPassword: "letmein"})
	assert.True(t, a.VerifyPassword("letmein"))
	assert.False(t, a.VerifyPassword("letmein "))
	assert.False(t, a.VerifyPassword("letmei"))

	none := NewAdminSecret(Config{})
	assert.False(t, none.PasswordConfigured())
	assert.False(t, none.VerifyPassword("anything"))
}

func TestAdminAPIToken(t *testing.T) {
	a := NewAdminSecret(Config{AdminAPIToken: "tok-123"})
	assert.True(t, a.VerifyAPIToken("tok-123"))
	assert.False(t, a.VerifyAPIToken("tok-124"))
	assert.False(t, a.VerifyAPIToken(""))

	unset := NewAdminSecret(Config{})
	assert.False(t, unset.VerifyAPIToken(""))
	assert.False(t, unset.VerifyAPIToken("tok-123"))
}
