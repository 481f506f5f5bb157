package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is the bcrypt wrapper used for the admin password.
type PasswordHasher struct{ Cost int }

func (b PasswordHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b PasswordHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// AdminSecret holds the process-wide admin credentials. There is no
// per-admin identity.
type AdminSecret struct {
	passwordHash string
	password     string
	apiToken     string
	hasher       PasswordHasher
}

func NewAdminSecret(cfg Config) *AdminSecret {
	return &AdminSecret{
		passwordHash: strings.TrimSpace(cfg.AdminPasswordHash),
		password:     cfg.AdminPassword,
		apiToken:     cfg.AdminAPIToken,
	}
}

// PasswordConfigured reports whether admin login can succeed at all.
func (a *AdminSecret) PasswordConfigured() bool {
	return a.passwordHash != "" || a.password != ""
}

// VerifyPassword checks pw against the bcrypt hash when set, otherwise
// against the plain password with a constant-time compare.
func (a *AdminSecret) VerifyPassword(pw string) bool {
	if pw == "" {
		return false
	}
	if a.passwordHash != "" {
		return a.hasher.Verify(a.passwordHash, pw)
	}
	if a.password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.password), []byte(pw)) == 1
}

// VerifyAPIToken compares a presented request-scoped token with ADMIN_API_TOKEN.
// An unset token rejects everything.
func (a *AdminSecret) VerifyAPIToken(presented string) bool {
	if a.apiToken == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.apiToken), []byte(presented)) == 1
}
