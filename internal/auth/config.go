package auth

import (
	"errors"
	"os"
	"strings"
	"time"
)

const (
	DefaultMagicLinkTTL    = 15 * time.Minute
	DefaultSessionTTL      = 30 * 24 * time.Hour
	DefaultAdminSessionTTL = 24 * time.Hour

	SessionCookie      = "auth_token"
	AdminSessionCookie = "admin_session"
)

// ErrMissingSecret is returned by Validate when production runs without SESSION_SECRET.
var ErrMissingSecret = errors.New("SESSION_SECRET is required in production")

type Config struct {
	Secret            []byte
	Production        bool
	PublicSiteURL     string
	AdminPasswordHash string
	AdminPassword     string
	AdminAPIToken     string
	MagicLinkTTL      time.Duration
	SessionTTL        time.Duration
	AdminSessionTTL   time.Duration
}

// ConfigFromEnv reads auth config from environment variables.
func ConfigFromEnv() Config {
	secret := os.Getenv("SESSION_SECRET")
	prod := strings.EqualFold(os.Getenv("APP_ENV"), "production")
	if secret == "" && !prod {
		// local development only
		secret = "dev-session-secret-change-me"
	}
	return Config{
		Secret:            []byte(secret),
		Production:        prod,
		PublicSiteURL:     strings.TrimRight(os.Getenv("PUBLIC_SITE_URL"), "/"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		AdminAPIToken:     os.Getenv("ADMIN_API_TOKEN"),
		MagicLinkTTL:      DefaultMagicLinkTTL,
		SessionTTL:        DefaultSessionTTL,
		AdminSessionTTL:   DefaultAdminSessionTTL,
	}
}

func (c Config) Validate() error {
	if len(c.Secret) == 0 {
		return ErrMissingSecret
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MagicLinkTTL <= 0 {
		c.MagicLinkTTL = DefaultMagicLinkTTL
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.AdminSessionTTL <= 0 {
		c.AdminSessionTTL = DefaultAdminSessionTTL
	}
	return c
}
