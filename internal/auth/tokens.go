package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-directory-go/pkg/utilities"
)

const (
	issuer = "directory"

	purposeMagicLink = "magic_link"
	purposeSession   = "session"
	purposeAdmin     = "admin"

	audienceProvider = "provider"
	audienceAdmin    = "admin"

	claimTokenBytes = 32
	nonceBytes      = 16
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrExpiredToken = errors.New("token expired")
)

// SessionStatus tags the outcome of decoding a credential.
type SessionStatus int

const (
	SessionInvalid SessionStatus = iota
	SessionValid
	SessionExpired
)

func (s SessionStatus) String() string {
	switch s {
	case SessionValid:
		return "valid"
	case SessionExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// Session is the provider identity carried by the auth_token credential.
type Session struct {
	ProviderID string    `json:"provider_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Claims is the JWT body shared by magic links and sessions; Purpose keeps
// one kind from being accepted as the other.
type Claims struct {
	Purpose string `json:"purpose"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Status  string `json:"status,omitempty"`
	Nonce   string `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

// MagicLink is the verified content of a magic-link token.
type MagicLink struct {
	ProviderID string
	Nonce      string
	ExpiresAt  time.Time
}

// TokenAuthority issues claim tokens, magic links and session credentials.
type TokenAuthority struct {
	secret       []byte
	magicTTL     time.Duration
	sessionTTL   time.Duration
	adminTTL     time.Duration
	now          func() time.Time
	parseOptions []jwt.ParserOption
}

func NewTokenAuthority(cfg Config) *TokenAuthority {
	cfg = cfg.withDefaults()
	ta := &TokenAuthority{
		secret:     cfg.Secret,
		magicTTL:   cfg.MagicLinkTTL,
		sessionTTL: cfg.SessionTTL,
		adminTTL:   cfg.AdminSessionTTL,
		now:        time.Now,
	}
	ta.parseOptions = []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return ta.now() }),
	}
	return ta
}

// WithClock replaces the time source for issuing and verifying.
func (ta *TokenAuthority) WithClock(now func() time.Time) *TokenAuthority {
	ta.now = now
	return ta
}

// IssueClaimToken returns a random opaque token to store on the provider record.
func (ta *TokenAuthority) IssueClaimToken() (string, error) {
	return utilities.NewOpaqueToken(claimTokenBytes)
}

// NewNonce returns a random single-use nonce for magic links.
func (ta *TokenAuthority) NewNonce() (string, error) {
	return utilities.NewOpaqueToken(nonceBytes)
}

func (ta *TokenAuthority) sign(c Claims, audience string, ttl time.Duration) (string, error) {
	now := ta.now()
	c.RegisteredClaims.Issuer = issuer
	c.RegisteredClaims.Audience = jwt.ClaimStrings{audience}
	c.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	c.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	c.RegisteredClaims.ID = utilities.NewKSUID()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	s, err := t.SignedString(ta.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// parse verifies signature, issuer, audience, expiry and purpose. Any
// failure other than expiry maps to ErrInvalidToken.
func (ta *TokenAuthority) parse(raw, audience, purpose string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	opts := append([]jwt.ParserOption{jwt.WithAudience(audience)}, ta.parseOptions...)
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return ta.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueMagicLink signs a short-lived login token bound to nonce.
func (ta *TokenAuthority) IssueMagicLink(providerID, nonce string) (string, error) {
	c := Claims{Purpose: purposeMagicLink, Nonce: nonce}
	c.Subject = providerID
	return ta.sign(c, audienceProvider, ta.magicTTL)
}

// VerifyMagicLink checks the token; the caller must still consume the nonce.
func (ta *TokenAuthority) VerifyMagicLink(raw string) (MagicLink, error) {
	c, err := ta.parse(raw, audienceProvider, purposeMagicLink)
	if err != nil {
		return MagicLink{}, err
	}
	if c.Nonce == "" {
		return MagicLink{}, ErrInvalidToken
	}
	return MagicLink{ProviderID: c.Subject, Nonce: c.Nonce, ExpiresAt: c.ExpiresAt.Time}, nil
}

// EncodeSession signs s into a credential valid for the session TTL.
// IssuedAt and ExpiresAt on s are ignored and set from the clock.
func (ta *TokenAuthority) EncodeSession(s Session) (string, error) {
	if s.ProviderID == "" {
		return "", ErrInvalidToken
	}
	c := Claims{Purpose: purposeSession, Email: s.Email, Name: s.Name, Status: s.Status}
	c.Subject = s.ProviderID
	return ta.sign(c, audienceProvider, ta.sessionTTL)
}

// DecodeSession never returns partial data: only SessionValid carries a session.
func (ta *TokenAuthority) DecodeSession(raw string) (Session, SessionStatus) {
	c, err := ta.parse(raw, audienceProvider, purposeSession)
	switch {
	case errors.Is(err, ErrExpiredToken):
		return Session{}, SessionExpired
	case err != nil:
		return Session{}, SessionInvalid
	}
	s := Session{ProviderID: c.Subject, Email: c.Email, Name: c.Name, Status: c.Status}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	s.ExpiresAt = c.ExpiresAt.Time
	return s, SessionValid
}

// EncodeAdminSession signs the credential issued after admin password login.
func (ta *TokenAuthority) EncodeAdminSession() (string, error) {
	c := Claims{Purpose: purposeAdmin}
	c.Subject = "admin"
	return ta.sign(c, audienceAdmin, ta.adminTTL)
}

func (ta *TokenAuthority) DecodeAdminSession(raw string) SessionStatus {
	_, err := ta.parse(raw, audienceAdmin, purposeAdmin)
	switch {
	case err == nil:
		return SessionValid
	case errors.Is(err, ErrExpiredToken):
		return SessionExpired
	default:
		return SessionInvalid
	}
}

func (ta *TokenAuthority) SessionTTL() time.Duration      { return ta.sessionTTL }
func (ta *TokenAuthority) AdminSessionTTL() time.Duration { return ta.adminTTL }
