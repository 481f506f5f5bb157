package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"go.uber.org/zap"

	pentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
	prepo "github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/repo"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyVerified = errors.New("listing already verified")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrDelivery        = errors.New("email delivery failed")
)

const (
	claimVerifyPath = "/directory-api/providers/verify"
	loginVerifyPath = "/directory-api/auth/verify"
)

// ProviderStore is the provider persistence used by claim and login flows.
type ProviderStore interface {
	GetByID(ctx context.Context, id string) (*pentity.Provider, error)
	FindByEmail(ctx context.Context, email string) (*pentity.Provider, error)
	SetClaimRequest(ctx context.Context, id, email, token string) error
	ConsumeClaimToken(ctx context.Context, token string) (*prepo.ClaimResult, error)
	ReissueClaimToken(ctx context.Context, id, token string) error
	SetLoginNonce(ctx context.Context, id, nonce string) error
	ConsumeLoginNonce(ctx context.Context, id, nonce string) (*pentity.Provider, error)
}

// Mailer sends the identity emails.
type Mailer interface {
	SendClaimVerification(ctx context.Context, to, providerName, link string) error
	SendMagicLink(ctx context.Context, to, providerName, link string) error
}

// Service implements claim verification, magic-link login and admin login.
type Service struct {
	store   ProviderStore
	tokens  *TokenAuthority
	admin   *AdminSecret
	mailer  Mailer
	siteURL string
	logger  *zap.SugaredLogger
}

func NewService(cfg Config, store ProviderStore, tokens *TokenAuthority, admin *AdminSecret, mailer Mailer, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		store:   store,
		tokens:  tokens,
		admin:   admin,
		mailer:  mailer,
		siteURL: strings.TrimRight(cfg.PublicSiteURL, "/"),
		logger:  logger,
	}
}

func (s *Service) link(path, token string) string {
	return s.siteURL + path + "?token=" + url.QueryEscape(token)
}

func normalizeEmail(raw string) (string, error) {
	e := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(e), nil
}

// RequestClaim starts the claim flow for an unverified listing: it stores a
// fresh claim token and emails the verification link to email.
func (s *Service) RequestClaim(ctx context.Context, providerID, email string) error {
	addr, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	p, err := s.store.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, prepo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if p.Status == pentity.StatusVerified || p.ClaimVerifiedAt != nil {
		return ErrAlreadyVerified
	}
	token, err := s.tokens.IssueClaimToken()
	if err != nil {
		return err
	}
	if err := s.store.SetClaimRequest(ctx, p.ID, addr, token); err != nil {
		switch {
		case errors.Is(err, prepo.ErrNotFound):
			return ErrNotFound
		case errors.Is(err, prepo.ErrAlreadyVerified):
			return ErrAlreadyVerified
		}
		return fmt.Errorf("store claim request: %w", err)
	}
	if err := s.mailer.SendClaimVerification(ctx, addr, p.Name, s.link(claimVerifyPath, token)); err != nil {
		s.logger.Warnw("claim verification email failed", "provider_id", p.ID, "err", err)
		return ErrDelivery
	}
	s.logger.Infow("claim requested", "provider_id", p.ID)
	return nil
}

// VerifyClaim consumes a claim token. Unknown and already used tokens both
// return ErrInvalidToken.
func (s *Service) VerifyClaim(ctx context.Context, token string) (*prepo.ClaimResult, error) {
	res, err := s.store.ConsumeClaimToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, prepo.ErrNotFound) {
			recordVerification("claim", "invalid")
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	recordVerification("claim", "valid")
	s.logger.Infow("claim verified", "provider_id", res.ID)
	return res, nil
}

// ReissueClaim is the administrative re-issue of a claim token. It returns
// the verification link.
func (s *Service) ReissueClaim(ctx context.Context, providerID string) (string, error) {
	token, err := s.tokens.IssueClaimToken()
	if err != nil {
		return "", err
	}
	if err := s.store.ReissueClaimToken(ctx, providerID, token); err != nil {
		if errors.Is(err, prepo.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	s.logger.Infow("claim token reissued", "provider_id", providerID)
	return s.link(claimVerifyPath, token), nil
}

// RequestLogin emails a magic link to a verified provider. Unknown or
// unverified addresses return nil so callers cannot probe for accounts.
func (s *Service) RequestLogin(ctx context.Context, email string) error {
	addr, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	p, err := s.store.FindByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, prepo.ErrNotFound) {
			s.logger.Debugw("login requested for unknown email")
			return nil
		}
		return err
	}
	if p.Status != pentity.StatusVerified {
		s.logger.Debugw("login requested for unverified provider", "provider_id", p.ID)
		return nil
	}
	nonce, err := s.tokens.NewNonce()
	if err != nil {
		return err
	}
	if err := s.store.SetLoginNonce(ctx, p.ID, nonce); err != nil {
		if errors.Is(err, prepo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("store login nonce: %w", err)
	}
	tok, err := s.tokens.IssueMagicLink(p.ID, nonce)
	if err != nil {
		return err
	}
	to := p.SessionEmail()
	if to == "" {
		to = addr
	}
	if err := s.mailer.SendMagicLink(ctx, to, p.Name, s.link(loginVerifyPath, tok)); err != nil {
		s.logger.Warnw("magic link email failed", "provider_id", p.ID, "err", err)
	}
	return nil
}

// CompleteLogin verifies a magic link, consumes its nonce and returns the
// session with its encoded credential.
func (s *Service) CompleteLogin(ctx context.Context, raw string) (Session, string, error) {
	ml, err := s.tokens.VerifyMagicLink(strings.TrimSpace(raw))
	if err != nil {
		recordVerification("magic_link", "invalid")
		return Session{}, "", ErrInvalidToken
	}
	p, err := s.store.ConsumeLoginNonce(ctx, ml.ProviderID, ml.Nonce)
	if err != nil {
		if errors.Is(err, prepo.ErrNotFound) {
			recordVerification("magic_link", "replayed")
			return Session{}, "", ErrInvalidToken
		}
		return Session{}, "", err
	}
	sess := Session{ProviderID: p.ID, Email: p.SessionEmail(), Name: p.Name, Status: string(p.Status)}
	cred, err := s.tokens.EncodeSession(sess)
	if err != nil {
		return Session{}, "", err
	}
	decoded, _ := s.tokens.DecodeSession(cred)
	recordVerification("magic_link", "valid")
	s.logger.Infow("provider logged in", "provider_id", p.ID)
	return decoded, cred, nil
}

// AdminLogin verifies the admin password and returns an admin session credential.
func (s *Service) AdminLogin(password string) (string, error) {
	if !s.admin.VerifyPassword(password) {
		recordVerification("admin_password", "invalid")
		return "", ErrUnauthorized
	}
	recordVerification("admin_password", "valid")
	return s.tokens.EncodeAdminSession()
}
