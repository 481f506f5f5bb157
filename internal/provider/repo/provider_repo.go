package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
)

var (
	// ErrNotFound covers missing providers and tokens that do not (or no longer) match.
	ErrNotFound        = errors.New("provider not found")
	ErrAlreadyVerified = errors.New("provider already verified")
)

const providerColumns = `id, name, slug, email, claim_email, notification_email, phone,
	zip_codes, service_radius_miles, home_lat, home_lng, listing_tier, is_featured,
	status, trial_status, trial_expires_at, payment_method_ref, eligible_for_leads,
	opted_out_at, claim_token, claim_verified_at, login_nonce, created_at, updated_at`

// ProviderRepo provides data access for providers and provider_coverage using sqlx.
type ProviderRepo struct {
	db *sqlx.DB
}

func NewProviderRepo(db *sqlx.DB) *ProviderRepo { return &ProviderRepo{db: db} }

// EnsureTable creates the providers and provider_coverage tables if not exists (idempotent).
func (r *ProviderRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS providers (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  email TEXT,
  claim_email TEXT,
  notification_email TEXT,
  phone TEXT,
  zip_codes TEXT,
  service_radius_miles DOUBLE PRECISION,
  home_lat DOUBLE PRECISION,
  home_lng DOUBLE PRECISION,
  listing_tier TEXT NOT NULL DEFAULT 'BASIC',
  is_featured BOOLEAN NOT NULL DEFAULT false,
  status TEXT NOT NULL DEFAULT 'UNVERIFIED',
  trial_status TEXT NOT NULL DEFAULT 'NONE',
  trial_expires_at TIMESTAMPTZ,
  payment_method_ref TEXT,
  eligible_for_leads BOOLEAN NOT NULL DEFAULT false,
  opted_out_at TIMESTAMPTZ,
  claim_token TEXT UNIQUE,
  claim_verified_at TIMESTAMPTZ,
  login_nonce TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_providers_lower_email ON providers(lower(email));
CREATE INDEX IF NOT EXISTS idx_providers_lower_claim_email ON providers(lower(claim_email));
CREATE INDEX IF NOT EXISTS idx_providers_routable ON providers(status, eligible_for_leads);
CREATE TABLE IF NOT EXISTS provider_coverage (
  provider_id TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
  state CHAR(2) NOT NULL,
  city TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (provider_id, state, city)
);
CREATE INDEX IF NOT EXISTS idx_provider_coverage_state ON provider_coverage(state);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a provider and its coverage records in one transaction.
func (r *ProviderRepo) Create(ctx context.Context, p *entity.Provider) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `INSERT INTO providers (id, name, slug, email, claim_email, notification_email, phone,
		zip_codes, service_radius_miles, home_lat, home_lng, listing_tier, is_featured, status,
		trial_status, trial_expires_at, payment_method_ref, eligible_for_leads, opted_out_at,
		claim_token, claim_verified_at, login_nonce)
	  VALUES (:id, :name, :slug, :email, :claim_email, :notification_email, :phone,
		:zip_codes, :service_radius_miles, :home_lat, :home_lng, :listing_tier, :is_featured, :status,
		:trial_status, :trial_expires_at, :payment_method_ref, :eligible_for_leads, :opted_out_at,
		:claim_token, :claim_verified_at, :login_nonce)
	  RETURNING created_at, updated_at`
	q2, args, err := tx.BindNamed(q, p)
	if err != nil {
		return err
	}
	if err := tx.QueryRowxContext(ctx, q2, args...).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("insert provider: %w", err)
	}
	for i := range p.Coverage {
		c := &p.Coverage[i]
		c.ProviderID = p.ID
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO provider_coverage (provider_id, state, city) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			c.ProviderID, strings.ToUpper(c.State), strings.TrimSpace(c.City)); err != nil {
			return fmt.Errorf("insert coverage: %w", err)
		}
	}
	return tx.Commit()
}

// GetByID returns the provider with coverage loaded, or ErrNotFound.
func (r *ProviderRepo) GetByID(ctx context.Context, id string) (*entity.Provider, error) {
	var p entity.Provider
	if err := r.db.GetContext(ctx, &p, `SELECT `+providerColumns+` FROM providers WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.loadCoverage(ctx, []*entity.Provider{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByEmail matches claim_email first, then the legacy email, case-insensitively.
func (r *ProviderRepo) FindByEmail(ctx context.Context, email string) (*entity.Provider, error) {
	const q = `SELECT ` + providerColumns + ` FROM providers
	  WHERE lower(claim_email)=lower($1) OR lower(email)=lower($1)
	  ORDER BY (lower(claim_email)=lower($1)) DESC NULLS LAST, updated_at DESC
	  LIMIT 1`
	var p entity.Provider
	if err := r.db.GetContext(ctx, &p, q, strings.TrimSpace(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindCandidateProviders returns the coarse candidate snapshot: verified,
// lead-eligible, not opted-out providers with coverage loaded. Geographic
// and trial/payment checks are left to the routing package.
func (r *ProviderRepo) FindCandidateProviders(ctx context.Context) ([]*entity.Provider, error) {
	const q = `SELECT ` + providerColumns + ` FROM providers
	  WHERE status='VERIFIED' AND eligible_for_leads AND opted_out_at IS NULL`
	var rows []*entity.Provider
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	if err := r.loadCoverage(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ProviderRepo) loadCoverage(ctx context.Context, ps []*entity.Provider) error {
	if len(ps) == 0 {
		return nil
	}
	ids := make([]string, 0, len(ps))
	byID := make(map[string]*entity.Provider, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
		byID[p.ID] = p
	}
	q, args, err := sqlx.In(`SELECT provider_id, state, city FROM provider_coverage WHERE provider_id IN (?) ORDER BY state, city`, ids)
	if err != nil {
		return err
	}
	var cov []entity.Coverage
	if err := r.db.SelectContext(ctx, &cov, r.db.Rebind(q), args...); err != nil {
		return fmt.Errorf("select coverage: %w", err)
	}
	for _, c := range cov {
		if p, ok := byID[c.ProviderID]; ok {
			p.Coverage = append(p.Coverage, c)
		}
	}
	return nil
}

// SetClaimRequest moves an unverified listing to PENDING with a fresh claim
// token. It returns ErrAlreadyVerified for verified listings.
func (r *ProviderRepo) SetClaimRequest(ctx context.Context, id, email, token string) error {
	const q = `UPDATE providers SET status='PENDING', claim_email=$2, claim_token=$3, updated_at=NOW()
	  WHERE id=$1 AND claim_verified_at IS NULL AND status <> 'VERIFIED' RETURNING 1`
	var one int
	err := r.db.QueryRowxContext(ctx, q, id, email, token).Scan(&one)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if _, gerr := r.GetByID(ctx, id); gerr != nil {
		return gerr
	}
	return ErrAlreadyVerified
}

// ClaimResult identifies the provider whose claim token was consumed.
type ClaimResult struct {
	ID    string  `db:"id"`
	Slug  string  `db:"slug"`
	Name  string  `db:"name"`
	Email *string `db:"claim_email"`
}

// ConsumeClaimToken atomically verifies the listing holding token and clears
// the token. A token that never existed and one already consumed both yield ErrNotFound.
func (r *ProviderRepo) ConsumeClaimToken(ctx context.Context, token string) (*ClaimResult, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	const q = `UPDATE providers
	  SET status='VERIFIED', claim_verified_at=NOW(), claim_token=NULL, updated_at=NOW()
	  WHERE claim_token=$1 AND claim_verified_at IS NULL
	  RETURNING id, slug, name, claim_email`
	var res ClaimResult
	if err := r.db.QueryRowxContext(ctx, q, token).StructScan(&res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

// ReissueClaimToken is the administrative re-issue: it clears claim_verified_at,
// sets PENDING and stores a new token.
func (r *ProviderRepo) ReissueClaimToken(ctx context.Context, id, token string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE providers SET status='PENDING', claim_token=$2, claim_verified_at=NULL, login_nonce=NULL, updated_at=NOW() WHERE id=$1`,
		id, token)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLoginNonce replaces the single outstanding magic-link nonce.
func (r *ProviderRepo) SetLoginNonce(ctx context.Context, id, nonce string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE providers SET login_nonce=$2 WHERE id=$1 AND status='VERIFIED'`, id, nonce)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeLoginNonce clears the nonce if it still matches and returns the
// provider. A replayed or superseded nonce yields ErrNotFound.
func (r *ProviderRepo) ConsumeLoginNonce(ctx context.Context, id, nonce string) (*entity.Provider, error) {
	if nonce == "" {
		return nil, ErrNotFound
	}
	q := `UPDATE providers SET login_nonce=NULL, updated_at=NOW()
	  WHERE id=$1 AND login_nonce=$2 AND status='VERIFIED'
	  RETURNING ` + providerColumns
	var p entity.Provider
	if err := r.db.QueryRowxContext(ctx, q, id, nonce).StructScan(&p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
