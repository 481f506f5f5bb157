package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/entity"
)

var ErrNotFound = errors.New("lead not found")

const leadColumns = `id, full_name, phone, email, address1, city, state, zip, lat, lng,
	urgency, price_cents, notes, source, status, routed_to_id, routed_at, created_at`

// LeadRepo provides data access for the leads table using sqlx.
type LeadRepo struct {
	db *sqlx.DB
}

func NewLeadRepo(db *sqlx.DB) *LeadRepo { return &LeadRepo{db: db} }

// EnsureTable creates the leads table if not exists (idempotent).
func (r *LeadRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS leads (
  id TEXT PRIMARY KEY,
  full_name TEXT NOT NULL,
  phone TEXT NOT NULL,
  email TEXT,
  address1 TEXT,
  city TEXT NOT NULL,
  state CHAR(2) NOT NULL,
  zip CHAR(5) NOT NULL,
  lat DOUBLE PRECISION,
  lng DOUBLE PRECISION,
  urgency TEXT NOT NULL DEFAULT 'STANDARD',
  price_cents INT NOT NULL,
  notes TEXT,
  source TEXT,
  status TEXT NOT NULL DEFAULT 'OPEN',
  routed_to_id TEXT,
  routed_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status, created_at);
CREATE INDEX IF NOT EXISTS idx_leads_routed_to ON leads(routed_to_id, routed_at);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts an OPEN lead and fills CreatedAt.
func (r *LeadRepo) Create(ctx context.Context, l *entity.Lead) error {
	const q = `INSERT INTO leads (id, full_name, phone, email, address1, city, state, zip, lat, lng,
		urgency, price_cents, notes, source, status)
	  VALUES (:id, :full_name, :phone, :email, :address1, :city, :state, :zip, :lat, :lng,
		:urgency, :price_cents, :notes, :source, 'OPEN')
	  RETURNING created_at`
	stmt, err := r.db.NamedQueryContext(ctx, q, l)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	defer stmt.Close()
	if stmt.Next() {
		l.Status = entity.StatusOpen
		return stmt.Scan(&l.CreatedAt)
	}
	if err := stmt.Err(); err != nil {
		return err
	}
	return errors.New("no row returned")
}

func (r *LeadRepo) GetByID(ctx context.Context, id string) (*entity.Lead, error) {
	var l entity.Lead
	if err := r.db.GetContext(ctx, &l, `SELECT `+leadColumns+` FROM leads WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// AssignIfOpen is the single write that routes a lead. It sets CLAIMED and
// routed_to_id only while the lead is still OPEN. assigned reports whether
// this call won; when it did not, current holds the existing assignment.
func (r *LeadRepo) AssignIfOpen(ctx context.Context, leadID, providerID string) (assigned bool, current string, err error) {
	const q = `UPDATE leads SET status='CLAIMED', routed_to_id=$2, routed_at=NOW()
	  WHERE id=$1 AND status='OPEN' RETURNING routed_to_id`
	var got string
	err = r.db.QueryRowxContext(ctx, q, leadID, providerID).Scan(&got)
	if err == nil {
		return true, got, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, "", fmt.Errorf("assign lead: %w", err)
	}
	l, err := r.GetByID(ctx, leadID)
	if err != nil {
		return false, "", err
	}
	if l.RoutedToID != nil {
		current = *l.RoutedToID
	}
	return false, current, nil
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// clampLimit maps a non-positive limit to DefaultListLimit and caps the
// rest at MaxListLimit.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// ListByStatus pages leads oldest first. An empty status lists all leads.
func (r *LeadRepo) ListByStatus(ctx context.Context, status entity.Status, limit, offset int) ([]entity.Lead, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	var rows []entity.Lead
	var err error
	if status == "" {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT `+leadColumns+` FROM leads ORDER BY created_at ASC, id ASC LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &rows,
			`SELECT `+leadColumns+` FROM leads WHERE status=$1 ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3`,
			status, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// StatsForProvider counts leads routed to providerID.
func (r *LeadRepo) StatsForProvider(ctx context.Context, providerID string) (entity.Stats, error) {
	const q = `SELECT COUNT(*) AS total_routed,
		COUNT(*) FILTER (WHERE routed_at > NOW() - INTERVAL '30 days') AS routed_last_30
	  FROM leads WHERE routed_to_id=$1`
	var s entity.Stats
	if err := r.db.GetContext(ctx, &s, q, providerID); err != nil {
		return entity.Stats{}, err
	}
	return s, nil
}
