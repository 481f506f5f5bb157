package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-directory-go/pkg/database"
)

// Centroid is the representative coordinate of a ZIP code.
type Centroid struct {
	Zip string  `db:"zip"`
	Lat float64 `db:"lat"`
	Lng float64 `db:"lng"`
}

// ZipRepo resolves lead coordinates from the zip_centroids table.
type ZipRepo struct {
	db *sqlx.DB
}

func NewZipRepo(db *sqlx.DB) *ZipRepo { return &ZipRepo{db: db} }

func (r *ZipRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS zip_centroids (
  zip CHAR(5) PRIMARY KEY,
  lat DOUBLE PRECISION NOT NULL,
  lng DOUBLE PRECISION NOT NULL
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Lookup returns ok=false for unknown ZIPs.
func (r *ZipRepo) Lookup(ctx context.Context, zip string) (lat, lng float64, ok bool, err error) {
	var c Centroid
	if err := r.db.GetContext(ctx, &c, `SELECT zip, lat, lng FROM zip_centroids WHERE zip=$1`, zip); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return c.Lat, c.Lng, true, nil
}

// Upsert writes all rows in one transaction.
func (r *ZipRepo) Upsert(ctx context.Context, rows []Centroid) error {
	if len(rows) == 0 {
		return nil
	}
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `INSERT INTO zip_centroids (zip, lat, lng) VALUES ($1, $2, $3)
		  ON CONFLICT (zip) DO UPDATE SET lat=EXCLUDED.lat, lng=EXCLUDED.lng`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range rows {
			if _, err := stmt.ExecContext(ctx, c.Zip, c.Lat, c.Lng); err != nil {
				return err
			}
		}
		return nil
	})
}
