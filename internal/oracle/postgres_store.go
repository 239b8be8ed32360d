package oracle

import (
	"context"
	"database/sql"
)

// PostgresStore persists the override audit trail in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed override store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the oracle_overrides table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS oracle_overrides (
			id         VARCHAR(40) PRIMARY KEY,
			bond_id    VARCHAR(40) NOT NULL,
			score      NUMERIC(5,2) NOT NULL CHECK (score >= 0 AND score <= 100),
			admin_id   VARCHAR(40) NOT NULL,
			note       TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_oracle_overrides_bond
			ON oracle_overrides (bond_id, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, o *Override) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_overrides (id, bond_id, score, admin_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.BondID, o.Score, o.AdminID, o.Note, o.CreatedAt,
	)
	return err
}

func (s *PostgresStore) LatestByBond(ctx context.Context, bondID string) (*Override, error) {
	o := &Override{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, bond_id, score, admin_id, note, created_at
		FROM oracle_overrides WHERE bond_id = $1
		ORDER BY created_at DESC LIMIT 1`, bondID,
	).Scan(&o.ID, &o.BondID, &o.Score, &o.AdminID, &o.Note, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoOverride
	}
	return o, err
}

func (s *PostgresStore) ListByBond(ctx context.Context, bondID string, limit int) ([]*Override, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bond_id, score, admin_id, note, created_at
		FROM oracle_overrides WHERE bond_id = $1
		ORDER BY created_at DESC LIMIT $2`, bondID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Override
	for rows.Next() {
		o := &Override{}
		if err := rows.Scan(&o.ID, &o.BondID, &o.Score, &o.AdminID, &o.Note, &o.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}
