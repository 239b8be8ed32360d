package bonds

import (
	"context"
	"database/sql"
)

// Compile-time assertion.
var _ Store = (*PostgresStore)(nil)

// PostgresStore persists bonds, purchases, and listings in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed bond store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the marketplace tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bonds (
			id               VARCHAR(40) PRIMARY KEY,
			lister_id        VARCHAR(40) NOT NULL,
			name             VARCHAR(200) NOT NULL,
			issuer           VARCHAR(200) NOT NULL,
			face_value       NUMERIC(18,2) NOT NULL,
			coupon_rate      NUMERIC(8,4) NOT NULL,
			periods_per_year INT NOT NULL,
			issue_date       TIMESTAMPTZ NOT NULL,
			maturity_date    TIMESTAMPTZ NOT NULL,
			total_units      INT NOT NULL,
			available_units  INT NOT NULL,
			unit_price       NUMERIC(18,2) NOT NULL,
			oracle_score     NUMERIC(5,2),
			approval_status  VARCHAR(20) NOT NULL,
			approval_reason  TEXT NOT NULL DEFAULT '',
			approved_by      VARCHAR(40) NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_bonds_status ON bonds (approval_status, created_at);

		CREATE TABLE IF NOT EXISTS purchases (
			id          VARCHAR(40) PRIMARY KEY,
			bond_id     VARCHAR(40) NOT NULL REFERENCES bonds(id),
			investor_id VARCHAR(40) NOT NULL,
			units       INT NOT NULL,
			unit_price  NUMERIC(18,2) NOT NULL,
			cost_basis  NUMERIC(18,2) NOT NULL,
			status      VARCHAR(20) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_purchases_investor ON purchases (investor_id, created_at);

		CREATE TABLE IF NOT EXISTS sale_listings (
			id           VARCHAR(40) PRIMARY KEY,
			purchase_id  VARCHAR(40) NOT NULL REFERENCES purchases(id),
			bond_id      VARCHAR(40) NOT NULL REFERENCES bonds(id),
			seller_id    VARCHAR(40) NOT NULL,
			units        INT NOT NULL,
			ask_price    NUMERIC(18,2) NOT NULL,
			quoted_value NUMERIC(18,2) NOT NULL,
			status       VARCHAR(20) NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_status ON sale_listings (status, created_at);
	`)
	return err
}

// ---------- bonds ----------

const bondColumns = `id, lister_id, name, issuer, face_value, coupon_rate,
	periods_per_year, issue_date, maturity_date, total_units, available_units,
	unit_price, oracle_score, approval_status, approval_reason, approved_by,
	created_at, updated_at`

func (s *PostgresStore) CreateBond(ctx context.Context, b *Bond) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bonds (`+bondColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		b.ID, b.ListerID, b.Name, b.Issuer, b.FaceValue, b.CouponRate,
		b.PeriodsPerYear, b.IssueDate, b.MaturityDate, b.TotalUnits, b.AvailableUnits,
		b.UnitPrice, b.OracleScore, string(b.ApprovalStatus), b.ApprovalReason, b.ApprovedBy,
		b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func scanBond(row interface{ Scan(...interface{}) error }) (*Bond, error) {
	b := &Bond{}
	var score sql.NullFloat64
	err := row.Scan(&b.ID, &b.ListerID, &b.Name, &b.Issuer, &b.FaceValue, &b.CouponRate,
		&b.PeriodsPerYear, &b.IssueDate, &b.MaturityDate, &b.TotalUnits, &b.AvailableUnits,
		&b.UnitPrice, &score, &b.ApprovalStatus, &b.ApprovalReason, &b.ApprovedBy,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if score.Valid {
		b.OracleScore = &score.Float64
	}
	return b, nil
}

func (s *PostgresStore) GetBond(ctx context.Context, id string) (*Bond, error) {
	b, err := scanBond(s.db.QueryRowContext(ctx,
		`SELECT `+bondColumns+` FROM bonds WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrBondNotFound
	}
	return b, err
}

func (s *PostgresStore) UpdateBond(ctx context.Context, b *Bond) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bonds SET available_units=$2, oracle_score=$3, approval_status=$4,
			approval_reason=$5, approved_by=$6, updated_at=$7
		WHERE id = $1`,
		b.ID, b.AvailableUnits, b.OracleScore, string(b.ApprovalStatus),
		b.ApprovalReason, b.ApprovedBy, b.UpdatedAt,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrBondNotFound
	}
	return nil
}

func (s *PostgresStore) ListBonds(ctx context.Context, status ApprovalStatus) ([]*Bond, error) {
	query := `SELECT ` + bondColumns + ` FROM bonds ORDER BY created_at ASC`
	args := []interface{}{}
	if status != "" {
		query = `SELECT ` + bondColumns + ` FROM bonds WHERE approval_status = $1 ORDER BY created_at ASC`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Bond
	for rows.Next() {
		b, err := scanBond(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// ---------- purchases ----------

func (s *PostgresStore) CreatePurchase(ctx context.Context, p *Purchase) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchases (id, bond_id, investor_id, units, unit_price, cost_basis, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.BondID, p.InvestorID, p.Units, p.UnitPrice, p.CostBasis, string(p.Status),
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetPurchase(ctx context.Context, id string) (*Purchase, error) {
	p := &Purchase{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, bond_id, investor_id, units, unit_price, cost_basis, status, created_at, updated_at
		FROM purchases WHERE id = $1`, id,
	).Scan(&p.ID, &p.BondID, &p.InvestorID, &p.Units, &p.UnitPrice, &p.CostBasis, &p.Status,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) UpdatePurchase(ctx context.Context, p *Purchase) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE purchases SET units=$2, status=$3, updated_at=$4 WHERE id = $1`,
		p.ID, p.Units, string(p.Status), p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

func (s *PostgresStore) ListPurchasesByInvestor(ctx context.Context, investorID string) ([]*Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bond_id, investor_id, units, unit_price, cost_basis, status, created_at, updated_at
		FROM purchases WHERE investor_id = $1 ORDER BY created_at ASC`, investorID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Purchase
	for rows.Next() {
		p := &Purchase{}
		if err := rows.Scan(&p.ID, &p.BondID, &p.InvestorID, &p.Units, &p.UnitPrice, &p.CostBasis,
			&p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// ---------- listings ----------

func (s *PostgresStore) CreateListing(ctx context.Context, l *SaleListing) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sale_listings (id, purchase_id, bond_id, seller_id, units, ask_price, quoted_value, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		l.ID, l.PurchaseID, l.BondID, l.SellerID, l.Units, l.AskPrice, l.QuotedValue,
		string(l.Status), l.CreatedAt, l.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetListing(ctx context.Context, id string) (*SaleListing, error) {
	l := &SaleListing{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, purchase_id, bond_id, seller_id, units, ask_price, quoted_value, status, created_at, updated_at
		FROM sale_listings WHERE id = $1`, id,
	).Scan(&l.ID, &l.PurchaseID, &l.BondID, &l.SellerID, &l.Units, &l.AskPrice, &l.QuotedValue,
		&l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *PostgresStore) UpdateListing(ctx context.Context, l *SaleListing) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sale_listings SET status=$2, updated_at=$3 WHERE id = $1`,
		l.ID, string(l.Status), l.UpdatedAt,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (s *PostgresStore) ListOpenListings(ctx context.Context) ([]*SaleListing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, purchase_id, bond_id, seller_id, units, ask_price, quoted_value, status, created_at, updated_at
		FROM sale_listings WHERE status = 'open' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*SaleListing
	for rows.Next() {
		l := &SaleListing{}
		if err := rows.Scan(&l.ID, &l.PurchaseID, &l.BondID, &l.SellerID, &l.Units, &l.AskPrice,
			&l.QuotedValue, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}
