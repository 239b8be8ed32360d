package users

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the users table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id                  VARCHAR(40) PRIMARY KEY,
			name                VARCHAR(200) NOT NULL UNIQUE,
			role                VARCHAR(20) NOT NULL,
			verified            BOOLEAN NOT NULL DEFAULT FALSE,
			verification_reason TEXT NOT NULL DEFAULT '',
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role, verified, verification_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Name, string(u.Role), u.Verified, u.VerificationReason, u.CreatedAt, u.UpdatedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrNameTaken
	}
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, name, role, verified, verification_reason, created_at, updated_at
		FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) GetByName(ctx context.Context, name string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, name, role, verified, verification_reason, created_at, updated_at
		FROM users WHERE name = $1`, name))
}

func (s *PostgresStore) scanOne(row *sql.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Name, &u.Role, &u.Verified, &u.VerificationReason, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *PostgresStore) Update(ctx context.Context, u *User) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET name=$2, role=$3, verified=$4, verification_reason=$5, updated_at=$6
		WHERE id = $1`,
		u.ID, u.Name, string(u.Role), u.Verified, u.VerificationReason, u.UpdatedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrNameTaken
	}
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, verified, verification_reason, created_at, updated_at
		FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.Verified, &u.VerificationReason, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}
