package notify

import (
	"context"
	"database/sql"
)

// PostgresStore persists notifications in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed notification store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the notifications table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			id         VARCHAR(40) PRIMARY KEY,
			user_id    VARCHAR(40) NOT NULL,
			message    TEXT NOT NULL,
			type       VARCHAR(20) NOT NULL,
			bond_id    VARCHAR(40) NOT NULL DEFAULT '',
			read       BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_notifications_user
			ON notifications (user_id, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, n *Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, message, type, bond_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.UserID, n.Message, string(n.Type), n.BondID, n.Read, n.CreatedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Notification, error) {
	n := &Notification{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, message, type, bond_id, read, created_at
		FROM notifications WHERE id = $1`, id,
	).Scan(&n.ID, &n.UserID, &n.Message, &n.Type, &n.BondID, &n.Read, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotificationNotFound
	}
	return n, err
}

func (s *PostgresStore) Update(ctx context.Context, n *Notification) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET message=$2, type=$3, bond_id=$4, read=$5
		WHERE id = $1`,
		n.ID, n.Message, string(n.Type), n.BondID, n.Read,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, message, type, bond_id, read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Notification
	for rows.Next() {
		n := &Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Type, &n.BondID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
