package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/bondfi/bondfi/internal/idgen"
	"github.com/bondfi/bondfi/internal/metrics"
)

// Service writes and reads user notifications.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a notification service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Add records a notification for a user. Best-effort: failures are logged
// and swallowed so producers never block on the inbox.
func (s *Service) Add(ctx context.Context, userID, message string, typ Type, bondID string) {
	n := &Notification{
		ID:        idgen.WithPrefix("ntf_"),
		UserID:    userID,
		Message:   message,
		Type:      typ,
		BondID:    bondID,
		CreatedAt: time.Now(),
	}

	if err := s.store.Create(ctx, n); err != nil {
		s.logger.Warn("failed to store notification",
			"user_id", userID, "type", typ, "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(typ)).Inc()
}

// ListByUser returns a user's notifications, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// MarkRead flags a notification as read.
func (s *Service) MarkRead(ctx context.Context, id string) (*Notification, error) {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Read {
		return n, nil
	}
	n.Read = true
	if err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}
