package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bondfi/bondfi/internal/idgen"
	"github.com/bondfi/bondfi/internal/notify"
)

// Service manages platform accounts.
type Service struct {
	store    Store
	notifier *notify.Service
	logger   *slog.Logger
}

// NewService creates a user service. notifier may be nil.
func NewService(store Store, notifier *notify.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, notifier: notifier, logger: logger}
}

// Register creates a new account with the given display name and role.
func (s *Service) Register(ctx context.Context, name string, role Role) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 200 {
		return nil, fmt.Errorf("%w: name must be 1-200 characters", ErrInvalidName)
	}
	if role == "" {
		role = RoleInvestor
	}
	if !ValidRole(role) {
		return nil, ErrInvalidRole
	}
	if role == RoleAdmin {
		// Admin accounts are seeded, never self-registered.
		return nil, fmt.Errorf("%w: admin accounts cannot be registered", ErrInvalidRole)
	}

	if _, err := s.store.GetByName(ctx, name); err == nil {
		return nil, ErrNameTaken
	}

	now := time.Now()
	u := &User{
		ID:        idgen.WithPrefix("usr_"),
		Name:      name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.store.Get(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.store.List(ctx)
}

// Verify records an admin verification decision on a user account and
// notifies the account holder.
func (s *Service) Verify(ctx context.Context, id, adminID string, approve bool, reason string) (*User, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	u.Verified = approve
	u.VerificationReason = strings.TrimSpace(reason)
	u.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, u); err != nil {
		return nil, err
	}

	msg := "Your account has been verified"
	if !approve {
		msg = "Your account verification was declined"
		if u.VerificationReason != "" {
			msg += ": " + u.VerificationReason
		}
	}
	if s.notifier != nil {
		s.notifier.Add(ctx, u.ID, msg, notify.TypeAccount, "")
	}

	s.logger.Info("user verification updated",
		"user_id", u.ID, "verified", approve, "admin_id", adminID)
	return u, nil
}

// SeedAdmin creates a fixed admin account if it does not already exist.
// Used by the demo seeder.
func (s *Service) SeedAdmin(ctx context.Context, id, name string) (*User, error) {
	if u, err := s.store.Get(ctx, id); err == nil {
		return u, nil
	}
	now := time.Now()
	u := &User{
		ID:        id,
		Name:      name,
		Role:      RoleAdmin,
		Verified:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
