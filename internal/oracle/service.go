package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bondfi/bondfi/internal/idgen"
)

// Service resolves effective oracle scores and records admin overrides.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates an oracle service backed by the given override store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// StatusFor resolves the effective score for a bond and classifies it.
// reported is the score captured at submission, if any; yieldPct feeds the
// fallback when nothing else is available.
func (s *Service) StatusFor(ctx context.Context, bondID string, reported *float64, yieldPct float64) (Status, error) {
	if ov, err := s.store.LatestByBond(ctx, bondID); err == nil {
		st := Evaluate(ov.Score)
		st.Source = "override"
		return st, nil
	} else if !errors.Is(err, ErrNoOverride) {
		return Status{}, fmt.Errorf("failed to look up oracle override: %w", err)
	}

	if reported != nil {
		st := Evaluate(*reported)
		st.Source = "reported"
		return st, nil
	}

	st := Evaluate(FallbackScore(yieldPct))
	st.Source = "derived"
	return st, nil
}

// SetOverride records a privileged admin score override. This is the
// deliberate escape hatch around the verification feed, so it is always
// audited and logged loudly.
func (s *Service) SetOverride(ctx context.Context, bondID string, score float64, adminID, note string) (*Override, error) {
	if score < 0 || score > 100 {
		return nil, ErrInvalidScore
	}

	ov := &Override{
		ID:        idgen.WithPrefix("ovr_"),
		BondID:    bondID,
		Score:     score,
		AdminID:   adminID,
		Note:      note,
		CreatedAt: time.Now(),
	}

	if err := s.store.Create(ctx, ov); err != nil {
		return nil, fmt.Errorf("failed to record oracle override: %w", err)
	}

	s.logger.Warn("oracle score overridden",
		"bond_id", bondID,
		"score", score,
		"admin_id", adminID,
		"note", note,
	)

	return ov, nil
}

// History returns the override trail for a bond, newest first.
func (s *Service) History(ctx context.Context, bondID string, limit int) ([]*Override, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByBond(ctx, bondID, limit)
}
