// Package oracle implements the oracle-score gate for bond approval.
//
// Every submitted bond carries an effective verification score in [0, 100].
// Resolution precedence:
//  1. The latest audited admin override for the bond
//  2. The score reported by the verification feed at submission
//  3. A deterministic fallback derived from the bond's coupon yield
//
// The score classifies into exactly three bands. Only "Verified" bonds can be
// approved through the normal admin path; the override trail exists because
// admins may deliberately bypass the gate, and every such bypass is recorded.
package oracle

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoOverride   = errors.New("no oracle override recorded")
	ErrInvalidScore = errors.New("oracle score must be between 0 and 100")
)

// Classification thresholds.
const (
	VerifiedThreshold = 85 // score >= 85: approvable without intervention
	ReviewThreshold   = 30 // 30 <= score < 85: held for manual review
)

// Labels and blocking reasons surfaced to the admin UI.
const (
	LabelVerified      = "Verified"
	LabelPendingReview = "Pending Review"
	LabelRateFlagged   = "Rate Flagged"

	ReasonManualReview       = "requires manual review"
	ReasonFailedVerification = "failed oracle verification"
)

// Yield plausibility bands for the fallback score. A sovereign bond paying
// more than these rates is either mispriced or misentered, so it scores low
// and lands in manual review or outright flagging.
const (
	plausibleYieldPct = 10.0
	elevatedYieldPct  = 15.0

	fallbackPlausibleScore = 90.0
	fallbackElevatedScore  = 60.0
	fallbackFlaggedScore   = 20.0
)

// Status is the derived verdict for a bond. It is recomputed on demand and
// never cached persistently.
type Status struct {
	Score      float64 `json:"score"`
	Source     string  `json:"source"` // "override", "reported" or "derived"
	Label      string  `json:"label"`
	Reason     string  `json:"reason,omitempty"` // populated when blocking
	CanApprove bool    `json:"canApprove"`
}

// Evaluate classifies a score into the three approval bands.
func Evaluate(score float64) Status {
	st := Status{Score: score}
	switch {
	case score >= VerifiedThreshold:
		st.Label = LabelVerified
		st.CanApprove = true
	case score >= ReviewThreshold:
		st.Label = LabelPendingReview
		st.Reason = ReasonManualReview
	default:
		st.Label = LabelRateFlagged
		st.Reason = ReasonFailedVerification
	}
	return st
}

// FallbackScore derives a score from the bond's annual coupon yield when
// neither an override nor a reported score exists.
func FallbackScore(yieldPct float64) float64 {
	switch {
	case yieldPct <= plausibleYieldPct:
		return fallbackPlausibleScore
	case yieldPct <= elevatedYieldPct:
		return fallbackElevatedScore
	default:
		return fallbackFlaggedScore
	}
}

// Override is one audited admin score override. The trail is append-only;
// the latest entry wins.
type Override struct {
	ID        string    `json:"id"`
	BondID    string    `json:"bondId"`
	Score     float64   `json:"score"`
	AdminID   string    `json:"adminId"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists the override audit trail.
type Store interface {
	Create(ctx context.Context, o *Override) error
	LatestByBond(ctx context.Context, bondID string) (*Override, error)
	ListByBond(ctx context.Context, bondID string, limit int) ([]*Override, error)
}
