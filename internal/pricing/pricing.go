// Package pricing computes the fair secondary-market resale value of a
// fixed-rate bond holding ahead of maturity.
//
// A seller who exits early forgoes the remaining coupon payments, so the
// resale price discounts the face value by that forfeited interest plus a
// liquidity discount proportional to the tenure still outstanding. The
// conventions are deliberately simple and deterministic:
//
//   - Whole calendar days, UTC date truncation (time of day ignored).
//   - remainingPeriods = ceil(daysUntilMaturity / (365 / periodsPerYear)).
//   - discountPercentage = 15% x (daysUntilMaturity / tenureDays), so it is
//     zero at maturity and grows monotonically with time remaining.
//
// Quote is pure arithmetic over dates — no I/O, no caching — and callers
// recompute it on every quantity or date change.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidInput is returned for malformed pricing requests.
var ErrInvalidInput = errors.New("invalid pricing input")

const (
	// DefaultPeriodsPerYear is the coupon frequency assumed when the bond
	// does not declare one (semiannual).
	DefaultPeriodsPerYear = 2

	// MaxLiquidityDiscountPct caps the liquidity discount applied to a bond
	// sold the day it was purchased (full tenure remaining).
	MaxLiquidityDiscountPct = 15.0

	daysPerYear = 365.0
)

// Input describes one fixed-rate bond holding to be priced.
type Input struct {
	FaceValue      float64   `json:"faceValue"`      // nominal principal, > 0
	CouponRate     float64   `json:"couponRate"`     // annual percent, e.g. 7.5 means 7.5%/yr
	PurchaseDate   time.Time `json:"purchaseDate"`   // start of the holding
	MaturityDate   time.Time `json:"maturityDate"`   // must be after PurchaseDate
	PeriodsPerYear int       `json:"periodsPerYear"` // 1, 2, 4 or 12; 0 means DefaultPeriodsPerYear
}

// Result is the derived valuation. It is recomputed on demand and never
// persisted as authoritative state — only a confirmed listing price is.
type Result struct {
	OriginalValue      float64 `json:"originalValue"`
	IsBeforeMaturity   bool    `json:"isBeforeMaturity"`
	DaysUntilMaturity  int     `json:"daysUntilMaturity"`
	RemainingPeriods   int     `json:"remainingPeriods"`
	ForfeitedInterest  float64 `json:"forfeitedInterest"`
	DiscountPercentage float64 `json:"discountPercentage"`
	DiscountAmount     float64 `json:"discountAmount"`
	FairMarketValue    float64 `json:"fairMarketValue"`
}

// Quote computes the fair market value of the holding as of the given time.
// At or after maturity the holding is worth exactly its face value; before
// maturity the value is discounted and clamped to [0, faceValue].
func Quote(in Input, asOf time.Time) (*Result, error) {
	periods := in.PeriodsPerYear
	if periods == 0 {
		periods = DefaultPeriodsPerYear
	}
	if err := validate(in, periods); err != nil {
		return nil, err
	}

	res := &Result{OriginalValue: round2(in.FaceValue)}

	day := truncateDay(asOf)
	maturity := truncateDay(in.MaturityDate)
	if !day.Before(maturity) {
		res.FairMarketValue = res.OriginalValue
		return res, nil
	}

	res.IsBeforeMaturity = true
	res.DaysUntilMaturity = daysBetween(day, maturity)

	periodLengthDays := daysPerYear / float64(periods)
	res.RemainingPeriods = int(math.Ceil(float64(res.DaysUntilMaturity) / periodLengthDays))

	couponPerPeriod := in.FaceValue * (in.CouponRate / 100.0) / float64(periods)
	res.ForfeitedInterest = round2(couponPerPeriod * float64(res.RemainingPeriods))

	// Tenure fraction still outstanding drives the liquidity discount.
	// asOf earlier than the purchase date clamps to the full tenure.
	tenureDays := daysBetween(truncateDay(in.PurchaseDate), maturity)
	fraction := float64(res.DaysUntilMaturity) / float64(tenureDays)
	if fraction > 1 {
		fraction = 1
	}
	res.DiscountPercentage = round2(MaxLiquidityDiscountPct * fraction)
	res.DiscountAmount = round2(in.FaceValue * res.DiscountPercentage / 100.0)

	fmv := in.FaceValue - res.ForfeitedInterest - res.DiscountAmount
	if fmv < 0 {
		fmv = 0
	}
	if fmv > in.FaceValue {
		fmv = in.FaceValue
	}
	res.FairMarketValue = round2(fmv)

	return res, nil
}

func validate(in Input, periods int) error {
	if in.FaceValue <= 0 {
		return fmt.Errorf("%w: faceValue must be positive", ErrInvalidInput)
	}
	if in.CouponRate < 0 {
		return fmt.Errorf("%w: couponRate must not be negative", ErrInvalidInput)
	}
	if in.PurchaseDate.IsZero() || in.MaturityDate.IsZero() {
		return fmt.Errorf("%w: purchaseDate and maturityDate are required", ErrInvalidInput)
	}
	if !truncateDay(in.MaturityDate).After(truncateDay(in.PurchaseDate)) {
		return fmt.Errorf("%w: maturityDate must be after purchaseDate", ErrInvalidInput)
	}
	switch periods {
	case 1, 2, 4, 12:
	default:
		return fmt.Errorf("%w: periodsPerYear must be 1, 2, 4 or 12", ErrInvalidInput)
	}
	return nil
}

// truncateDay strips the time-of-day component in UTC.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the whole days from a to b; both must be day-truncated.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
