package pricing

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testInput() Input {
	return Input{
		FaceValue:    100000,
		CouponRate:   8,
		PurchaseDate: date(2024, time.January, 1),
		MaturityDate: date(2025, time.January, 1),
	}
}

func mustQuote(t *testing.T, in Input, asOf time.Time) *Result {
	t.Helper()
	res, err := Quote(in, asOf)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	return res
}

// =========================================================================
// Validation
// =========================================================================

func TestQuoteRejectsInvalidInput(t *testing.T) {
	asOf := date(2024, time.July, 1)

	cases := []struct {
		name   string
		mutate func(*Input)
	}{
		{"zero face value", func(in *Input) { in.FaceValue = 0 }},
		{"negative face value", func(in *Input) { in.FaceValue = -500 }},
		{"negative coupon rate", func(in *Input) { in.CouponRate = -1 }},
		{"inverted dates", func(in *Input) {
			in.PurchaseDate, in.MaturityDate = in.MaturityDate, in.PurchaseDate
		}},
		{"equal dates", func(in *Input) { in.MaturityDate = in.PurchaseDate }},
		{"zero purchase date", func(in *Input) { in.PurchaseDate = time.Time{} }},
		{"bad period count", func(in *Input) { in.PeriodsPerYear = 3 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := testInput()
			tc.mutate(&in)
			_, err := Quote(in, asOf)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

// =========================================================================
// At and after maturity
// =========================================================================

func TestQuoteAtMaturityReturnsFaceValue(t *testing.T) {
	in := testInput()

	for _, asOf := range []time.Time{
		in.MaturityDate,
		in.MaturityDate.AddDate(0, 3, 0),
		in.MaturityDate.Add(5 * time.Hour), // same calendar day
	} {
		res := mustQuote(t, in, asOf)
		if res.IsBeforeMaturity {
			t.Errorf("asOf %v: expected IsBeforeMaturity=false", asOf)
		}
		if res.FairMarketValue != in.FaceValue {
			t.Errorf("asOf %v: expected FMV %v, got %v", asOf, in.FaceValue, res.FairMarketValue)
		}
		if res.DaysUntilMaturity != 0 || res.RemainingPeriods != 0 {
			t.Errorf("asOf %v: expected zero days/periods, got %d/%d",
				asOf, res.DaysUntilMaturity, res.RemainingPeriods)
		}
		if res.ForfeitedInterest != 0 || res.DiscountAmount != 0 || res.DiscountPercentage != 0 {
			t.Errorf("asOf %v: expected zero discounts", asOf)
		}
	}
}

// =========================================================================
// Mid-tenure scenario
// =========================================================================

func TestQuoteMidTenure(t *testing.T) {
	in := testInput()
	res := mustQuote(t, in, date(2024, time.July, 1))

	if !res.IsBeforeMaturity {
		t.Error("expected IsBeforeMaturity=true")
	}
	if res.DaysUntilMaturity != 184 {
		t.Errorf("expected 184 days until maturity, got %d", res.DaysUntilMaturity)
	}
	// 184 days / 182.5-day semiannual period rounds up to 2 coupons forgone.
	if res.RemainingPeriods != 2 {
		t.Errorf("expected 2 remaining periods, got %d", res.RemainingPeriods)
	}
	// 2 x (100000 * 8% / 2) = 8000
	if res.ForfeitedInterest != 8000 {
		t.Errorf("expected 8000 forfeited interest, got %v", res.ForfeitedInterest)
	}
	if res.FairMarketValue <= 0 || res.FairMarketValue >= 100000 {
		t.Errorf("expected FMV strictly inside (0, 100000), got %v", res.FairMarketValue)
	}
}

func TestQuoteZeroCouponStillDiscounts(t *testing.T) {
	in := testInput()
	in.CouponRate = 0

	res := mustQuote(t, in, date(2024, time.July, 1))
	if res.ForfeitedInterest != 0 {
		t.Errorf("expected no forfeited interest, got %v", res.ForfeitedInterest)
	}
	if res.DiscountAmount <= 0 {
		t.Errorf("expected a positive liquidity discount, got %v", res.DiscountAmount)
	}
	if res.FairMarketValue >= in.FaceValue {
		t.Errorf("expected FMV below face, got %v", res.FairMarketValue)
	}
}

func TestQuoteTimeOfDayIgnored(t *testing.T) {
	in := testInput()
	morning := mustQuote(t, in, time.Date(2024, time.July, 1, 1, 2, 3, 0, time.UTC))
	evening := mustQuote(t, in, time.Date(2024, time.July, 1, 23, 59, 59, 0, time.UTC))

	if *morning != *evening {
		t.Errorf("expected identical results across the day: %+v vs %+v", morning, evening)
	}
}

// =========================================================================
// Properties
// =========================================================================

func TestQuoteFMVBoundedByFaceValue(t *testing.T) {
	// Even a punishing coupon cannot push the value below zero.
	in := Input{
		FaceValue:      1000,
		CouponRate:     95,
		PurchaseDate:   date(2020, time.January, 1),
		MaturityDate:   date(2030, time.January, 1),
		PeriodsPerYear: 12,
	}

	for asOf := in.PurchaseDate; asOf.Before(in.MaturityDate); asOf = asOf.AddDate(0, 6, 0) {
		res := mustQuote(t, in, asOf)
		if res.FairMarketValue < 0 || res.FairMarketValue > in.FaceValue {
			t.Fatalf("asOf %v: FMV %v outside [0, %v]", asOf, res.FairMarketValue, in.FaceValue)
		}
	}
}

func TestQuoteMonotonicInDaysRemaining(t *testing.T) {
	in := testInput()

	// Walking asOf backwards from maturity increases days remaining;
	// the fair value must never increase along the way.
	prev := mustQuote(t, in, in.MaturityDate)
	for d := 1; d <= 366; d += 7 {
		res := mustQuote(t, in, in.MaturityDate.AddDate(0, 0, -d))
		if res.DaysUntilMaturity <= prev.DaysUntilMaturity {
			t.Fatalf("days remaining did not increase: %d then %d",
				prev.DaysUntilMaturity, res.DaysUntilMaturity)
		}
		if res.FairMarketValue > prev.FairMarketValue {
			t.Fatalf("FMV increased with more days remaining: %v (%d days) > %v (%d days)",
				res.FairMarketValue, res.DaysUntilMaturity,
				prev.FairMarketValue, prev.DaysUntilMaturity)
		}
		if res.DiscountPercentage < prev.DiscountPercentage {
			t.Fatalf("discount shrank with more days remaining: %v < %v",
				res.DiscountPercentage, prev.DiscountPercentage)
		}
		prev = res
	}
}

func TestQuoteIsPure(t *testing.T) {
	in := testInput()
	asOf := date(2024, time.April, 15)

	first := mustQuote(t, in, asOf)
	for i := 0; i < 10; i++ {
		again := mustQuote(t, in, asOf)
		if *again != *first {
			t.Fatalf("call %d differed: %+v vs %+v", i, again, first)
		}
	}
}
