package bonds

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bondfi/bondfi/internal/testutil"
)

func pgBond(id string) *Bond {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Bond{
		ID:             id,
		ListerID:       "usr_lister",
		Name:           "Treasury Note 2031",
		Issuer:         "Ministry of Finance",
		FaceValue:      100000,
		CouponRate:     8,
		PeriodsPerYear: 2,
		IssueDate:      now.AddDate(-1, 0, 0),
		MaturityDate:   now.AddDate(1, 0, 0),
		TotalUnits:     100,
		AvailableUnits: 100,
		UnitPrice:      1000,
		ApprovalStatus: StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestPostgresBondRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	b := pgBond("bond_pg1")
	score := 92.0
	b.OracleScore = &score
	if err := store.CreateBond(ctx, b); err != nil {
		t.Fatalf("CreateBond: %v", err)
	}

	got, err := store.GetBond(ctx, "bond_pg1")
	if err != nil {
		t.Fatalf("GetBond: %v", err)
	}
	if got.Name != b.Name || got.FaceValue != b.FaceValue {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.OracleScore == nil || *got.OracleScore != 92 {
		t.Errorf("expected oracle score 92, got %v", got.OracleScore)
	}

	got.ApprovalStatus = StatusApproved
	got.ApprovedBy = "usr_admin"
	got.AvailableUnits = 90
	got.UpdatedAt = time.Now().UTC()
	if err := store.UpdateBond(ctx, got); err != nil {
		t.Fatalf("UpdateBond: %v", err)
	}

	approved, err := store.ListBonds(ctx, StatusApproved)
	if err != nil {
		t.Fatalf("ListBonds: %v", err)
	}
	if len(approved) != 1 || approved[0].AvailableUnits != 90 {
		t.Errorf("expected one approved bond with 90 units, got %+v", approved)
	}

	pending, err := store.ListBonds(ctx, StatusPending)
	if err != nil {
		t.Fatalf("ListBonds pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending bonds, got %d", len(pending))
	}
}

func TestPostgresBondNotFound(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	if _, err := store.GetBond(context.Background(), "bond_missing"); !errors.Is(err, ErrBondNotFound) {
		t.Errorf("expected ErrBondNotFound, got %v", err)
	}
	if err := store.UpdateBond(context.Background(), pgBond("bond_missing")); !errors.Is(err, ErrBondNotFound) {
		t.Errorf("expected ErrBondNotFound on update, got %v", err)
	}
}

func TestPostgresPurchaseAndListing(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	b := pgBond("bond_pg2")
	if err := store.CreateBond(ctx, b); err != nil {
		t.Fatalf("CreateBond: %v", err)
	}

	p := &Purchase{
		ID:         "pur_pg1",
		BondID:     b.ID,
		InvestorID: "usr_investor",
		Units:      10,
		UnitPrice:  1000,
		CostBasis:  10000,
		Status:     PurchaseHeld,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.CreatePurchase(ctx, p); err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}

	mine, err := store.ListPurchasesByInvestor(ctx, "usr_investor")
	if err != nil {
		t.Fatalf("ListPurchasesByInvestor: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "pur_pg1" {
		t.Errorf("expected one purchase, got %+v", mine)
	}

	l := &SaleListing{
		ID:          "lst_pg1",
		PurchaseID:  p.ID,
		BondID:      b.ID,
		SellerID:    "usr_investor",
		Units:       10,
		AskPrice:    9000,
		QuotedValue: 8450,
		Status:      ListingOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateListing(ctx, l); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	open, err := store.ListOpenListings(ctx)
	if err != nil {
		t.Fatalf("ListOpenListings: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected one open listing, got %d", len(open))
	}

	l.Status = ListingCancelled
	l.UpdatedAt = time.Now().UTC()
	if err := store.UpdateListing(ctx, l); err != nil {
		t.Fatalf("UpdateListing: %v", err)
	}

	open, _ = store.ListOpenListings(ctx)
	if len(open) != 0 {
		t.Errorf("expected cancelled listing hidden from market, got %d", len(open))
	}
}
