package bonds

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/bondfi/bondfi/internal/idgen"
	"github.com/bondfi/bondfi/internal/metrics"
	"github.com/bondfi/bondfi/internal/notify"
	"github.com/bondfi/bondfi/internal/oracle"
	"github.com/bondfi/bondfi/internal/pricing"
	"github.com/bondfi/bondfi/internal/realtime"
	"github.com/bondfi/bondfi/internal/traces"
)

// Service implements the bond marketplace business logic.
type Service struct {
	store    Store
	oracle   *oracle.Service
	notifier *notify.Service
	hub      *realtime.Hub
	logger   *slog.Logger
	locks    sync.Map // per-bond ID locks
}

// NewService creates a bond service. notifier and hub may be nil.
func NewService(store Store, oracleSvc *oracle.Service, notifier *notify.Service, hub *realtime.Hub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		oracle:   oracleSvc,
		notifier: notifier,
		hub:      hub,
		logger:   logger,
	}
}

func (s *Service) bondLock(id string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// CreateBond lists a new bond in pending state. The bond's financial terms
// must survive the pricing engine's validation; a bond we cannot quote is a
// bond we cannot sell.
func (s *Service) CreateBond(ctx context.Context, req CreateBondRequest) (*Bond, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Issuer = strings.TrimSpace(req.Issuer)
	if req.Name == "" || req.Issuer == "" {
		return nil, fmt.Errorf("%w: name and issuer required", ErrInvalidRequest)
	}
	if req.TotalUnits <= 0 {
		return nil, fmt.Errorf("%w: totalUnits must be positive", ErrInvalidRequest)
	}
	if req.OracleScore != nil && (*req.OracleScore < 0 || *req.OracleScore > 100) {
		return nil, fmt.Errorf("%w: oracleScore must be between 0 and 100", ErrInvalidRequest)
	}

	// Validate terms through the pricing engine.
	if _, err := pricing.Quote(pricing.Input{
		FaceValue:      req.FaceValue,
		CouponRate:     req.CouponRate,
		PurchaseDate:   req.IssueDate,
		MaturityDate:   req.MaturityDate,
		PeriodsPerYear: req.PeriodsPerYear,
	}, req.IssueDate); err != nil {
		return nil, err
	}

	now := time.Now()
	b := &Bond{
		ID:             idgen.WithPrefix("bond_"),
		ListerID:       req.ListerID,
		Name:           req.Name,
		Issuer:         req.Issuer,
		FaceValue:      req.FaceValue,
		CouponRate:     req.CouponRate,
		PeriodsPerYear: req.PeriodsPerYear,
		IssueDate:      req.IssueDate,
		MaturityDate:   req.MaturityDate,
		TotalUnits:     req.TotalUnits,
		AvailableUnits: req.TotalUnits,
		UnitPrice:      req.FaceValue / float64(req.TotalUnits),
		OracleScore:    req.OracleScore,
		ApprovalStatus: StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.CreateBond(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create bond: %w", err)
	}

	metrics.BondsCreatedTotal.Inc()
	s.broadcast(realtime.EventBondCreated, map[string]interface{}{
		"bondId": b.ID, "name": b.Name, "issuer": b.Issuer,
	})
	s.logger.Info("bond submitted", "bond_id", b.ID, "lister_id", b.ListerID)
	return b, nil
}

// GetBond returns a bond by ID.
func (s *Service) GetBond(ctx context.Context, id string) (*Bond, error) {
	return s.store.GetBond(ctx, id)
}

// Market returns all approved bonds.
func (s *Service) Market(ctx context.Context) ([]*Bond, error) {
	return s.store.ListBonds(ctx, StatusApproved)
}

// Pending returns bonds awaiting an approval decision.
func (s *Service) Pending(ctx context.Context) ([]*Bond, error) {
	return s.store.ListBonds(ctx, StatusPending)
}

// OracleStatus resolves the bond's effective oracle verdict.
func (s *Service) OracleStatus(ctx context.Context, bondID string) (oracle.Status, error) {
	b, err := s.store.GetBond(ctx, bondID)
	if err != nil {
		return oracle.Status{}, err
	}
	return s.oracle.StatusFor(ctx, b.ID, b.OracleScore, b.Yield())
}

// ApproveBond finalizes a pending bond as approved or rejected. The decision
// is terminal: repeated calls on a finalized bond return Success=false with no
// state change and no error. The oracle gate is enforced by the caller, not
// here; this method records whatever decision the admin made.
func (s *Service) ApproveBond(ctx context.Context, bondID string, approve bool, adminID, reason string) (*ApprovalResult, error) {
	ctx, span := traces.StartSpan(ctx, "bonds.approve",
		traces.BondID(bondID), traces.AdminID(adminID))
	defer span.End()

	mu := s.bondLock(bondID)
	mu.Lock()
	defer mu.Unlock()

	b, err := s.store.GetBond(ctx, bondID)
	if err != nil {
		span.SetStatus(codes.Error, "bond not found")
		return nil, err
	}

	if b.ApprovalStatus != StatusPending {
		return &ApprovalResult{
			Success: false,
			Status:  b.ApprovalStatus,
			Reason:  "already finalized",
		}, nil
	}

	status, err := s.oracle.StatusFor(ctx, b.ID, b.OracleScore, b.Yield())
	if err != nil {
		span.SetStatus(codes.Error, "oracle resolution failed")
		return nil, err
	}

	outcome := StatusRejected
	event := realtime.EventBondRejected
	if approve {
		outcome = StatusApproved
		event = realtime.EventBondApproved
	}
	if reason == "" {
		reason = status.Reason
	}

	b.ApprovalStatus = outcome
	b.ApprovalReason = reason
	b.ApprovedBy = adminID
	b.UpdatedAt = time.Now()

	if err := s.store.UpdateBond(ctx, b); err != nil {
		span.SetStatus(codes.Error, "update failed")
		return nil, fmt.Errorf("failed to finalize approval: %w", err)
	}

	metrics.BondApprovalsTotal.WithLabelValues(string(outcome)).Inc()
	s.notifyApproval(ctx, b, approve)
	s.broadcast(event, map[string]interface{}{
		"bondId": b.ID, "status": string(outcome), "score": status.Score,
	})
	s.logger.Info("bond approval finalized",
		"bond_id", b.ID, "outcome", outcome, "admin_id", adminID, "score", status.Score)

	return &ApprovalResult{Success: true, Status: outcome, Reason: reason}, nil
}

func (s *Service) notifyApproval(ctx context.Context, b *Bond, approved bool) {
	if s.notifier == nil {
		return
	}
	if approved {
		s.notifier.Add(ctx, b.ListerID,
			fmt.Sprintf("%s has been approved and is live on the market", b.Name),
			notify.TypeBondApproved, b.ID)
		return
	}
	msg := fmt.Sprintf("%s was rejected", b.Name)
	if b.ApprovalReason != "" {
		msg += ": " + b.ApprovalReason
	}
	s.notifier.Add(ctx, b.ListerID, msg, notify.TypeBondRejected, b.ID)
}

// SetOracleOverride records a privileged score override for a bond.
func (s *Service) SetOracleOverride(ctx context.Context, bondID string, score float64, adminID, note string) (*oracle.Override, error) {
	if _, err := s.store.GetBond(ctx, bondID); err != nil {
		return nil, err
	}
	ov, err := s.oracle.SetOverride(ctx, bondID, score, adminID, note)
	if err != nil {
		return nil, err
	}
	metrics.OracleOverridesTotal.Inc()
	return ov, nil
}

// Purchase buys units of an approved bond on the primary market.
func (s *Service) Purchase(ctx context.Context, bondID, investorID string, units int) (*Purchase, error) {
	ctx, span := traces.StartSpan(ctx, "bonds.purchase",
		traces.BondID(bondID))
	defer span.End()

	if units <= 0 {
		return nil, fmt.Errorf("%w: units must be positive", ErrInvalidRequest)
	}

	mu := s.bondLock(bondID)
	mu.Lock()
	defer mu.Unlock()

	b, err := s.store.GetBond(ctx, bondID)
	if err != nil {
		span.SetStatus(codes.Error, "bond not found")
		return nil, err
	}
	if b.ApprovalStatus != StatusApproved {
		return nil, ErrNotApproved
	}
	if units > b.AvailableUnits {
		return nil, fmt.Errorf("%w: %d requested, %d available", ErrInsufficientUnits, units, b.AvailableUnits)
	}

	now := time.Now()
	p := &Purchase{
		ID:         idgen.WithPrefix("pur_"),
		BondID:     b.ID,
		InvestorID: investorID,
		Units:      units,
		UnitPrice:  b.UnitPrice,
		CostBasis:  round2(float64(units) * b.UnitPrice),
		Status:     PurchaseHeld,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.CreatePurchase(ctx, p); err != nil {
		span.SetStatus(codes.Error, "create purchase failed")
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	b.AvailableUnits -= units
	b.UpdatedAt = now
	if err := s.store.UpdateBond(ctx, b); err != nil {
		// Purchase exists but availability was not decremented. Surface loudly.
		s.logger.Error("failed to decrement bond availability after purchase",
			"bond_id", b.ID, "purchase_id", p.ID, "error", err)
		return nil, fmt.Errorf("failed to update bond availability: %w", err)
	}

	span.SetAttributes(traces.PurchaseID(p.ID), traces.Amount(p.CostBasis))
	metrics.PurchasesTotal.Inc()
	if s.notifier != nil {
		s.notifier.Add(ctx, b.ListerID,
			fmt.Sprintf("%d units of %s were purchased", units, b.Name),
			notify.TypePurchase, b.ID)
	}
	s.broadcast(realtime.EventPurchase, map[string]interface{}{
		"bondId": b.ID, "purchaseId": p.ID, "units": units, "amount": p.CostBasis,
	})
	s.logger.Info("bond purchased",
		"bond_id", b.ID, "purchase_id", p.ID, "investor_id", investorID, "units", units)

	return p, nil
}

// GetPurchase returns a holding by ID.
func (s *Service) GetPurchase(ctx context.Context, id string) (*Purchase, error) {
	return s.store.GetPurchase(ctx, id)
}

// PurchasesByInvestor returns an investor's holdings.
func (s *Service) PurchasesByInvestor(ctx context.Context, investorID string) ([]*Purchase, error) {
	return s.store.ListPurchasesByInvestor(ctx, investorID)
}

// QuoteResale computes the fair-market value of a holding if sold at asOf.
// The quote is derived on demand and never persisted.
func (s *Service) QuoteResale(ctx context.Context, purchaseID string, asOf time.Time) (*pricing.Result, error) {
	p, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetBond(ctx, p.BondID)
	if err != nil {
		return nil, err
	}

	res, err := pricing.Quote(pricing.Input{
		FaceValue:      p.CostBasis,
		CouponRate:     b.CouponRate,
		PurchaseDate:   b.IssueDate,
		MaturityDate:   b.MaturityDate,
		PeriodsPerYear: b.PeriodsPerYear,
	}, asOf)
	if err != nil {
		return nil, err
	}

	metrics.PricingQuotesTotal.Inc()
	return res, nil
}

// ListForSale puts a holding on the secondary market. The quote is recomputed
// at listing time and the confirmed value persisted with the listing.
func (s *Service) ListForSale(ctx context.Context, purchaseID, sellerID string, units int, askPrice float64) (*SaleListing, error) {
	p, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.InvestorID != sellerID {
		return nil, ErrUnauthorized
	}
	if p.Status != PurchaseHeld {
		return nil, fmt.Errorf("%w: holding is %s", ErrInvalidRequest, p.Status)
	}
	if units <= 0 || units > p.Units {
		return nil, fmt.Errorf("%w: %d requested, %d held", ErrInsufficientUnits, units, p.Units)
	}
	if askPrice <= 0 {
		return nil, fmt.Errorf("%w: askPrice must be positive", ErrInvalidRequest)
	}

	quote, err := s.QuoteResale(ctx, purchaseID, time.Now())
	if err != nil {
		return nil, err
	}

	b, err := s.store.GetBond(ctx, p.BondID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	l := &SaleListing{
		ID:          idgen.WithPrefix("lst_"),
		PurchaseID:  p.ID,
		BondID:      p.BondID,
		SellerID:    sellerID,
		Units:       units,
		AskPrice:    askPrice,
		QuotedValue: quote.FairMarketValue,
		Status:      ListingOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateListing(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	p.Status = PurchaseListed
	p.UpdatedAt = now
	if err := s.store.UpdatePurchase(ctx, p); err != nil {
		s.logger.Error("failed to mark purchase as listed",
			"purchase_id", p.ID, "listing_id", l.ID, "error", err)
		return nil, fmt.Errorf("failed to update holding: %w", err)
	}

	metrics.SaleListingsTotal.Inc()
	if s.notifier != nil {
		s.notifier.Add(ctx, sellerID,
			fmt.Sprintf("Your %s holding is listed for sale at %.2f (quoted value %.2f)",
				b.Name, askPrice, l.QuotedValue),
			notify.TypeSaleListing, b.ID)
	}
	s.broadcast(realtime.EventSaleListing, map[string]interface{}{
		"bondId": b.ID, "listingId": l.ID, "units": units, "amount": askPrice,
	})
	s.logger.Info("holding listed for sale",
		"listing_id", l.ID, "purchase_id", p.ID, "ask_price", askPrice, "quoted_value", l.QuotedValue)

	return l, nil
}

// CancelListing withdraws an open listing and returns the holding to held.
func (s *Service) CancelListing(ctx context.Context, listingID, sellerID string) (*SaleListing, error) {
	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.SellerID != sellerID {
		return nil, ErrUnauthorized
	}
	if l.Status != ListingOpen {
		return nil, fmt.Errorf("%w: listing is %s", ErrInvalidRequest, l.Status)
	}

	now := time.Now()
	l.Status = ListingCancelled
	l.UpdatedAt = now
	if err := s.store.UpdateListing(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to cancel listing: %w", err)
	}

	if p, err := s.store.GetPurchase(ctx, l.PurchaseID); err == nil {
		p.Status = PurchaseHeld
		p.UpdatedAt = now
		if err := s.store.UpdatePurchase(ctx, p); err != nil {
			s.logger.Warn("failed to return holding to held after cancel",
				"purchase_id", p.ID, "error", err)
		}
	}

	return l, nil
}

// OpenListings returns the secondary market.
func (s *Service) OpenListings(ctx context.Context) ([]*SaleListing, error) {
	return s.store.ListOpenListings(ctx)
}

func (s *Service) broadcast(typ realtime.EventType, data map[string]interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastBondEvent(typ, data)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
