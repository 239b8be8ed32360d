// Package bonds implements the tokenized bond lifecycle: listing, oracle-gated
// approval, primary purchases, and early-exit resale quoting.
package bonds

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrBondNotFound      = errors.New("bonds: bond not found")
	ErrPurchaseNotFound  = errors.New("bonds: purchase not found")
	ErrListingNotFound   = errors.New("bonds: listing not found")
	ErrAlreadyFinalized  = errors.New("bonds: approval already finalized")
	ErrNotApproved       = errors.New("bonds: bond not approved for sale")
	ErrInsufficientUnits = errors.New("bonds: insufficient units available")
	ErrUnauthorized      = errors.New("bonds: caller does not own this resource")
	ErrInvalidRequest    = errors.New("bonds: invalid request")
)

// ApprovalStatus is a bond's position in the approval state machine.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// PurchaseStatus tracks what a holding is currently doing.
type PurchaseStatus string

const (
	PurchaseHeld   PurchaseStatus = "held"
	PurchaseListed PurchaseStatus = "listed"
	PurchaseSold   PurchaseStatus = "sold"
)

// ListingStatus tracks a secondary-market sale listing.
type ListingStatus string

const (
	ListingOpen      ListingStatus = "open"
	ListingCancelled ListingStatus = "cancelled"
	ListingFilled    ListingStatus = "filled"
)

// Bond is a tokenized government bond listed on the platform.
type Bond struct {
	ID             string         `json:"id"`
	ListerID       string         `json:"listerId"`
	Name           string         `json:"name"`
	Issuer         string         `json:"issuer"`
	FaceValue      float64        `json:"faceValue"`
	CouponRate     float64        `json:"couponRate"` // annual percent
	PeriodsPerYear int            `json:"periodsPerYear"`
	IssueDate      time.Time      `json:"issueDate"`
	MaturityDate   time.Time      `json:"maturityDate"`
	TotalUnits     int            `json:"totalUnits"`
	AvailableUnits int            `json:"availableUnits"`
	UnitPrice      float64        `json:"unitPrice"`
	OracleScore    *float64       `json:"oracleScore,omitempty"` // reported by the rate oracle, may be absent
	ApprovalStatus ApprovalStatus `json:"approvalStatus"`
	ApprovalReason string         `json:"approvalReason,omitempty"`
	ApprovedBy     string         `json:"approvedBy,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Yield returns the bond's annual coupon yield in percent.
func (b *Bond) Yield() float64 {
	return b.CouponRate
}

// Purchase is an investor's holding in a bond.
type Purchase struct {
	ID         string         `json:"id"`
	BondID     string         `json:"bondId"`
	InvestorID string         `json:"investorId"`
	Units      int            `json:"units"`
	UnitPrice  float64        `json:"unitPrice"`
	CostBasis  float64        `json:"costBasis"`
	Status     PurchaseStatus `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// SaleListing is a holding offered for early resale.
type SaleListing struct {
	ID          string        `json:"id"`
	PurchaseID  string        `json:"purchaseId"`
	BondID      string        `json:"bondId"`
	SellerID    string        `json:"sellerId"`
	Units       int           `json:"units"`
	AskPrice    float64       `json:"askPrice"`
	QuotedValue float64       `json:"quotedValue"` // fair-market value at listing time
	Status      ListingStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ApprovalResult reports the outcome of an approval attempt.
type ApprovalResult struct {
	Success bool           `json:"success"`
	Status  ApprovalStatus `json:"status"`
	Reason  string         `json:"reason,omitempty"`
}

// CreateBondRequest carries the fields needed to list a bond.
type CreateBondRequest struct {
	ListerID       string    `json:"-"`
	Name           string    `json:"name" binding:"required"`
	Issuer         string    `json:"issuer" binding:"required"`
	FaceValue      float64   `json:"faceValue" binding:"required"`
	CouponRate     float64   `json:"couponRate"`
	PeriodsPerYear int       `json:"periodsPerYear"`
	IssueDate      time.Time `json:"issueDate" binding:"required"`
	MaturityDate   time.Time `json:"maturityDate" binding:"required"`
	TotalUnits     int       `json:"totalUnits" binding:"required"`
	OracleScore    *float64  `json:"oracleScore"`
}

// Store persists bonds, purchases, and sale listings.
type Store interface {
	CreateBond(ctx context.Context, b *Bond) error
	GetBond(ctx context.Context, id string) (*Bond, error)
	UpdateBond(ctx context.Context, b *Bond) error
	ListBonds(ctx context.Context, status ApprovalStatus) ([]*Bond, error)

	CreatePurchase(ctx context.Context, p *Purchase) error
	GetPurchase(ctx context.Context, id string) (*Purchase, error)
	UpdatePurchase(ctx context.Context, p *Purchase) error
	ListPurchasesByInvestor(ctx context.Context, investorID string) ([]*Purchase, error)

	CreateListing(ctx context.Context, l *SaleListing) error
	GetListing(ctx context.Context, id string) (*SaleListing, error)
	UpdateListing(ctx context.Context, l *SaleListing) error
	ListOpenListings(ctx context.Context) ([]*SaleListing, error)
}
