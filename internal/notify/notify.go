// Package notify delivers in-app notifications to platform users.
//
// Producers fire and forget: delivery failures are logged, never propagated,
// so a broken inbox can not block an approval or a trade. Consumers read
// their inbox through the HTTP handlers.
package notify

import (
	"context"
	"errors"
	"time"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Type categorizes a notification for the client UI.
type Type string

const (
	TypeBondApproved Type = "bond_approved"
	TypeBondRejected Type = "bond_rejected"
	TypePurchase     Type = "purchase"
	TypeSaleListing  Type = "sale_listing"
	TypeAccount      Type = "account"
)

// Notification is one inbox entry for a user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	BondID    string    `json:"bondId,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string) (*Notification, error)
	Update(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
}
