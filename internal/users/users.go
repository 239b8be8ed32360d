// Package users provides demo account management for the BondFi platform.
package users

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrUserNotFound = errors.New("users: not found")
	ErrNameTaken    = errors.New("users: name already taken")
	ErrInvalidRole  = errors.New("users: invalid role")
	ErrInvalidName  = errors.New("users: invalid name")
)

// Role identifies what a user can do on the platform.
type Role string

const (
	RoleInvestor  Role = "investor"
	RoleLister    Role = "lister"
	RoleCustodian Role = "custodian"
	RoleAdmin     Role = "admin"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleInvestor, RoleLister, RoleCustodian, RoleAdmin:
		return true
	}
	return false
}

// User represents a platform account. Identity is demo-grade: callers
// present their user ID in the X-User-ID header, no credentials involved.
type User struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Role               Role      `json:"role"`
	Verified           bool      `json:"verified"`
	VerificationReason string    `json:"verificationReason,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Store persists users.
type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByName(ctx context.Context, name string) (*User, error)
	Update(ctx context.Context, u *User) error
	List(ctx context.Context) ([]*User, error)
}
