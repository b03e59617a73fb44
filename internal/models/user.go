package models

import (
	"time"
)

// User roles
const (
	RoleUser      = "user"
	RoleDeveloper = "developer"
	RoleAdmin     = "admin"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string // "user", "developer", "admin"
	Verified     bool

	// One-time code state for email verification and password reset
	OTPSecret      string
	OTPExpiresAt   *time.Time
	ResetSecret    string
	ResetExpiresAt *time.Time

	// Subscription details
	Subscribed          bool
	SubscriptionPlan    *string // "basic", "pro", "enterprise"
	SubscriptionID      string  // Billing provider subscription reference
	SubscriptionEndsAt  *time.Time
	BillingCustomerID   string // Billing provider customer reference
	BillingCardholderID string // Billing provider cardholder reference (card issuance)

	// Wallet
	WalletBalanceCents int64
	Currency           string

	// Security state, mutated only by the authentication flow
	LoginAttempts int
	AccountLocked bool
	LockUntil     *time.Time
	LastLogin     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserStats are the aggregate account counts for the admin dashboard.
type UserStats struct {
	Total      int64 `json:"total"`
	Verified   int64 `json:"verified"`
	Subscribed int64 `json:"subscribed"`
	Locked     int64 `json:"locked"`
}

// HasActiveSubscription reports whether the user is currently entitled:
// subscribed and either open-ended or inside the paid period.
func (u *User) HasActiveSubscription() bool {
	return u.Subscribed && (u.SubscriptionEndsAt == nil || u.SubscriptionEndsAt.After(time.Now()))
}

// IsStaff reports whether the account is an internal one. Staff are not
// customers and are exempt from subscription entitlement checks.
func (u *User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RoleDeveloper
}
