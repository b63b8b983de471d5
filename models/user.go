package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscription statuses mirror Stripe's subscription.status values plus the
// local trial states.
const (
	SubscriptionTrialing = "trialing"
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
	SubscriptionExpired  = "expired"
)

// User is a tenant account. Every other entity is owned by exactly one user.
type User struct {
	gorm.Model

	// Authentication fields
	Email             string  `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash      string  `gorm:"not null" json:"-"`
	EmailVerified     bool    `gorm:"not null" json:"email_verified"`
	VerificationToken *string `gorm:"index" json:"-"`

	// Billing
	TrialEndsAt          *time.Time `json:"trial_ends_at"`
	SubscriptionStatus   string     `gorm:"not null;default:'trialing'" json:"subscription_status"`
	StripeCustomerID     *string    `gorm:"index" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string    `gorm:"index" json:"stripe_subscription_id,omitempty"`

	// Relations
	Sessions []Session `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// HasActiveSubscription reports whether the status grants access to paid features.
func HasActiveSubscription(status string) bool {
	switch status {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue:
		return true
	}
	return false
}

// Session backs one refresh token. The token handed to the client is
// "<session id>.<secret>"; only a bcrypt hash of the secret is stored.
type Session struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	UserID           uint      `gorm:"not null;index" json:"user_id"`
	RefreshTokenHash string    `gorm:"not null" json:"-"`
	ExpiresAt        time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
}
