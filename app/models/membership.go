package models

import "time"

// Subscription status values as reported by Stripe. The local row mirrors the
// provider's view; access decisions only ever look at these strings.
const (
	MembershipStatusActive            = "active"
	MembershipStatusTrialing          = "trialing"
	MembershipStatusPastDue           = "past_due"
	MembershipStatusCanceled          = "canceled"
	MembershipStatusIncomplete        = "incomplete"
	MembershipStatusIncompleteExpired = "incomplete_expired"
	MembershipStatusUnpaid            = "unpaid"
)

const (
	MembershipTypeSubscription = "subscription"
	MembershipTypeOneTime      = "one_time"
)

// Membership is the local record of a user's entitlement state. Stripe is the
// source of truth for transitions; this row is authoritative for access
// control. One row per user: concurrent webhook delivery must converge on a
// single record, so user_id carries a unique index and all writes go through
// an upsert keyed on it.
type Membership struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;uniqueIndex:ux_memberships_user" json:"user_id"`
	Status               string     `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	Type                 string     `gorm:"type:varchar(16);not null;default:'subscription'" json:"type"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);index:idx_memberships_stripe_sub" json:"stripe_subscription_id"`
	StripeCustomerID     string     `gorm:"type:varchar(191)" json:"stripe_customer_id"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
