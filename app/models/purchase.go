package models

import "time"

const (
	PurchaseStatusCompleted = "completed"
	PurchaseStatusPending   = "pending"
	PurchaseStatusFailed    = "failed"
)

// Purchase is the immutable record of one completed payment. The Stripe
// checkout session id carries a unique index and acts as the idempotence key:
// the webhook path and the manual verification path race for the insert, and
// whichever loses the conflict treats the purchase as already processed.
type Purchase struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	UserID                uint      `gorm:"not null;index" json:"user_id"`
	StripeSessionID       string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_purchases_stripe_session" json:"stripe_session_id"`
	StripePaymentIntentID string    `gorm:"type:varchar(191)" json:"stripe_payment_intent_id"`
	Amount                int64     `gorm:"not null;default:0" json:"amount"`
	Currency              string    `gorm:"type:varchar(8);not null;default:'usd'" json:"currency"`
	Status                string    `gorm:"type:varchar(16);not null;default:'completed'" json:"status"`
	ProductName           string    `gorm:"type:varchar(191)" json:"product_name"`
	CreatedAt             time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
