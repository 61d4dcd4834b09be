package payment

import "time"

// Checkout purchase types carried in session metadata and read back by the
// webhook reconciler.
const (
	TypeSubscription = "subscription"
	TypeOneTime      = "one_time"
)

// Metadata keys shared between checkout creation and webhook processing.
const (
	MetadataUserID = "user_id"
	MetadataType   = "type"
)

// CheckoutSession is the provider-neutral view of a Stripe checkout session.
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentStatus   string
	AmountTotal     int64
	Currency        string
	PaymentIntentID string
	CustomerID      string
	Metadata        map[string]string

	// SubscriptionID is set for subscription-mode sessions. Subscription is
	// only populated when the session was retrieved with expansion or the
	// webhook payload carried the full object.
	SubscriptionID string
	Subscription   *Subscription
}

// Subscription is the provider-neutral view of a Stripe subscription.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	Metadata          map[string]string
}

// CheckoutInput describes a checkout session to create.
type CheckoutInput struct {
	PriceID       string
	Type          string
	UserID        string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// Price is one purchasable price exposed to the billing page.
type Price struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitAmount  int64  `json:"unit_amount"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval,omitempty"`
	Type        string `json:"type"`
}
