package constants

// Static route constants
const (
	LoginRoute   = "/login"
	BillingRoute = "/billing"
	AccountRoute = "/account"

	// URL prefix protected by the premium route gate
	PremiumPrefix = "/games/premium/"
)
