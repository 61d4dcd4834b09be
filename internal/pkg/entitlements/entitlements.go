package entitlements

import (
	"strings"

	"github.com/TobiasWagner/GameVault/app/models"
)

// IsActive reports whether a membership status releases premium content.
// The route gate only honors a fully active subscription; trialing users are
// allowed to start checkouts but are not granted premium access early.
func IsActive(status string) bool {
	return strings.ToLower(strings.TrimSpace(status)) == models.MembershipStatusActive
}

// BlocksNewSubscription reports whether an existing membership status must
// reject a new subscription-type checkout.
func BlocksNewSubscription(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.MembershipStatusActive, models.MembershipStatusTrialing:
		return true
	default:
		return false
	}
}

// KnownStatus reports whether a provider-reported status is one the local
// model understands. Unknown strings are stored as-is but logged upstream.
func KnownStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.MembershipStatusActive,
		models.MembershipStatusTrialing,
		models.MembershipStatusPastDue,
		models.MembershipStatusCanceled,
		models.MembershipStatusIncomplete,
		models.MembershipStatusIncompleteExpired,
		models.MembershipStatusUnpaid:
		return true
	default:
		return false
	}
}
