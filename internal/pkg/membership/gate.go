package membership

import (
	"errors"
	"log"

	"github.com/TobiasWagner/GameVault/app/models"
	"github.com/TobiasWagner/GameVault/internal/pkg/constants"
	"github.com/TobiasWagner/GameVault/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// EntitlementReader is the lookup the premium gate needs. Repository
// satisfies it.
type EntitlementReader interface {
	FindActiveMembershipByUser(userID uint) (*models.Membership, error)
}

// Decision is the closed result of a gate check: either the request passes
// or it is redirected to exactly one target.
type Decision struct {
	allow  bool
	target string
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool { return d.allow }

// RedirectTarget returns the redirect destination for a denied request.
func (d Decision) RedirectTarget() string { return d.target }

func allow() Decision { return Decision{allow: true} }

func redirectTo(target string) Decision { return Decision{target: target} }

// Decide gates access to premium content. Only a verified active membership
// lets a request through; anonymous users go to the login page and
// authenticated users without an active membership go to the billing page.
// Any lookup failure denies access, never grants it.
func Decide(loggedIn bool, userID uint, reader EntitlementReader) Decision {
	if !loggedIn || userID == 0 {
		return redirectTo(constants.LoginRoute)
	}

	m, err := reader.FindActiveMembershipByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return redirectTo(constants.BillingRoute)
		}
		log.Printf("membership: gate lookup failed for user %d: %v", userID, err)
		return redirectTo(constants.LoginRoute)
	}
	if !entitlements.IsActive(m.Status) {
		return redirectTo(constants.BillingRoute)
	}
	return allow()
}
