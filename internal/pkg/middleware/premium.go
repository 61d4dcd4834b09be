package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/TobiasWagner/GameVault/internal/pkg/membership"
	"github.com/TobiasWagner/GameVault/internal/pkg/usercontext"
)

// PremiumGate protects the given URL prefixes with a membership check. The
// decision logic lives in membership.Decide; this middleware only maps the
// request to its inputs and the decision to a redirect or a pass-through.
func PremiumGate(reader membership.EntitlementReader, prefixes ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		gated := false
		for _, prefix := range prefixes {
			if strings.HasPrefix(path, prefix) {
				gated = true
				break
			}
		}
		if !gated {
			return c.Next()
		}

		userCtx := usercontext.GetUserContext(c)
		decision := membership.Decide(userCtx.IsLoggedIn, userCtx.UserID, reader)
		if !decision.Allowed() {
			return c.Redirect(decision.RedirectTarget(), fiber.StatusSeeOther)
		}
		return c.Next()
	}
}
