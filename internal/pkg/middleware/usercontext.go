package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/TobiasWagner/GameVault/internal/pkg/session"
	"github.com/TobiasWagner/GameVault/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the session into a UserContext local for
// every request. A missing or broken session yields an anonymous context
// rather than an error.
func UserContextMiddleware(c *fiber.Ctx) error {
	anonymous := usercontext.UserContext{}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		c.Locals("USER_CONTEXT", anonymous)
		c.Locals(usercontext.KeyFromProtected, false)
		return c.Next()
	}

	authenticated, _ := sess.Get(usercontext.AuthKey).(bool)
	userID, _ := sess.Get(usercontext.KeyUserID).(uint)
	if !authenticated || userID == 0 {
		c.Locals("USER_CONTEXT", anonymous)
		c.Locals(usercontext.KeyFromProtected, false)
		return c.Next()
	}

	email, _ := sess.Get(usercontext.KeyUserEmail).(string)
	isAdmin, _ := sess.Get(usercontext.KeyIsAdmin).(bool)

	c.Locals("USER_CONTEXT", usercontext.UserContext{
		UserID:     userID,
		Email:      email,
		IsLoggedIn: true,
		IsAdmin:    isAdmin,
	})
	c.Locals(usercontext.KeyFromProtected, true)
	c.Locals(usercontext.KeyIsAdmin, isAdmin)

	return c.Next()
}
