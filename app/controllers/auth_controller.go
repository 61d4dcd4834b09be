package controllers

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sujit-baniya/flash"

	"github.com/TobiasWagner/GameVault/app/models"
	"github.com/TobiasWagner/GameVault/app/repository"
	"github.com/TobiasWagner/GameVault/internal/pkg/constants"
	"github.com/TobiasWagner/GameVault/internal/pkg/env"
	"github.com/TobiasWagner/GameVault/internal/pkg/mail"
	"github.com/TobiasWagner/GameVault/internal/pkg/security"
	"github.com/TobiasWagner/GameVault/internal/pkg/session"
	"github.com/TobiasWagner/GameVault/internal/pkg/usercontext"
)

// loginTokenTTL bounds both the signed claims and the server-side token row.
const loginTokenTTL = 15 * time.Minute

type signinRequest struct {
	Email string `json:"email"`
	Next  string `json:"next,omitempty"`
}

// HandleAuthSignin accepts an email address and sends a single-use sign-in
// link. The account is created on first contact; the response does not reveal
// whether the address was known before.
func HandleAuthSignin(c *fiber.Ctx) error {
	var req signinRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Request body must be JSON with an email field"})
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Email is required"})
	}

	repos := repository.GetGlobalRepositories()
	user, created, err := repos.User.GetOrCreateByEmail(email)
	if err != nil {
		log.Printf("signin: resolving user for %s failed: %v", email, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Email address is not valid"})
	}
	if created {
		log.Printf("signin: created account %d for first-time sign-in", user.ID)
	}

	// Opportunistic cleanup of stale tokens.
	go func() {
		if _, err := repos.LoginToken.DeleteExpired(); err != nil {
			log.Printf("signin: purging expired login tokens failed: %v", err)
		}
	}()

	tokenID := uuid.NewString()
	if err := repos.LoginToken.Create(&models.LoginToken{
		TokenID:   tokenID,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(loginTokenTTL),
	}); err != nil {
		log.Printf("signin: persisting login token failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not start sign-in"})
	}

	secret := env.GetEnv("AUTH_TOKEN_SECRET", "")
	signed, err := security.GenerateLoginToken(tokenID, user.ID, loginTokenTTL, secret)
	if err != nil {
		log.Printf("signin: signing login token failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not start sign-in"})
	}

	link := buildCallbackLink(signed, req.Next)
	if err := mail.SendMagicLink(user.Email, link); err != nil {
		log.Printf("signin: sending magic link to %s failed: %v", user.Email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "mail_failed", "message": "Could not send sign-in link"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "message": "Check your inbox for a sign-in link"})
}

// HandleAuthCallback redeems a magic link: the HMAC claims must verify, the
// server-side token row must be unused and unexpired, and both must agree on
// the user. On success a session is established and the user is sent to the
// requested local path.
func HandleAuthCallback(c *fiber.Ctx) error {
	fm := fiber.Map{"type": "error"}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		fm["message"] = "The sign-in link is incomplete"
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	secret := env.GetEnv("AUTH_TOKEN_SECRET", "")
	claims, err := security.VerifyLoginToken(token, secret)
	if err != nil {
		fm["message"] = "The sign-in link is invalid or has expired"
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	repos := repository.GetGlobalRepositories()
	row, err := repos.LoginToken.ConsumeByTokenID(claims.TokenID)
	if err != nil {
		fm["message"] = "The sign-in link has already been used or has expired"
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}
	if row.UserID != claims.UserID {
		log.Printf("callback: token %s user mismatch (row %d, claims %d)", claims.TokenID, row.UserID, claims.UserID)
		fm["message"] = "The sign-in link is invalid"
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	user, err := repos.User.GetByID(claims.UserID)
	if err != nil {
		fm["message"] = "There is a problem with the sign-in process"
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		fm["message"] = fmt.Sprintf("something went wrong: %s", err)
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	sess.Set(usercontext.AuthKey, true)
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUserEmail, user.Email)
	sess.Set(usercontext.KeyIsAdmin, user.Role == models.ROLE_ADMIN)

	if err := sess.Save(); err != nil {
		fm["message"] = fmt.Sprintf("something went wrong: %s", err)
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	if err := repos.User.UpdateLastLogin(user.ID); err != nil {
		log.Printf("callback: stamping last login for user %d failed: %v", user.ID, err)
	}

	fm = fiber.Map{"type": "success", "message": "You are signed in"}
	return flash.WithSuccess(c, fm).Redirect(safeNextPath(c.Query("next")))
}

// HandleAuthSignout destroys the session and returns to the start page.
func HandleAuthSignout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Redirect(constants.LoginRoute, fiber.StatusSeeOther)
	}

	if err := sess.Destroy(); err != nil {
		fm := fiber.Map{"type": "error", "message": fmt.Sprintf("something went wrong: %s", err)}
		return flash.WithError(c, fm).Redirect(constants.LoginRoute)
	}

	fm := fiber.Map{"type": "success", "message": "You are signed out"}
	return flash.WithSuccess(c, fm).Redirect("/")
}

// HandleAuthSignoutAPI is the JSON variant of sign-out for API clients.
func HandleAuthSignoutAPI(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not load session"})
	}
	if err := sess.Destroy(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Could not sign out"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func buildCallbackLink(signedToken, next string) string {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")
	link := base + "/auth/callback?token=" + signedToken
	if sanitized := safeNextPath(next); sanitized != constants.AccountRoute {
		link += "&next=" + sanitized
	}
	return link
}

// safeNextPath confines post-login redirects to local paths.
func safeNextPath(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return constants.AccountRoute
	}
	return next
}
