package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/TobiasWagner/GameVault/app/controllers"
	"github.com/TobiasWagner/GameVault/internal/pkg/constants"
	"github.com/TobiasWagner/GameVault/internal/pkg/database"
	"github.com/TobiasWagner/GameVault/internal/pkg/membership"
	"github.com/TobiasWagner/GameVault/internal/pkg/middleware"
	"github.com/TobiasWagner/GameVault/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// Premium routes fail closed: the gate runs before any handler under the
	// protected prefix sees the request.
	gateReader := membership.NewRepository(database.GetDB())
	app.Use(middleware.PremiumGate(gateReader, constants.PremiumPrefix))

	h.registerPublicRoutes(app)
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get("/", controllers.HandleStart)
	app.Get("/login", controllers.HandleLoginPage)
	app.Get("/billing", controllers.HandleBillingPage)
	app.Get("/account", middleware.RequireAuth, controllers.HandleAccountPage)

	// Magic-link redemption and sign-out
	app.Get("/auth/callback", controllers.HandleAuthCallback)
	app.Post("/logout", middleware.RequireAuth, controllers.HandleAuthSignout)

	// Game catalog; individual premium titles sit behind the gate
	app.Get("/games", controllers.HandlePremiumGameList)
	app.Get("/games/premium/:slug", controllers.HandlePremiumGame)

	// Billing provider webhooks (no CSRF, signature-verified in controller)
	app.Post("/webhooks/stripe", controllers.HandleStripeWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
