package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/TobiasWagner/GameVault/app/controllers"
	"github.com/TobiasWagner/GameVault/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Passwordless auth
	v1.Post("/auth/signin", controllers.HandleAuthSignin)
	v1.Post("/auth/signout", middleware.RequireAPISessionAuth, controllers.HandleAuthSignoutAPI)

	// Billing
	v1.Get("/stripe/prices", controllers.HandleStripePrices)
	v1.Post("/checkout/session", middleware.RequireAPISessionAuth, controllers.HandleCreateCheckoutSession)
	v1.Post("/checkout/verify", middleware.RequireAPISessionAuth, controllers.HandleVerifyCheckoutSession)
	v1.Post("/subscription/cancel", middleware.RequireAPISessionAuth, controllers.HandleCancelSubscription)

	// Account
	v1.Get("/account/data", middleware.RequireAPISessionAuth, controllers.HandleGetAccount)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
