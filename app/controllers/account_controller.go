package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/TobiasWagner/GameVault/app/repository"
	"github.com/TobiasWagner/GameVault/internal/pkg/entitlements"
	"github.com/TobiasWagner/GameVault/internal/pkg/usercontext"
)

// HandleGetAccount returns account information for the authenticated user.
// All reads go through the user-scoped repository, so the response can only
// ever contain the caller's own rows.
func HandleGetAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	repos := repository.GetGlobalRepositories()
	account, err := repos.User.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	response := fiber.Map{
		"id":            account.ID,
		"email":         account.Email,
		"name":          account.Name,
		"role":          account.Role,
		"created_at":    account.CreatedAt,
		"last_login_at": account.LastLoginAt,
		"membership":    nil,
		"has_premium":   false,
	}

	m, err := repos.Account.GetLatestMembershipByUser(userCtx.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load membership"})
	}
	if m != nil {
		response["membership"] = fiber.Map{
			"status":             m.Status,
			"type":               m.Type,
			"current_period_end": m.CurrentPeriodEnd,
			"updated_at":         m.UpdatedAt,
		}
		response["has_premium"] = entitlements.IsActive(m.Status)
	}

	purchases, err := repos.Account.ListPurchasesByUser(userCtx.UserID, 50)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load purchases"})
	}

	purchaseList := make([]fiber.Map, 0, len(purchases))
	for _, p := range purchases {
		purchaseList = append(purchaseList, fiber.Map{
			"id":           p.ID,
			"product_name": p.ProductName,
			"amount":       p.Amount,
			"currency":     p.Currency,
			"status":       p.Status,
			"created_at":   p.CreatedAt,
		})
	}
	response["purchases"] = purchaseList

	return c.Status(fiber.StatusOK).JSON(response)
}
