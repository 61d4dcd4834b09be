package controllers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/TobiasWagner/GameVault/internal/pkg/usercontext"
)

// premiumGames is the static catalog of gated titles. Slugs outside this list
// 404 even for entitled users.
var premiumGames = map[string]string{
	"neon-drift":     "Neon Drift",
	"starfall-siege": "Starfall Siege",
	"void-runner":    "Void Runner",
}

// HandlePremiumGame serves one premium title. The route gate has already run
// by the time this handler executes, so a reaching request is entitled.
func HandlePremiumGame(c *fiber.Ctx) error {
	slug := strings.ToLower(strings.TrimSpace(c.Params("slug")))
	title, ok := premiumGames[slug]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown game"})
	}

	userCtx := usercontext.GetUserContext(c)
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(fmt.Sprintf(
		"<!DOCTYPE html><html><head><title>%s</title></head><body><h1>%s</h1><p>Enjoy your premium access, %s.</p></body></html>",
		title, title, userCtx.Email,
	))
}

// HandlePremiumGameList returns the catalog of premium titles. The listing is
// public; only the titles themselves sit behind the gate.
func HandlePremiumGameList(c *fiber.Ctx) error {
	games := make([]fiber.Map, 0, len(premiumGames))
	for slug, title := range premiumGames {
		games = append(games, fiber.Map{
			"slug":  slug,
			"title": title,
			"url":   "/games/premium/" + slug,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"games": games})
}
