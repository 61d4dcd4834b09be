package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/TobiasWagner/GameVault/internal/pkg/usercontext"
)

// The page handlers below serve minimal HTML shells; the frontend consumes
// the JSON API for everything dynamic.

func HandleStart(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString("<!DOCTYPE html><html><head><title>GameVault</title></head><body><h1>GameVault</h1><p>Premium games for members.</p></body></html>")
}

func HandleLoginPage(c *fiber.Ctx) error {
	if usercontext.IsLoggedIn(c) {
		return c.Redirect("/account", fiber.StatusSeeOther)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString("<!DOCTYPE html><html><head><title>Sign in</title></head><body><h1>Sign in</h1><p>Enter your email address and we will send you a sign-in link.</p></body></html>")
}

func HandleBillingPage(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString("<!DOCTYPE html><html><head><title>Billing</title></head><body><h1>Billing</h1><p>Choose a membership plan.</p></body></html>")
}

func HandleAccountPage(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString("<!DOCTYPE html><html><head><title>Account</title></head><body><h1>Your account</h1></body></html>")
}
