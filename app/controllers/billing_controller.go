package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/TobiasWagner/GameVault/app/models"
	"github.com/TobiasWagner/GameVault/internal/pkg/cache"
	"github.com/TobiasWagner/GameVault/internal/pkg/database"
	"github.com/TobiasWagner/GameVault/internal/pkg/env"
	"github.com/TobiasWagner/GameVault/internal/pkg/membership"
	"github.com/TobiasWagner/GameVault/internal/pkg/payment"
	"github.com/TobiasWagner/GameVault/internal/pkg/usercontext"
)

var (
	paymentProvider payment.Provider
	billingService  *membership.Service
)

// InitializeBillingController wires the payment provider and membership
// service used by the billing handlers. Tests inject fakes here; production
// leaves the service nil and it is built from the global DB on demand.
func InitializeBillingController(provider payment.Provider, svc *membership.Service) {
	paymentProvider = provider
	billingService = svc
}

func getPaymentProvider() payment.Provider {
	if paymentProvider == nil {
		paymentProvider = payment.NewStripeClientFromEnv()
	}
	return paymentProvider
}

func membershipService() *membership.Service {
	if billingService != nil {
		return billingService
	}
	return membership.NewServiceFromDB(database.GetDB(), getPaymentProvider())
}

type checkoutRequest struct {
	PriceID string `json:"price_id"`
	Type    string `json:"type"`
}

type verifyRequest struct {
	SessionID string `json:"session_id"`
}

// HandleStripeWebhook receives provider events. The raw body is verified
// against the Stripe-Signature header before anything else; unverifiable
// deliveries are rejected without side effects on membership state. Verified
// events are persisted first, then applied. A redelivery short-circuits only
// when the first delivery was applied cleanly; after a failed apply the retry
// re-runs the transition.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := c.Body()
	signature := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	svc := membershipService()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	ev, err := payment.VerifyAndParse(rawBody, signature, secret)
	if err != nil {
		if _, stored, recordErr := svc.RecordWebhookEvent(ctx, membership.WebhookEventInput{
			Provider:       models.BillingProviderStripe,
			EventType:      "unverified",
			PayloadJSON:    string(rawBody),
			SignatureValid: false,
		}); recordErr == nil && stored != nil {
			_ = svc.MarkWebhookProcessed(ctx, stored.ID, err)
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	created, stored, err := svc.RecordWebhookEvent(ctx, membership.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		// The provider retries until it sees a 2xx, so a stored event whose
		// apply failed (or never ran) must be re-applied here, not
		// acknowledged. Every transition is idempotent.
		if stored.ProcessedAt != nil && stored.ProcessingError == "" {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
		}
	}
	if ev.Kind == payment.EventUnknown {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	applyErr := svc.HandleEvent(ctx, ev)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, applyErr)
	if applyErr != nil {
		// An authentic event with broken metadata will never become valid;
		// acknowledging it stops pointless redelivery. Everything else is
		// retryable.
		if errors.Is(applyErr, membership.ErrMissingMetadata) {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleCreateCheckoutSession starts a hosted checkout for the signed-in user
// and returns the provider URL to redirect to.
func HandleCreateCheckoutSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Sign in to start a checkout"})
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Request body must be JSON"})
	}
	if strings.TrimSpace(req.PriceID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "price_id is required"})
	}

	svc := membershipService()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	baseURL := env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000")
	url, err := svc.InitiateCheckout(ctx, userCtx.UserID, userCtx.Email, req.PriceID, req.Type, baseURL)
	if err != nil {
		switch {
		case errors.Is(err, membership.ErrDuplicateSubscription):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duplicate_subscription", "message": "You already have an active subscription"})
		case errors.Is(err, membership.ErrInvalidCheckoutType):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Type must be subscription or one_time"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_failed", "message": "Could not create checkout session"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": url})
}

// HandleVerifyCheckoutSession reconciles a checkout session when the user
// lands back on the account page before the webhook was delivered. Safe to
// call any number of times for the same session.
func HandleVerifyCheckoutSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Request body must be JSON"})
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "session_id is required"})
	}

	svc := membershipService()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := svc.VerifyCheckout(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, membership.ErrCheckoutNotCompleted) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "checkout_not_completed", "message": "Payment has not completed yet"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "verification_failed", "message": "Could not verify checkout session"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":                true,
		"session_id":        result.SessionID,
		"already_processed": result.AlreadyProcessed,
	})
}

// HandleCancelSubscription cancels the signed-in user's subscription.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	svc := membershipService()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := svc.CancelSubscription(ctx, userCtx.UserID)
	if err != nil {
		switch {
		case errors.Is(err, membership.ErrNoActiveSubscription):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_active_subscription", "message": "No active subscription found"})
		case errors.Is(err, membership.ErrNoSubscriptionID):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_subscription_id", "message": "Membership has no subscription to cancel"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cancel_failed", "message": "Could not cancel subscription"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":                true,
		"subscription_id":   result.SubscriptionID,
		"provider_canceled": result.ProviderCanceled,
	})
}

const (
	pricesCacheKey = "stripe:prices"
	pricesCacheTTL = 5 * time.Minute
)

// HandleStripePrices lists the purchasable prices for the billing page.
// The provider response is cached; prices change rarely and the billing page
// is public.
func HandleStripePrices(c *fiber.Ctx) error {
	if cached, err := cache.Get(pricesCacheKey); err == nil && cached != "" {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(fiber.StatusOK).SendString(cached)
	}

	provider := getPaymentProvider()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var productIDs []string
	for _, id := range strings.Split(env.GetEnv("STRIPE_PRODUCT_IDS", ""), ",") {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			productIDs = append(productIDs, trimmed)
		}
	}

	prices, err := provider.ListPrices(ctx, productIDs)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "prices_unavailable", "message": "Could not load prices"})
	}

	body, err := json.Marshal(fiber.Map{"prices": prices})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "prices_unavailable", "message": "Could not load prices"})
	}
	if err := cache.Set(pricesCacheKey, string(body), pricesCacheTTL); err != nil {
		log.Printf("prices: caching response failed: %v", err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(body)
}
