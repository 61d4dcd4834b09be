package membership

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/TobiasWagner/GameVault/app/models"
	"github.com/TobiasWagner/GameVault/internal/pkg/entitlements"
	"github.com/TobiasWagner/GameVault/internal/pkg/payment"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateSubscription rejects a subscription checkout for a user who
	// already holds an active or trialing membership.
	ErrDuplicateSubscription = errors.New("user already has an active subscription")
	// ErrNoActiveSubscription is returned by cancellation when no active or
	// trialing membership exists.
	ErrNoActiveSubscription = errors.New("no active subscription found")
	// ErrNoSubscriptionID marks a membership row without a provider
	// subscription reference.
	ErrNoSubscriptionID = errors.New("membership has no subscription id")
	// ErrMissingMetadata marks a checkout session without the user_id/type
	// metadata this system wrote at creation time.
	ErrMissingMetadata = errors.New("checkout session metadata is missing user_id or type")
	// ErrCheckoutNotCompleted is returned by manual verification when the
	// session is not paid yet.
	ErrCheckoutNotCompleted = errors.New("checkout session is not completed")
	// ErrInvalidCheckoutType rejects checkout types other than subscription
	// and one_time.
	ErrInvalidCheckoutType = errors.New("invalid checkout type")
)

const (
	productNameSubscription = "Membership Subscription"
	productNameOneTime      = "One-time Payment"
)

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// CancelResult reports how a cancellation was resolved.
type CancelResult struct {
	SubscriptionID string
	// ProviderCanceled is false when the provider no longer knew the
	// subscription and only the local record was updated.
	ProviderCanceled bool
}

// VerifyResult reports the outcome of the manual post-redirect verification.
type VerifyResult struct {
	SessionID        string
	SubscriptionID   string
	AlreadyProcessed bool
}

// Service applies payment provider events to the local membership and
// purchase records. Every transition is idempotent: the webhook path and the
// manual verification path can race or redeliver without double writes.
type Service struct {
	repo     Repository
	provider payment.Provider
}

// NewService creates a membership service from injected collaborators.
func NewService(repo Repository, provider payment.Provider) *Service {
	return &Service{repo: repo, provider: provider}
}

// NewServiceFromDB creates a membership service from a GORM DB handle and a
// payment provider.
func NewServiceFromDB(db *gorm.DB, provider payment.Provider) *Service {
	return NewService(NewRepository(db), provider)
}

// RecordWebhookEvent persists webhook payloads idempotently. The returned
// bool is false when the event id was seen before.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// HandleEvent dispatches one verified webhook event to its state transition.
// Unknown kinds are a no-op so the provider is never made to retry events
// this system does not care about.
func (s *Service) HandleEvent(ctx context.Context, ev *payment.Event) error {
	switch ev.Kind {
	case payment.EventCheckoutCompleted:
		return s.ApplyCheckoutCompleted(ctx, ev.Checkout)
	case payment.EventSubscriptionCreated, payment.EventSubscriptionUpdated:
		return s.ApplySubscriptionUpdate(ctx, ev.Subscription)
	case payment.EventSubscriptionDeleted:
		return s.ApplySubscriptionDeleted(ctx, ev.Subscription)
	case payment.EventInvoicePaymentSucceeded, payment.EventInvoicePaymentFailed:
		return s.applyInvoiceEvent(ctx, ev.Invoice)
	default:
		log.Printf("membership: ignoring webhook event type %q", ev.Type)
		return nil
	}
}

// ApplyCheckoutCompleted records the purchase and, for subscription
// checkouts, upserts the user's membership. The conditional purchase insert
// keyed on the session id is the idempotence gate: whichever caller loses the
// insert race observes the existing row and stops.
func (s *Service) ApplyCheckoutCompleted(ctx context.Context, cs *payment.CheckoutSession) error {
	if cs == nil {
		return errors.New("checkout session is required")
	}

	userID, typ, err := checkoutIdentity(cs)
	if err != nil {
		log.Printf("membership: checkout session %s rejected: %v", cs.ID, err)
		return err
	}

	productName := productNameOneTime
	if typ == payment.TypeSubscription {
		productName = productNameSubscription
	}
	currency := cs.Currency
	if currency == "" {
		currency = "usd"
	}

	created, err := s.repo.CreatePurchaseIfNotExists(&models.Purchase{
		UserID:                userID,
		StripeSessionID:       cs.ID,
		StripePaymentIntentID: cs.PaymentIntentID,
		Amount:                cs.AmountTotal,
		Currency:              currency,
		Status:                models.PurchaseStatusCompleted,
		ProductName:           productName,
	})
	if err != nil {
		return fmt.Errorf("record purchase for session %s: %w", cs.ID, err)
	}
	if !created {
		log.Printf("membership: checkout session %s already processed", cs.ID)
		return nil
	}

	if typ != payment.TypeSubscription {
		return nil
	}

	sub := cs.Subscription
	if sub == nil && cs.SubscriptionID != "" {
		sub, err = s.provider.GetSubscription(ctx, cs.SubscriptionID)
		if err != nil {
			return fmt.Errorf("fetch subscription %s for session %s: %w", cs.SubscriptionID, cs.ID, err)
		}
	}
	if sub == nil {
		log.Printf("membership: checkout session %s has no subscription attached", cs.ID)
		return nil
	}

	if err := s.repo.UpsertMembershipByUser(&models.Membership{
		UserID:               userID,
		Status:               sub.Status,
		Type:                 models.MembershipTypeSubscription,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     sub.CustomerID,
	}); err != nil {
		return fmt.Errorf("upsert membership for user %d: %w", userID, err)
	}
	return nil
}

// ApplySubscriptionUpdate syncs the local membership with the provider's
// current view of a subscription. An unchanged status is a duplicate delivery
// and a no-op; an unknown subscription is resolved through its metadata when
// possible so the transition is safe in either delivery order relative to
// the checkout event.
func (s *Service) ApplySubscriptionUpdate(ctx context.Context, sub *payment.Subscription) error {
	_ = ctx
	if sub == nil || sub.ID == "" {
		return errors.New("subscription payload is required")
	}
	if !entitlements.KnownStatus(sub.Status) {
		log.Printf("membership: subscription %s reports unknown status %q", sub.ID, sub.Status)
	}

	existing, err := s.repo.FindMembershipBySubscriptionID(sub.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find membership for subscription %s: %w", sub.ID, err)
		}
		return s.adoptSubscription(sub)
	}

	if existing.Status == sub.Status {
		log.Printf("membership: subscription %s status unchanged (%s)", sub.ID, sub.Status)
		return nil
	}

	updates := map[string]interface{}{
		"status": sub.Status,
		"type":   models.MembershipTypeSubscription,
	}
	if sub.CurrentPeriodEnd != nil {
		updates["current_period_end"] = sub.CurrentPeriodEnd
	}
	if sub.CustomerID != "" {
		updates["stripe_customer_id"] = sub.CustomerID
	}
	if _, err := s.repo.UpdateMembershipBySubscriptionID(sub.ID, updates); err != nil {
		return fmt.Errorf("update membership for subscription %s: %w", sub.ID, err)
	}
	return nil
}

// adoptSubscription handles a subscription event that arrived before the
// checkout event created the membership row. Checkout creation mirrors the
// user linkage into the subscription metadata, so the row can be upserted
// here; without that linkage the event is acknowledged and the checkout path
// creates the row later.
func (s *Service) adoptSubscription(sub *payment.Subscription) error {
	userID := parseUserID(sub.Metadata[payment.MetadataUserID])
	if userID == 0 {
		log.Printf("membership: no membership for subscription %s and no user linkage; deferring to checkout event", sub.ID)
		return nil
	}

	if err := s.repo.UpsertMembershipByUser(&models.Membership{
		UserID:               userID,
		Status:               sub.Status,
		Type:                 models.MembershipTypeSubscription,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     sub.CustomerID,
	}); err != nil {
		return fmt.Errorf("adopt subscription %s for user %d: %w", sub.ID, userID, err)
	}
	return nil
}

// ApplySubscriptionDeleted marks the matching membership canceled. The row is
// kept; cancellation is a status change, not a deletion.
func (s *Service) ApplySubscriptionDeleted(ctx context.Context, sub *payment.Subscription) error {
	_ = ctx
	if sub == nil || sub.ID == "" {
		return errors.New("subscription payload is required")
	}

	rows, err := s.repo.UpdateMembershipBySubscriptionID(sub.ID, map[string]interface{}{
		"status": models.MembershipStatusCanceled,
	})
	if err != nil {
		return fmt.Errorf("cancel membership for subscription %s: %w", sub.ID, err)
	}
	if rows == 0 {
		log.Printf("membership: subscription %s deleted but no local membership found", sub.ID)
	}
	return nil
}

// applyInvoiceEvent re-fetches the subscription an invoice belongs to and
// re-runs the update transition. Invoice payloads alone can be stale, so the
// provider's current view wins.
func (s *Service) applyInvoiceEvent(ctx context.Context, invoice *payment.InvoiceRef) error {
	if invoice == nil || invoice.SubscriptionID == "" {
		log.Printf("membership: invoice event without subscription reference ignored")
		return nil
	}

	sub, err := s.provider.GetSubscription(ctx, invoice.SubscriptionID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s for invoice event: %w", invoice.SubscriptionID, err)
	}
	return s.ApplySubscriptionUpdate(ctx, sub)
}

// InitiateCheckout asks the provider for a hosted checkout page and returns
// its redirect URL. A user holding an active or trialing membership may not
// start another subscription checkout.
func (s *Service) InitiateCheckout(ctx context.Context, userID uint, email, priceID, typ, baseURL string) (string, error) {
	if typ != payment.TypeSubscription && typ != payment.TypeOneTime {
		return "", ErrInvalidCheckoutType
	}
	if strings.TrimSpace(priceID) == "" {
		return "", errors.New("price id is required")
	}

	if typ == payment.TypeSubscription {
		existing, err := s.repo.FindMembershipByUser(userID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("check existing subscription: %w", err)
		}
		if existing != nil && entitlements.BlocksNewSubscription(existing.Status) {
			return "", ErrDuplicateSubscription
		}
	}

	base := strings.TrimRight(baseURL, "/")
	cs, err := s.provider.CreateCheckoutSession(ctx, payment.CheckoutInput{
		PriceID:       priceID,
		Type:          typ,
		UserID:        strconv.FormatUint(uint64(userID), 10),
		CustomerEmail: email,
		SuccessURL:    base + "/account?success=true&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     base + "/billing?canceled=true",
	})
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return cs.URL, nil
}

// VerifyCheckout eagerly reconciles a checkout session when the user returns
// from the provider before the webhook arrived. It runs the same idempotent
// transition as the webhook path and is safe to race with it.
func (s *Service) VerifyCheckout(ctx context.Context, sessionID string) (*VerifyResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id is required")
	}

	cs, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session %s: %w", sessionID, err)
	}
	if cs.PaymentStatus != "paid" {
		return nil, ErrCheckoutNotCompleted
	}

	if _, err := s.repo.FindPurchaseBySessionID(cs.ID); err == nil {
		return &VerifyResult{SessionID: cs.ID, SubscriptionID: cs.SubscriptionID, AlreadyProcessed: true}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("look up purchase for session %s: %w", cs.ID, err)
	}

	if err := s.ApplyCheckoutCompleted(ctx, cs); err != nil {
		return nil, err
	}
	return &VerifyResult{SessionID: cs.ID, SubscriptionID: cs.SubscriptionID}, nil
}

// CancelSubscription cancels the user's subscription at the provider and
// marks the local membership canceled. When the provider no longer knows the
// subscription, only the local record is updated. A local write failure after
// a successful provider cancel is not rolled back: the provider's
// subscription.deleted webhook re-synchronizes the record.
func (s *Service) CancelSubscription(ctx context.Context, userID uint) (*CancelResult, error) {
	m, err := s.repo.FindEntitledMembershipByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("find subscription for user %d: %w", userID, err)
	}
	if m.StripeSubscriptionID == "" {
		return nil, ErrNoSubscriptionID
	}

	result := &CancelResult{SubscriptionID: m.StripeSubscriptionID, ProviderCanceled: true}
	if _, err := s.provider.CancelSubscription(ctx, m.StripeSubscriptionID); err != nil {
		if !errors.Is(err, payment.ErrSubscriptionMissing) {
			return nil, fmt.Errorf("cancel subscription %s: %w", m.StripeSubscriptionID, err)
		}
		log.Printf("membership: subscription %s missing at provider, updating local state only", m.StripeSubscriptionID)
		result.ProviderCanceled = false
	}

	if _, err := s.repo.UpdateMembershipBySubscriptionID(m.StripeSubscriptionID, map[string]interface{}{
		"status": models.MembershipStatusCanceled,
	}); err != nil {
		return nil, fmt.Errorf("update membership for subscription %s: %w", m.StripeSubscriptionID, err)
	}
	return result, nil
}

func checkoutIdentity(cs *payment.CheckoutSession) (uint, string, error) {
	userID := parseUserID(cs.Metadata[payment.MetadataUserID])
	typ := strings.TrimSpace(cs.Metadata[payment.MetadataType])
	if userID == 0 || (typ != payment.TypeSubscription && typ != payment.TypeOneTime) {
		return 0, "", ErrMissingMetadata
	}
	return userID, typ, nil
}

func parseUserID(raw string) uint {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
