package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/TobiasWagner/GameVault/app/models"
	"github.com/TobiasWagner/GameVault/internal/pkg/membership"
	"github.com/TobiasWagner/GameVault/internal/pkg/payment"
)

const webhookTestSecret = "whsec_handler_test"

// stubBillingRepo keeps all rows in memory and mirrors the conditional-insert
// semantics of the GORM repository.
type stubBillingRepo struct {
	memberships map[uint]*models.Membership
	purchases   map[string]*models.Purchase
	events      map[string]*models.BillingWebhookEvent
	nextID      uint
}

func newStubBillingRepo() *stubBillingRepo {
	return &stubBillingRepo{
		memberships: make(map[uint]*models.Membership),
		purchases:   make(map[string]*models.Purchase),
		events:      make(map[string]*models.BillingWebhookEvent),
	}
}

func (r *stubBillingRepo) FindMembershipByUser(userID uint) (*models.Membership, error) {
	m, ok := r.memberships[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return m, nil
}

func (r *stubBillingRepo) FindActiveMembershipByUser(userID uint) (*models.Membership, error) {
	m, ok := r.memberships[userID]
	if !ok || m.Status != models.MembershipStatusActive {
		return nil, gorm.ErrRecordNotFound
	}
	return m, nil
}

func (r *stubBillingRepo) FindEntitledMembershipByUser(userID uint) (*models.Membership, error) {
	m, ok := r.memberships[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if m.Status != models.MembershipStatusActive && m.Status != models.MembershipStatusTrialing {
		return nil, gorm.ErrRecordNotFound
	}
	return m, nil
}

func (r *stubBillingRepo) FindMembershipBySubscriptionID(subscriptionID string) (*models.Membership, error) {
	for _, m := range r.memberships {
		if m.StripeSubscriptionID == subscriptionID {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) UpsertMembershipByUser(m *models.Membership) error {
	if existing, ok := r.memberships[m.UserID]; ok {
		m.ID = existing.ID
	} else {
		r.nextID++
		m.ID = r.nextID
	}
	r.memberships[m.UserID] = m
	return nil
}

func (r *stubBillingRepo) UpdateMembershipBySubscriptionID(subscriptionID string, updates map[string]interface{}) (int64, error) {
	var rows int64
	for _, m := range r.memberships {
		if m.StripeSubscriptionID != subscriptionID {
			continue
		}
		if status, ok := updates["status"].(string); ok {
			m.Status = status
		}
		if typ, ok := updates["type"].(string); ok {
			m.Type = typ
		}
		if end, ok := updates["current_period_end"].(*time.Time); ok {
			m.CurrentPeriodEnd = end
		}
		if customer, ok := updates["stripe_customer_id"].(string); ok {
			m.StripeCustomerID = customer
		}
		rows++
	}
	return rows, nil
}

func (r *stubBillingRepo) FindPurchaseBySessionID(sessionID string) (*models.Purchase, error) {
	p, ok := r.purchases[sessionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *stubBillingRepo) CreatePurchaseIfNotExists(p *models.Purchase) (bool, error) {
	if _, ok := r.purchases[p.StripeSessionID]; ok {
		return false, nil
	}
	r.nextID++
	p.ID = r.nextID
	r.purchases[p.StripeSessionID] = p
	return true, nil
}

func (r *stubBillingRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	key := event.Provider + ":" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		return false, existing, nil
	}
	r.nextID++
	event.ID = r.nextID
	r.events[key] = event
	return true, event, nil
}

func (r *stubBillingRepo) MarkWebhookProcessed(id uint, processingError string) error {
	for _, event := range r.events {
		if event.ID == id {
			now := time.Now()
			event.ProcessedAt = &now
			event.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) eventByID(providerEventID string) *models.BillingWebhookEvent {
	return r.events[models.BillingProviderStripe+":"+providerEventID]
}

// stubWebhookProvider is a scriptable payment.Provider for handler tests.
type stubWebhookProvider struct {
	subscription *payment.Subscription
	subErr       error
	getSubCalls  int
}

func (p *stubWebhookProvider) CreateCheckoutSession(ctx context.Context, in payment.CheckoutInput) (*payment.CheckoutSession, error) {
	return nil, errors.New("not scripted")
}

func (p *stubWebhookProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*payment.CheckoutSession, error) {
	return nil, errors.New("not scripted")
}

func (p *stubWebhookProvider) GetSubscription(ctx context.Context, subscriptionID string) (*payment.Subscription, error) {
	p.getSubCalls++
	if p.subErr != nil {
		return nil, p.subErr
	}
	return p.subscription, nil
}

func (p *stubWebhookProvider) CancelSubscription(ctx context.Context, subscriptionID string) (*payment.Subscription, error) {
	return nil, errors.New("not scripted")
}

func (p *stubWebhookProvider) ListPrices(ctx context.Context, productIDs []string) ([]payment.Price, error) {
	return nil, nil
}

func newWebhookTestApp(t *testing.T, repo *stubBillingRepo, provider *stubWebhookProvider) *fiber.App {
	t.Helper()
	t.Setenv("STRIPE_WEBHOOK_SECRET", webhookTestSecret)
	InitializeBillingController(provider, membership.NewService(repo, provider))

	app := fiber.New()
	app.Post("/webhooks/stripe", HandleStripeWebhook)
	return app
}

// stripeSignature builds a valid Stripe-Signature header for the payload.
func stripeSignature(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(t *testing.T, app *fiber.App, payload []byte, signature string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func webhookEventJSON(eventID, eventType, dataObject string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"data":{"object":%s}}`, eventID, eventType, dataObject))
}

func TestHandleStripeWebhookRejectsBadSignature(t *testing.T) {
	repo := newStubBillingRepo()
	repo.memberships[7] = &models.Membership{
		ID:                   1,
		UserID:               7,
		Status:               models.MembershipStatusActive,
		StripeSubscriptionID: "sub_1",
	}
	app := newWebhookTestApp(t, repo, &stubWebhookProvider{})

	payload := webhookEventJSON("evt_1", "invoice.payment_failed", `{"subscription":"sub_1"}`)
	status, body := postWebhook(t, app, payload, stripeSignature(t, payload, "whsec_wrong_secret"))

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_signature", body["error"])
	assert.Equal(t, models.MembershipStatusActive, repo.memberships[7].Status)

	// The rejected delivery is still kept for the audit trail.
	require.Len(t, repo.events, 1)
	for _, event := range repo.events {
		assert.False(t, event.SignatureValid)
		assert.NotEmpty(t, event.ProcessingError)
	}
}

func TestHandleStripeWebhookIgnoresUnknownEventType(t *testing.T) {
	repo := newStubBillingRepo()
	app := newWebhookTestApp(t, repo, &stubWebhookProvider{})

	payload := webhookEventJSON("evt_2", "charge.refunded", `{"id":"ch_1"}`)
	status, body := postWebhook(t, app, payload, stripeSignature(t, payload, webhookTestSecret))

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ignored"])

	event := repo.eventByID("evt_2")
	require.NotNil(t, event)
	assert.NotNil(t, event.ProcessedAt)
	assert.Empty(t, event.ProcessingError)
}

func TestHandleStripeWebhookRetriesEventAfterFailedApply(t *testing.T) {
	repo := newStubBillingRepo()
	repo.memberships[7] = &models.Membership{
		ID:                   1,
		UserID:               7,
		Status:               models.MembershipStatusActive,
		StripeSubscriptionID: "sub_1",
	}
	provider := &stubWebhookProvider{subErr: errors.New("stripe unavailable")}
	app := newWebhookTestApp(t, repo, provider)

	payload := webhookEventJSON("evt_3", "invoice.payment_failed", `{"subscription":"sub_1"}`)

	status, body := postWebhook(t, app, payload, stripeSignature(t, payload, webhookTestSecret))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "event_processing_failed", body["error"])
	assert.Equal(t, models.MembershipStatusActive, repo.memberships[7].Status)

	event := repo.eventByID("evt_3")
	require.NotNil(t, event)
	assert.NotEmpty(t, event.ProcessingError)

	// The provider redelivers the identical event once it can be reached
	// again; the stored state transition must complete now.
	provider.subErr = nil
	provider.subscription = &payment.Subscription{ID: "sub_1", Status: models.MembershipStatusPastDue}

	status, body = postWebhook(t, app, payload, stripeSignature(t, payload, webhookTestSecret))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, models.MembershipStatusPastDue, repo.memberships[7].Status)
	assert.Equal(t, 2, provider.getSubCalls)
	assert.Empty(t, event.ProcessingError)
	assert.NotNil(t, event.ProcessedAt)
}

func TestHandleStripeWebhookShortCircuitsProcessedRedelivery(t *testing.T) {
	repo := newStubBillingRepo()
	repo.memberships[7] = &models.Membership{
		ID:                   1,
		UserID:               7,
		Status:               models.MembershipStatusActive,
		StripeSubscriptionID: "sub_1",
	}
	provider := &stubWebhookProvider{
		subscription: &payment.Subscription{ID: "sub_1", Status: models.MembershipStatusActive},
	}
	app := newWebhookTestApp(t, repo, provider)

	payload := webhookEventJSON("evt_4", "invoice.payment_succeeded", `{"subscription":"sub_1"}`)

	status, _ := postWebhook(t, app, payload, stripeSignature(t, payload, webhookTestSecret))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, provider.getSubCalls)

	status, body := postWebhook(t, app, payload, stripeSignature(t, payload, webhookTestSecret))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])
	assert.Equal(t, 1, provider.getSubCalls)
}
