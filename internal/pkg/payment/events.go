package payment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// EventKind enumerates the webhook event types this system reacts to.
// Everything else parses to EventUnknown and is acknowledged without effect.
type EventKind string

const (
	EventCheckoutCompleted       EventKind = "checkout.session.completed"
	EventSubscriptionCreated     EventKind = "customer.subscription.created"
	EventSubscriptionUpdated     EventKind = "customer.subscription.updated"
	EventSubscriptionDeleted     EventKind = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded EventKind = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    EventKind = "invoice.payment_failed"
	EventUnknown                 EventKind = ""
)

// Event is the parsed, typed form of one verified webhook delivery. Exactly
// one of Checkout, Subscription or Invoice is set, matching Kind; all three
// are nil for EventUnknown.
type Event struct {
	ID      string
	Type    string
	Kind    EventKind
	Payload []byte

	Checkout     *CheckoutSession
	Subscription *Subscription
	Invoice      *InvoiceRef
}

// InvoiceRef carries the only invoice field the reconciler consumes: the
// subscription the invoice belongs to. Invoice payloads can be stale, so the
// reconciler re-fetches the subscription instead of trusting them.
type InvoiceRef struct {
	SubscriptionID string
}

// VerifyAndParse authenticates the raw webhook body against the signature
// header and returns the typed event. A signature failure or a malformed
// payload for a recognized kind returns an error; unrecognized kinds return
// an EventUnknown event and no error.
func VerifyAndParse(payload []byte, signatureHeader, secret string) (*Event, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, fmt.Errorf("missing signature header")
	}

	raw, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("verify webhook signature: %w", err)
	}
	return parseEvent(raw)
}

func parseEvent(raw stripe.Event) (*Event, error) {
	ev := &Event{
		ID:      raw.ID,
		Type:    string(raw.Type),
		Kind:    EventUnknown,
		Payload: raw.Data.Raw,
	}

	switch string(raw.Type) {
	case string(EventCheckoutCompleted):
		var body checkoutSessionBody
		if err := json.Unmarshal(raw.Data.Raw, &body); err != nil {
			return nil, fmt.Errorf("decode checkout session payload: %w", err)
		}
		ev.Kind = EventCheckoutCompleted
		ev.Checkout = body.toCheckoutSession()
	case string(EventSubscriptionCreated), string(EventSubscriptionUpdated), string(EventSubscriptionDeleted):
		var body subscriptionBody
		if err := json.Unmarshal(raw.Data.Raw, &body); err != nil {
			return nil, fmt.Errorf("decode subscription payload: %w", err)
		}
		ev.Kind = EventKind(raw.Type)
		ev.Subscription = body.toSubscription()
	case string(EventInvoicePaymentSucceeded), string(EventInvoicePaymentFailed):
		var body invoiceBody
		if err := json.Unmarshal(raw.Data.Raw, &body); err != nil {
			return nil, fmt.Errorf("decode invoice payload: %w", err)
		}
		ev.Kind = EventKind(raw.Type)
		ev.Invoice = &InvoiceRef{SubscriptionID: body.subscriptionID()}
	}

	return ev, nil
}

// checkoutSessionBody mirrors the webhook JSON for a checkout session. The
// subscription field is an id string in webhook deliveries but a full object
// when the session was retrieved with expansion, so it gets its own decoder.
type checkoutSessionBody struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentIntent idOrObject        `json:"payment_intent"`
	Customer      idOrObject        `json:"customer"`
	Metadata      map[string]string `json:"metadata"`
	Subscription  subscriptionRef   `json:"subscription"`
}

func (b checkoutSessionBody) toCheckoutSession() *CheckoutSession {
	out := &CheckoutSession{
		ID:              b.ID,
		PaymentStatus:   b.PaymentStatus,
		AmountTotal:     b.AmountTotal,
		Currency:        b.Currency,
		PaymentIntentID: b.PaymentIntent.ID,
		CustomerID:      b.Customer.ID,
		Metadata:        b.Metadata,
		SubscriptionID:  b.Subscription.ID,
	}
	if b.Subscription.Object != nil {
		out.Subscription = b.Subscription.Object.toSubscription()
	}
	return out
}

type subscriptionBody struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	Customer          idOrObject        `json:"customer"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (b subscriptionBody) toSubscription() *Subscription {
	out := &Subscription{
		ID:                b.ID,
		Status:            b.Status,
		CustomerID:        b.Customer.ID,
		CancelAtPeriodEnd: b.CancelAtPeriodEnd,
		Metadata:          b.Metadata,
	}
	// Newer API versions report the billing period on the items; older
	// payloads still carry it on the subscription itself.
	periodEnd := b.CurrentPeriodEnd
	for _, item := range b.Items.Data {
		if item.CurrentPeriodEnd > 0 {
			periodEnd = item.CurrentPeriodEnd
			break
		}
	}
	if periodEnd > 0 {
		t := time.Unix(periodEnd, 0).UTC()
		out.CurrentPeriodEnd = &t
	}
	return out
}

type invoiceBody struct {
	Subscription idOrObject `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription idOrObject `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (b invoiceBody) subscriptionID() string {
	if b.Subscription.ID != "" {
		return b.Subscription.ID
	}
	return b.Parent.SubscriptionDetails.Subscription.ID
}

// subscriptionRef decodes either a bare subscription id or an embedded
// subscription object.
type subscriptionRef struct {
	ID     string
	Object *subscriptionBody
}

func (r *subscriptionRef) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if trimmed[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var body subscriptionBody
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	r.ID = body.ID
	r.Object = &body
	return nil
}

// idOrObject decodes fields Stripe serializes either as an id string or as an
// expanded object with an "id" key.
type idOrObject struct {
	ID string
}

func (v *idOrObject) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if trimmed[0] == '"' {
		return json.Unmarshal(data, &v.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	v.ID = obj.ID
	return nil
}
