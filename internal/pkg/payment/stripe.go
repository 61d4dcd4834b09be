package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/TobiasWagner/GameVault/internal/pkg/env"
)

// ErrSubscriptionMissing is returned by CancelSubscription when the provider
// no longer knows the subscription. The caller may still reconcile local
// state in that case.
var ErrSubscriptionMissing = errors.New("subscription does not exist at the payment provider")

// Provider is the payment collaborator contract consumed by the membership
// service. The Stripe implementation is the only production one; tests use
// fakes.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	ListPrices(ctx context.Context, productIDs []string) ([]Price, error)
}

// StripeClient implements Provider on top of the official Stripe SDK.
type StripeClient struct {
	api *client.API
}

// NewStripeClient creates a provider bound to the given secret key.
func NewStripeClient(secretKey string) *StripeClient {
	return &StripeClient{api: client.New(secretKey, nil)}
}

// NewStripeClientFromEnv creates a provider configured from the environment.
func NewStripeClientFromEnv() *StripeClient {
	return NewStripeClient(strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")))
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error) {
	if strings.TrimSpace(in.PriceID) == "" {
		return nil, errors.New("price id is required")
	}

	mode := string(stripe.CheckoutSessionModePayment)
	if in.Type == TypeSubscription {
		mode = string(stripe.CheckoutSessionModeSubscription)
	}

	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(mode),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	params.AddMetadata(MetadataUserID, in.UserID)
	params.AddMetadata(MetadataType, in.Type)
	if in.Type == TypeSubscription {
		// Mirror the metadata onto the subscription so subscription events
		// can be resolved to a user even when they outrun the checkout event.
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				MetadataUserID: in.UserID,
				MetadataType:   in.Type,
			},
		}
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return newCheckoutSession(sess), nil
}

func (c *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("subscription")

	sess, err := c.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}
	return newCheckoutSession(sess), nil
}

func (c *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}

	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve subscription: %w", err)
	}
	return newSubscription(sub), nil
}

func (c *StripeClient) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionCancelParams{Params: stripe.Params{Context: ctx}}

	sub, err := c.api.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, ErrSubscriptionMissing
		}
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}
	return newSubscription(sub), nil
}

func (c *StripeClient) ListPrices(ctx context.Context, productIDs []string) ([]Price, error) {
	params := &stripe.PriceListParams{
		ListParams: stripe.ListParams{Context: ctx},
		Active:     stripe.Bool(true),
	}
	params.AddExpand("data.product")

	wanted := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		if id = strings.TrimSpace(id); id != "" {
			wanted[id] = struct{}{}
		}
	}

	var prices []Price
	iter := c.api.Prices.List(params)
	for iter.Next() {
		p := iter.Price()
		if p.Product == nil {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[p.Product.ID]; !ok {
				continue
			}
		}
		price := Price{
			ID:          p.ID,
			ProductID:   p.Product.ID,
			ProductName: p.Product.Name,
			UnitAmount:  p.UnitAmount,
			Currency:    string(p.Currency),
			Type:        string(p.Type),
		}
		if p.Recurring != nil {
			price.Interval = string(p.Recurring.Interval)
		}
		prices = append(prices, price)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	return prices, nil
}

func newCheckoutSession(sess *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: string(sess.PaymentStatus),
		AmountTotal:   sess.AmountTotal,
		Currency:      string(sess.Currency),
		Metadata:      sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
		// Subscription status is only present when the session was expanded.
		if sess.Subscription.Status != "" {
			out.Subscription = newSubscription(sess.Subscription)
		}
	}
	return out
}

func newSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	// The current billing period lives on the subscription items.
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.CurrentPeriodEnd > 0 {
				t := time.Unix(item.CurrentPeriodEnd, 0).UTC()
				out.CurrentPeriodEnd = &t
				break
			}
		}
	}
	return out
}
