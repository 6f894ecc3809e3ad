// Package payment wraps the payment-provider SDK behind the few operations
// this service needs: webhook verification, subscription retrieval with
// price expansion, and checkout-session creation.
package payment

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"membership-bridge/internal/config"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

// MetadataKey is the custom-field key this service writes on provider-side
// objects at checkout time and reads back to recover subscriber identity.
const MetadataKey = "telegram_id"

const defaultTolerance = 300 * time.Second

type Client struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
	successURL    string
	cancelURL     string
	logger        *slog.Logger
}

func NewClient(cfg config.Stripe, logger *slog.Logger) *Client {
	api := &client.API{}

	var backends *stripe.Backends
	if cfg.URL != "" || cfg.TimeoutMs > 0 {
		backendCfg := &stripe.BackendConfig{}
		if cfg.URL != "" {
			backendCfg.URL = stripe.String(cfg.URL)
		}
		if cfg.TimeoutMs > 0 {
			backendCfg.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond}
		}
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		}
	}
	api.Init(cfg.APIKey, backends)

	tolerance := defaultTolerance
	if cfg.ToleranceSec > 0 {
		tolerance = time.Duration(cfg.ToleranceSec) * time.Second
	}

	return &Client{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		tolerance:     tolerance,
		successURL:    cfg.CheckoutSuccessURL,
		cancelURL:     cfg.CheckoutCancelURL,
		logger:        logger,
	}
}

// VerifyEvent authenticates the raw webhook payload against its signature
// header and returns the parsed event. The payload is untrusted until this
// succeeds.
func (c *Client) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithTolerance(payload, sigHeader, c.webhookSecret, c.tolerance)
}

// GetSubscription retrieves a subscription with its line-item price
// expanded, so tier classification needs no second lookup.
func (c *Client) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if id == "" {
		return nil, errors.New("empty subscription id")
	}

	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("items.data.price")

	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, errors.Wrap(err, "retrieving subscription")
	}
	return sub, nil
}

// CreateCheckoutSession starts a subscription checkout, tagging both the
// session and the subscription-to-be with the subscriber identity so the
// webhook resolver can read it back.
func (c *Client) CreateCheckoutSession(ctx context.Context, priceID, subscriberID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
		Mode:   stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}},
		ClientReferenceID: stripe.String(subscriberID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataKey: subscriberID},
		},
	}
	if c.successURL != "" {
		params.SuccessURL = stripe.String(c.successURL)
	}
	if c.cancelURL != "" {
		params.CancelURL = stripe.String(c.cancelURL)
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "creating checkout session")
	}

	c.logger.DebugContext(ctx, "Created checkout session", "sessionId", session.ID)
	return session, nil
}

// SubscriptionPriceID returns the subscription's first line-item price id,
// or "" when none is present.
func SubscriptionPriceID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

// InvoicePriceID returns the invoice's first line price id, or "".
func InvoicePriceID(invoice *stripe.Invoice) string {
	if invoice == nil || invoice.Lines == nil {
		return ""
	}
	for _, line := range invoice.Lines.Data {
		if line != nil && line.Price != nil && line.Price.ID != "" {
			return line.Price.ID
		}
	}
	return ""
}
