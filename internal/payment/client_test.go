package payment_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"membership-bridge/internal/config"
	"membership-bridge/internal/payment"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"
)

const webhookSecret = "whsec_test_secret"

func newClient() *payment.Client {
	return payment.NewClient(config.Stripe{
		APIKey:             "sk_test_123",
		WebhookSecret:      webhookSecret,
		CheckoutSuccessURL: "https://example.com/success",
		CheckoutCancelURL:  "https://example.com/cancel",
	}, slog.Default())
}

func signatureHeader(at time.Time, payload []byte, secret string) string {
	signature := stripewebhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(signature))
}

func TestClient_VerifyEvent(t *testing.T) {
	payload := []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"checkout.session.completed","api_version":%q,"data":{"object":{"id":"cs_1"}}}`,
		stripe.APIVersion))

	tests := []struct {
		name      string
		payload   []byte
		sigHeader string
		expectErr bool
	}{
		{
			name:      "ValidSignature",
			payload:   payload,
			sigHeader: signatureHeader(time.Now(), payload, webhookSecret),
		},
		{
			name:      "WrongSecret",
			payload:   payload,
			sigHeader: signatureHeader(time.Now(), payload, "whsec_other"),
			expectErr: true,
		},
		{
			name:      "TamperedPayload",
			payload:   []byte(string(payload) + " "),
			sigHeader: signatureHeader(time.Now(), payload, webhookSecret),
			expectErr: true,
		},
		{
			name:      "StaleTimestamp",
			payload:   payload,
			sigHeader: signatureHeader(time.Now().Add(-time.Hour), payload, webhookSecret),
			expectErr: true,
		},
		{
			name:      "MissingHeader",
			payload:   payload,
			sigHeader: "",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := newClient().VerifyEvent(tt.payload, tt.sigHeader)

			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "evt_1", event.ID)
			assert.Equal(t, stripe.EventTypeCheckoutSessionCompleted, event.Type)
		})
	}
}

func TestClient_GetSubscription(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.stripe.com").
		Get("/v1/subscriptions/sub_123").
		Reply(200).
		JSON(map[string]any{
			"id":       "sub_123",
			"status":   "active",
			"metadata": map[string]string{"telegram_id": "12345"},
			"items": map[string]any{
				"data": []map[string]any{{"price": map[string]string{"id": "price_monthly"}}},
			},
		})

	sub, err := newClient().GetSubscription(context.Background(), "sub_123")

	require.NoError(t, err)
	assert.Equal(t, "sub_123", sub.ID)
	assert.Equal(t, "12345", sub.Metadata["telegram_id"])
	assert.Equal(t, "price_monthly", payment.SubscriptionPriceID(sub))
	assert.True(t, gock.IsDone())
}

func TestClient_GetSubscription_NotFound(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.stripe.com").
		Get("/v1/subscriptions/sub_missing").
		Reply(404).
		JSON(map[string]any{"error": map[string]string{"message": "No such subscription", "type": "invalid_request_error"}})

	_, err := newClient().GetSubscription(context.Background(), "sub_missing")

	assert.Error(t, err)
}

func TestClient_GetSubscription_EmptyID(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.stripe.com")

	_, err := newClient().GetSubscription(context.Background(), "")

	assert.Error(t, err)
	assert.Len(t, gock.Pending(), 1)
}

func TestClient_CreateCheckoutSession(t *testing.T) {
	defer gock.Off()

	var form url.Values
	gock.New("https://api.stripe.com").
		Post("/v1/checkout/sessions").
		AddMatcher(func(req *http.Request, _ *gock.Request) (bool, error) {
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return false, err
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
			form, err = url.ParseQuery(string(body))
			return true, err
		}).
		Reply(200).
		JSON(map[string]string{"id": "cs_123", "url": "https://checkout.example.com/cs_123"})

	session, err := newClient().CreateCheckoutSession(context.Background(), "price_monthly", "12345")

	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/cs_123", session.URL)

	assert.Equal(t, "subscription", form.Get("mode"))
	assert.Equal(t, "12345", form.Get("client_reference_id"))
	assert.Equal(t, "price_monthly", form.Get("line_items[0][price]"))
	assert.Equal(t, "12345", form.Get("subscription_data[metadata][telegram_id]"))
	assert.Equal(t, "https://example.com/success", form.Get("success_url"))
	assert.Equal(t, "https://example.com/cancel", form.Get("cancel_url"))
	assert.True(t, gock.IsDone())
}

func TestSubscriptionPriceID(t *testing.T) {
	assert.Equal(t, "", payment.SubscriptionPriceID(nil))
	assert.Equal(t, "", payment.SubscriptionPriceID(&stripe.Subscription{}))

	sub := &stripe.Subscription{Items: &stripe.SubscriptionItemList{
		Data: []*stripe.SubscriptionItem{{Price: &stripe.Price{ID: "price_a"}}},
	}}
	assert.Equal(t, "price_a", payment.SubscriptionPriceID(sub))
}

func TestInvoicePriceID(t *testing.T) {
	assert.Equal(t, "", payment.InvoicePriceID(nil))
	assert.Equal(t, "", payment.InvoicePriceID(&stripe.Invoice{}))

	invoice := &stripe.Invoice{Lines: &stripe.InvoiceLineItemList{
		Data: []*stripe.InvoiceLineItem{{Price: &stripe.Price{ID: "price_b"}}},
	}}
	assert.Equal(t, "price_b", payment.InvoicePriceID(invoice))
}
