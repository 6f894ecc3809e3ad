package identity_test

import (
	"testing"

	"membership-bridge/internal/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v81"
)

func TestFromCheckoutSession(t *testing.T) {
	tests := []struct {
		name       string
		session    *stripe.CheckoutSession
		sub        *stripe.Subscription
		expectedID int64
		expectedOk bool
	}{
		{
			name:       "ClientReferenceWins",
			session:    &stripe.CheckoutSession{ClientReferenceID: "12345", Metadata: map[string]string{"telegram_id": "999"}},
			sub:        &stripe.Subscription{Metadata: map[string]string{"telegram_id": "888"}},
			expectedID: 12345,
			expectedOk: true,
		},
		{
			name:       "SessionMetadataSecond",
			session:    &stripe.CheckoutSession{Metadata: map[string]string{"telegram_id": "999"}},
			sub:        &stripe.Subscription{Metadata: map[string]string{"telegram_id": "888"}},
			expectedID: 999,
			expectedOk: true,
		},
		{
			name:       "SubscriptionMetadataLast",
			session:    &stripe.CheckoutSession{},
			sub:        &stripe.Subscription{Metadata: map[string]string{"telegram_id": "888"}},
			expectedID: 888,
			expectedOk: true,
		},
		{
			name:       "NegativeChatID",
			session:    &stripe.CheckoutSession{ClientReferenceID: "-100123"},
			expectedID: -100123,
			expectedOk: true,
		},
		{
			name:       "NonNumericIsUnresolved",
			session:    &stripe.CheckoutSession{ClientReferenceID: "not-a-chat-id"},
			expectedOk: false,
		},
		{
			name:       "NothingResolvable",
			session:    &stripe.CheckoutSession{},
			expectedOk: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := identity.FromCheckoutSession(tt.session, tt.sub)
			assert.Equal(t, tt.expectedOk, ok)
			if tt.expectedOk {
				assert.Equal(t, tt.expectedID, id.ChatID)
			}
		})
	}
}

func TestFromInvoice(t *testing.T) {
	tests := []struct {
		name       string
		invoice    *stripe.Invoice
		sub        *stripe.Subscription
		expectedID int64
		expectedOk bool
	}{
		{
			name:       "SubscriptionWins",
			invoice:    &stripe.Invoice{Metadata: map[string]string{"telegram_id": "111"}},
			sub:        &stripe.Subscription{Metadata: map[string]string{"telegram_id": "222"}},
			expectedID: 222,
			expectedOk: true,
		},
		{
			name:       "InvoiceFallbackWhenFetchFailed",
			invoice:    &stripe.Invoice{Metadata: map[string]string{"telegram_id": "111"}},
			sub:        nil,
			expectedID: 111,
			expectedOk: true,
		},
		{
			name:       "InvoiceFallbackWhenSubscriptionUntagged",
			invoice:    &stripe.Invoice{Metadata: map[string]string{"telegram_id": "111"}},
			sub:        &stripe.Subscription{},
			expectedID: 111,
			expectedOk: true,
		},
		{
			name:       "NothingResolvable",
			invoice:    &stripe.Invoice{},
			expectedOk: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := identity.FromInvoice(tt.invoice, tt.sub)
			assert.Equal(t, tt.expectedOk, ok)
			if tt.expectedOk {
				assert.Equal(t, tt.expectedID, id.ChatID)
			}
		})
	}
}

func TestFromSubscription(t *testing.T) {
	id, ok := identity.FromSubscription(&stripe.Subscription{Metadata: map[string]string{"telegram_id": "67890"}})
	assert.True(t, ok)
	assert.Equal(t, int64(67890), id.ChatID)

	_, ok = identity.FromSubscription(&stripe.Subscription{})
	assert.False(t, ok)

	_, ok = identity.FromSubscription(nil)
	assert.False(t, ok)
}

func TestIdentity_String(t *testing.T) {
	assert.Equal(t, "12345", identity.Identity{ChatID: 12345}.String())
	assert.Equal(t, "-100123", identity.Identity{ChatID: -100123}.String())
}
