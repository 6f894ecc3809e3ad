// Package identity resolves a durable subscriber identity from payment
// events. Resolution is a pure function of the event payload plus an
// optional, already-fetched subscription; each source is consulted in a
// fixed documented order and the first usable value wins.
package identity

import (
	"strconv"

	"membership-bridge/internal/payment"

	"github.com/stripe/stripe-go/v81"
)

// Identity is a chat identifier understood by the messaging platform.
// Group ids are negative, user ids positive; both are valid here.
type Identity struct {
	ChatID int64
}

func (i Identity) String() string {
	return strconv.FormatInt(i.ChatID, 10)
}

// FromCheckoutSession resolves an initial purchase. Order: the session's
// client reference, the session's own metadata, then the linked
// subscription's metadata (sub may be nil when the session references no
// subscription or the fetch failed).
func FromCheckoutSession(session *stripe.CheckoutSession, sub *stripe.Subscription) (Identity, bool) {
	if session == nil {
		return Identity{}, false
	}
	if id, ok := parse(session.ClientReferenceID); ok {
		return id, true
	}
	if id, ok := parse(session.Metadata[payment.MetadataKey]); ok {
		return id, true
	}
	return fromSubscription(sub)
}

// FromInvoice resolves a recurring payment. Order: the linked
// subscription's metadata, falling back to the invoice's own metadata when
// the fetch failed or the subscription lacks the tag.
func FromInvoice(invoice *stripe.Invoice, sub *stripe.Subscription) (Identity, bool) {
	if id, ok := fromSubscription(sub); ok {
		return id, true
	}
	if invoice == nil {
		return Identity{}, false
	}
	return parse(invoice.Metadata[payment.MetadataKey])
}

// FromSubscription resolves a cancellation from the subscription object the
// event carries.
func FromSubscription(sub *stripe.Subscription) (Identity, bool) {
	return fromSubscription(sub)
}

func fromSubscription(sub *stripe.Subscription) (Identity, bool) {
	if sub == nil {
		return Identity{}, false
	}
	return parse(sub.Metadata[payment.MetadataKey])
}

// parse accepts only integer-like values; anything else counts as
// unresolved rather than an error.
func parse(raw string) (Identity, bool) {
	if raw == "" {
		return Identity{}, false
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Identity{}, false
	}
	return Identity{ChatID: chatID}, true
}
