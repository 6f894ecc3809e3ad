// Package webhook hosts the event dispatcher: the state machine that takes
// a raw payment-provider webhook from unverified bytes to an acknowledged
// membership action. Only verification failures are surfaced to the caller;
// every downstream condition is absorbed into logs and metrics so the
// provider's retry machinery never re-drives membership actions.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"membership-bridge/internal/audit"
	"membership-bridge/internal/identity"
	"membership-bridge/internal/logcontext"
	"membership-bridge/internal/payment"
	"membership-bridge/internal/plan"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
)

var (
	rejectedCounter     = metrics.GetOrCreateCounter(`webhook_events_total{result="rejected"}`)
	malformedCounter    = metrics.GetOrCreateCounter(`webhook_events_total{result="malformed"}`)
	ignoredCounter      = metrics.GetOrCreateCounter(`webhook_events_total{result="ignored"}`)
	duplicateCounter    = metrics.GetOrCreateCounter(`webhook_events_total{result="duplicate"}`)
	unresolvedCounter   = metrics.GetOrCreateCounter(`webhook_events_total{result="unresolved"}`)
	invitedCounter      = metrics.GetOrCreateCounter(`webhook_events_total{result="invited"}`)
	revokedCounter      = metrics.GetOrCreateCounter(`webhook_events_total{result="revoked"}`)
	actionFailedCounter = metrics.GetOrCreateCounter(`webhook_events_total{result="action_failed"}`)

	durationHistogram = metrics.GetOrCreateHistogram(`webhook_event_duration_milliseconds`)
)

// Provider authenticates inbound events and performs the single upstream
// lookup identity resolution is allowed to lean on.
type Provider interface {
	VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error)
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

// Actions executes classified membership actions.
type Actions interface {
	IssueInvite(ctx context.Context, id identity.Identity, tier string) error
	RevokeMembership(ctx context.Context, id identity.Identity) error
}

// Deduper reports whether an event id was already handled. Optional.
type Deduper interface {
	MarkProcessed(ctx context.Context, eventID, kind string) (bool, error)
}

// Auditor records handled events. Optional.
type Auditor interface {
	Publish(ctx context.Context, record audit.Record)
}

type Dispatcher struct {
	provider   Provider
	classifier *plan.Classifier
	actions    Actions
	dedup      Deduper
	auditor    Auditor
	logger     *slog.Logger
}

// NewDispatcher wires the dispatcher. dedup and auditor may be nil, in
// which case those concerns are skipped.
func NewDispatcher(provider Provider, classifier *plan.Classifier, actions Actions,
	dedup Deduper, auditor Auditor, logger *slog.Logger) *Dispatcher {

	return &Dispatcher{
		provider:   provider,
		classifier: classifier,
		actions:    actions,
		dedup:      dedup,
		auditor:    auditor,
		logger:     logger,
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	defer func() {
		durationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	// runId correlates all logs for one delivery
	ctx := logcontext.AppendCtx(r.Context(), slog.String("runId", uuid.New().String()))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		d.logger.ErrorContext(ctx, "Error reading request body", "error", err)
		rejectedCounter.Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	event, err := d.provider.VerifyEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		d.logger.WarnContext(ctx, "Rejected webhook that failed verification", "error", err)
		rejectedCounter.Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		return
	}

	ctx = logcontext.AppendCtx(ctx,
		slog.String("eventId", event.ID),
		slog.String("eventType", string(event.Type)))

	if seen := d.alreadyProcessed(ctx, event); seen {
		duplicateCounter.Inc()
		d.publishAudit(ctx, event, "none", "duplicate")
		d.acknowledge(w)
		return
	}

	// Verified from here on: the response is always a success ack so the
	// provider never retries on our downstream failures.
	var action, outcome string
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		action, outcome = "invite", d.handleCheckout(ctx, event)
	case stripe.EventTypeInvoicePaymentSucceeded:
		action, outcome = "invite", d.handleInvoice(ctx, event)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		action, outcome = "revoke", d.handleCancellation(ctx, event)
	default:
		d.logger.InfoContext(ctx, "Ignoring unrecognized event type")
		ignoredCounter.Inc()
		action, outcome = "none", "ignored"
	}

	d.publishAudit(ctx, event, action, outcome)
	d.acknowledge(w)
}

// handleCheckout acts on an initial purchase: resolve identity, classify
// the purchased tier, issue an invite.
func (d *Dispatcher) handleCheckout(ctx context.Context, event stripe.Event) string {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		d.logger.ErrorContext(ctx, "Error unmarshalling checkout session", "error", err)
		malformedCounter.Inc()
		return "malformed"
	}

	var subscriptionID string
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	sub := d.fetchSubscription(ctx, subscriptionID)

	id, ok := identity.FromCheckoutSession(&session, sub)
	if !ok {
		return d.unresolved(ctx)
	}

	return d.issueInvite(ctx, id, payment.SubscriptionPriceID(sub))
}

// handleInvoice acts on a successful recurring payment the same way as an
// initial purchase; price comes from the invoice's own lines when present.
func (d *Dispatcher) handleInvoice(ctx context.Context, event stripe.Event) string {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		d.logger.ErrorContext(ctx, "Error unmarshalling invoice", "error", err)
		malformedCounter.Inc()
		return "malformed"
	}

	var subscriptionID string
	if invoice.Subscription != nil {
		subscriptionID = invoice.Subscription.ID
	}
	sub := d.fetchSubscription(ctx, subscriptionID)

	id, ok := identity.FromInvoice(&invoice, sub)
	if !ok {
		return d.unresolved(ctx)
	}

	priceID := payment.InvoicePriceID(&invoice)
	if priceID == "" {
		priceID = payment.SubscriptionPriceID(sub)
	}

	return d.issueInvite(ctx, id, priceID)
}

func (d *Dispatcher) handleCancellation(ctx context.Context, event stripe.Event) string {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		d.logger.ErrorContext(ctx, "Error unmarshalling subscription", "error", err)
		malformedCounter.Inc()
		return "malformed"
	}

	id, ok := identity.FromSubscription(&sub)
	if !ok {
		return d.unresolved(ctx)
	}

	if err := d.actions.RevokeMembership(ctx, id); err != nil {
		d.logger.ErrorContext(ctx, "Error revoking membership", "chatId", id.ChatID, "error", err)
		actionFailedCounter.Inc()
		return "failed"
	}

	revokedCounter.Inc()
	return "ok"
}

func (d *Dispatcher) issueInvite(ctx context.Context, id identity.Identity, priceID string) string {
	tier := d.classifier.Classify(priceID)

	if err := d.actions.IssueInvite(ctx, id, tier); err != nil {
		d.logger.ErrorContext(ctx, "Error issuing invite", "chatId", id.ChatID, "tier", tier, "error", err)
		actionFailedCounter.Inc()
		return "failed"
	}

	invitedCounter.Inc()
	return "ok"
}

// fetchSubscription performs the one permitted upstream lookup. A failed
// fetch degrades to nil so the payload-level fallbacks still apply.
func (d *Dispatcher) fetchSubscription(ctx context.Context, subscriptionID string) *stripe.Subscription {
	if subscriptionID == "" {
		return nil
	}

	sub, err := d.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		d.logger.WarnContext(ctx, "Error fetching subscription", "subscriptionId", subscriptionID, "error", err)
		return nil
	}
	return sub
}

// alreadyProcessed consults the optional dedup store. Store errors only
// disable the guard for this delivery, never fail the request.
func (d *Dispatcher) alreadyProcessed(ctx context.Context, event stripe.Event) bool {
	if d.dedup == nil || event.ID == "" {
		return false
	}

	seen, err := d.dedup.MarkProcessed(ctx, event.ID, string(event.Type))
	if err != nil {
		d.logger.WarnContext(ctx, "Error consulting dedup store", "error", err)
		return false
	}
	if seen {
		d.logger.InfoContext(ctx, "Skipping duplicate event delivery")
	}
	return seen
}

func (d *Dispatcher) unresolved(ctx context.Context) string {
	// missing identity is a data-quality condition, not a protocol error
	d.logger.WarnContext(ctx, "No subscriber identity resolvable for event")
	unresolvedCounter.Inc()
	return "unresolved"
}

func (d *Dispatcher) publishAudit(ctx context.Context, event stripe.Event, action, outcome string) {
	if d.auditor == nil {
		return
	}

	d.auditor.Publish(ctx, audit.Record{
		EventID:    event.ID,
		Kind:       string(event.Type),
		Action:     action,
		Outcome:    outcome,
		OccurredAt: time.Now(),
	})
}

func (d *Dispatcher) acknowledge(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
