package checkout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"membership-bridge/internal/logcontext"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
)

// SessionCreator starts a provider checkout session.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, priceID, subscriberID string) (*stripe.CheckoutSession, error)
}

// Handler initiates checkout: pure pass-through to the provider, tagging
// the session with the subscriber identity so webhooks can recover it.
type Handler struct {
	sessions SessionCreator
	logger   *slog.Logger
}

func NewHandler(sessions SessionCreator, logger *slog.Logger) *Handler {
	return &Handler{sessions: sessions, logger: logger}
}

type request struct {
	PriceID string `json:"priceId"`
	ChatID  string `json:"chatId"`
}

type response struct {
	CheckoutURL string `json:"checkoutUrl"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logcontext.AppendCtx(r.Context(), slog.String("runId", uuid.New().String()))

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.PriceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "priceId is required"})
		return
	}
	if req.ChatID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chatId is required"})
		return
	}

	session, err := h.sessions.CreateCheckoutSession(ctx, req.PriceID, req.ChatID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error creating checkout session", "priceId", req.PriceID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "checkout session creation failed"})
		return
	}

	h.logger.InfoContext(ctx, "Created checkout session", "priceId", req.PriceID)
	writeJSON(w, http.StatusOK, response{CheckoutURL: session.URL})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
