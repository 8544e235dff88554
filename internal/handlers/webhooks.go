package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"github.com/Adrien490/synclune-sub011/internal/platform/httpx"
	"github.com/Adrien490/synclune-sub011/internal/platform/requestctx"
	"github.com/Adrien490/synclune-sub011/internal/services"
)

const maxWebhookBodySize = 64 * 1024

// WebhookHandlers receives signed gateway notifications. The webhook is a
// secondary signal next to the return URL; both converge on the same
// settlement path so whichever arrives first wins.
type WebhookHandlers struct {
	checkout      services.CheckoutService
	signingSecret string
}

// NewWebhookHandlers constructs handlers for the payment gateway webhook.
func NewWebhookHandlers(checkout services.CheckoutService, signingSecret string) *WebhookHandlers {
	return &WebhookHandlers{
		checkout:      checkout,
		signingSecret: strings.TrimSpace(signingSecret),
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripeEvent)
}

func (h *WebhookHandlers) handleStripeEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	if h.checkout == nil || h.signingSecret == "" {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook endpoint not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read webhook payload", http.StatusBadRequest))
		}
		return
	}

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.signingSecret)
	if err != nil {
		logger.Warn("webhook signature verification failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "webhook payload must contain an object id", http.StatusBadRequest))
		return
	}

	err = h.checkout.HandleSessionEvent(ctx, services.SessionEventCommand{
		EventType: string(event.Type),
		SessionID: payload.ID,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCheckoutInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case errors.Is(err, services.ErrCheckoutSessionNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "no order matches the checkout session", http.StatusNotFound))
		default:
			logger.Error("webhook processing failed", zap.String("eventType", string(event.Type)), zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook event", http.StatusInternalServerError))
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
