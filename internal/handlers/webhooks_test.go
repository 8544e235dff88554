package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78"

	"github.com/Adrien490/synclune-sub011/internal/services"
)

const testSigningSecret = "whsec_test_secret"

func signWebhookPayload(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	timestamp := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func sessionEventPayload(eventType, sessionID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"api_version": %q,
		"type": %q,
		"data": {"object": {"id": %q, "object": "checkout.session"}}
	}`, stripe.APIVersion, eventType, sessionID))
}

func newWebhookRouter(service services.CheckoutService) chi.Router {
	router := chi.NewRouter()
	router.Route("/webhooks", NewWebhookHandlers(service, testSigningSecret).Routes)
	return router
}

func TestWebhookHandlersSessionCompleted(t *testing.T) {
	var capturedCmd services.SessionEventCommand
	service := &stubCheckoutService{
		eventFn: func(_ context.Context, cmd services.SessionEventCommand) error {
			capturedCmd = cmd
			return nil
		},
	}

	payload := sessionEventPayload("checkout.session.completed", "cs_123")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBuffer(payload))
	req.Header.Set("Stripe-Signature", signWebhookPayload(t, payload, testSigningSecret))

	rr := httptest.NewRecorder()
	newWebhookRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedCmd.EventType != "checkout.session.completed" {
		t.Fatalf("unexpected event type %s", capturedCmd.EventType)
	}
	if capturedCmd.SessionID != "cs_123" {
		t.Fatalf("expected session cs_123, got %s", capturedCmd.SessionID)
	}
}

func TestWebhookHandlersInvalidSignature(t *testing.T) {
	called := false
	service := &stubCheckoutService{
		eventFn: func(context.Context, services.SessionEventCommand) error {
			called = true
			return nil
		},
	}

	payload := sessionEventPayload("checkout.session.completed", "cs_123")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBuffer(payload))
	req.Header.Set("Stripe-Signature", signWebhookPayload(t, payload, "whsec_wrong_secret"))

	rr := httptest.NewRecorder()
	newWebhookRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if called {
		t.Fatalf("event must not be processed on signature failure")
	}
}

func TestWebhookHandlersMissingSignature(t *testing.T) {
	payload := sessionEventPayload("checkout.session.completed", "cs_123")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBuffer(payload))

	rr := httptest.NewRecorder()
	newWebhookRouter(&stubCheckoutService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestWebhookHandlersSessionNotFound(t *testing.T) {
	service := &stubCheckoutService{
		eventFn: func(context.Context, services.SessionEventCommand) error {
			return services.ErrCheckoutSessionNotFound
		},
	}

	payload := sessionEventPayload("checkout.session.completed", "cs_unknown")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBuffer(payload))
	req.Header.Set("Stripe-Signature", signWebhookPayload(t, payload, testSigningSecret))

	rr := httptest.NewRecorder()
	newWebhookRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestWebhookHandlersProcessingFailure(t *testing.T) {
	service := &stubCheckoutService{
		eventFn: func(context.Context, services.SessionEventCommand) error {
			return errors.New("firestore unavailable")
		},
	}

	payload := sessionEventPayload("checkout.session.expired", "cs_123")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBuffer(payload))
	req.Header.Set("Stripe-Signature", signWebhookPayload(t, payload, testSigningSecret))

	rr := httptest.NewRecorder()
	newWebhookRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestWebhookHandlersNotConfigured(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/webhooks", NewWebhookHandlers(&stubCheckoutService{}, "").Routes)

	payload := sessionEventPayload("checkout.session.completed", "cs_123")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBuffer(payload))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
