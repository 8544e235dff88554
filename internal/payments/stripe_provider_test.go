package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type stubSessionAPI struct {
	getFn func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func (s *stubSessionAPI) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return s.getFn(id, params)
}

type stubRefundAPI struct {
	newFn func(params *stripe.RefundParams) (*stripe.Refund, error)
}

func (s *stubRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	return s.newFn(params)
}

func newTestProvider(t *testing.T, sessions stripeSessionAPI, refunds stripeRefundAPI) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		Clients: &stripeClients{sessions: sessions, refunds: refunds},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider returned error: %v", err)
	}
	return provider
}

func TestRetrieveSessionNormalisesPaidSession(t *testing.T) {
	sessions := &stubSessionAPI{
		getFn: func(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			if id != "cs_test_123" {
				t.Fatalf("unexpected session id %q", id)
			}
			return &stripe.CheckoutSession{
				ID:            "cs_test_123",
				Status:        stripe.CheckoutSessionStatusComplete,
				PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
				PaymentIntent: &stripe.PaymentIntent{ID: "pi_123"},
				AmountTotal:   4890,
				Currency:      stripe.CurrencyEUR,
				Metadata: map[string]string{
					"orderId":     "order-1",
					"orderNumber": "SL-2026-000042",
				},
			}, nil
		},
	}
	refunds := &stubRefundAPI{newFn: func(*stripe.RefundParams) (*stripe.Refund, error) {
		t.Fatal("refund API should not be called")
		return nil, nil
	}}

	provider := newTestProvider(t, sessions, refunds)
	details, err := provider.RetrieveSession(context.Background(), "cs_test_123")
	if err != nil {
		t.Fatalf("RetrieveSession returned error: %v", err)
	}
	if details.Status != SessionStatusComplete {
		t.Fatalf("expected status complete, got %s", details.Status)
	}
	if !details.Paid {
		t.Fatal("expected session to be paid")
	}
	if details.PaymentIntentID != "pi_123" {
		t.Fatalf("expected payment intent pi_123, got %q", details.PaymentIntentID)
	}
	if details.OrderNumber != "SL-2026-000042" {
		t.Fatalf("expected order number from metadata, got %q", details.OrderNumber)
	}
	if details.Currency != "EUR" {
		t.Fatalf("expected currency EUR, got %q", details.Currency)
	}
}

func TestRetrieveSessionMapsMissingSession(t *testing.T) {
	sessions := &stubSessionAPI{
		getFn: func(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			return nil, &stripe.Error{HTTPStatusCode: http.StatusNotFound, Code: stripe.ErrorCodeResourceMissing}
		},
	}
	refunds := &stubRefundAPI{newFn: func(*stripe.RefundParams) (*stripe.Refund, error) { return nil, nil }}

	provider := newTestProvider(t, sessions, refunds)
	if _, err := provider.RetrieveSession(context.Background(), "cs_missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRefundPassesIdempotencyKeyAndAmount(t *testing.T) {
	var captured *stripe.RefundParams
	refunds := &stubRefundAPI{
		newFn: func(params *stripe.RefundParams) (*stripe.Refund, error) {
			captured = params
			return &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusSucceeded, Amount: 1500, Currency: stripe.CurrencyEUR}, nil
		},
	}
	sessions := &stubSessionAPI{getFn: func(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) { return nil, nil }}

	provider := newTestProvider(t, sessions, refunds)
	amount := int64(1500)
	details, err := provider.Refund(context.Background(), RefundRequest{
		PaymentIntentID: "pi_123",
		Amount:          &amount,
		Reason:          "requested_by_customer",
		IdempotencyKey:  "refund-abc",
	})
	if err != nil {
		t.Fatalf("Refund returned error: %v", err)
	}
	if details.RefundID != "re_1" {
		t.Fatalf("expected refund id re_1, got %q", details.RefundID)
	}
	if captured == nil {
		t.Fatal("expected refund params to be captured")
	}
	if captured.PaymentIntent == nil || *captured.PaymentIntent != "pi_123" {
		t.Fatal("expected payment intent to be forwarded")
	}
	if captured.Amount == nil || *captured.Amount != 1500 {
		t.Fatal("expected amount to be forwarded")
	}
	if key := captured.GetParams().IdempotencyKey; key == nil || *key != "refund-abc" {
		t.Fatal("expected idempotency key to be forwarded")
	}
	if captured.Reason == nil || *captured.Reason != string(stripe.RefundReasonRequestedByCustomer) {
		t.Fatal("expected refund reason to be mapped")
	}
}

func TestRefundRequiresPaymentIntent(t *testing.T) {
	provider := newTestProvider(t,
		&stubSessionAPI{getFn: func(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) { return nil, nil }},
		&stubRefundAPI{newFn: func(*stripe.RefundParams) (*stripe.Refund, error) { return nil, nil }},
	)
	if _, err := provider.Refund(context.Background(), RefundRequest{}); err == nil {
		t.Fatal("expected error for missing payment intent")
	}
}
