package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
	refunds  stripeRefundAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Clients   *stripeClients
}

// StripeProvider implements the Provider interface using Stripe APIs.
type StripeProvider struct {
	api     stripeClients
	account string
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			sessions: sc.CheckoutSessions,
			refunds:  sc.Refunds,
		}
	}

	if clients.sessions == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// RetrieveSession fetches a Stripe Checkout session and normalises its state.
func (p *StripeProvider) RetrieveSession(ctx context.Context, sessionID string) (SessionDetails, error) {
	if p == nil {
		return SessionDetails{}, errors.New("stripe: provider is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionDetails{}, errors.New("stripe: session id is required")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}

	session, err := p.api.sessions.Get(sessionID, params)
	if err != nil {
		if isStripeNotFound(err) {
			return SessionDetails{}, ErrSessionNotFound
		}
		return SessionDetails{}, fmt.Errorf("stripe: retrieve checkout session: %w", err)
	}

	details := stripeSessionDetails(session)
	p.logger(ctx, "payments.stripe.session.retrieved", map[string]any{
		"sessionId":     details.ID,
		"sessionStatus": details.Status,
		"paid":          details.Paid,
	})
	return details, nil
}

// Refund creates a refund against the provided Payment Intent.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (RefundDetails, error) {
	if p == nil {
		return RefundDetails{}, errors.New("stripe: provider is nil")
	}
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if intentID == "" {
		return RefundDetails{}, errors.New("stripe: payment intent id is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	refund, err := p.api.refunds.New(params)
	if err != nil {
		return RefundDetails{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"paymentIntent": intentID,
		"refundId":      refund.ID,
		"amount":        refund.Amount,
	})

	return RefundDetails{
		RefundID: refund.ID,
		Status:   string(refund.Status),
		Amount:   refund.Amount,
		Currency: strings.ToUpper(string(refund.Currency)),
	}, nil
}

func stripeSessionDetails(session *stripe.CheckoutSession) SessionDetails {
	if session == nil {
		return SessionDetails{}
	}

	status := SessionStatusUnknown
	switch session.Status {
	case stripe.CheckoutSessionStatusOpen:
		status = SessionStatusOpen
	case stripe.CheckoutSessionStatusComplete:
		status = SessionStatusComplete
	case stripe.CheckoutSessionStatusExpired:
		status = SessionStatusExpired
	}

	intentID := ""
	if session.PaymentIntent != nil {
		intentID = session.PaymentIntent.ID
	}

	var expiresAt time.Time
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	metadata := make(map[string]string, len(session.Metadata))
	for k, v := range session.Metadata {
		metadata[k] = v
	}

	return SessionDetails{
		ID:              session.ID,
		Status:          status,
		Paid:            session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		PaymentIntentID: intentID,
		OrderID:         metadata["orderId"],
		OrderNumber:     metadata["orderNumber"],
		AmountTotal:     session.AmountTotal,
		Currency:        strings.ToUpper(string(session.Currency)),
		ExpiresAt:       expiresAt,
		Metadata:        metadata,
	}
}

func isStripeNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
