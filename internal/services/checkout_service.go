package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
	"github.com/Adrien490/synclune-sub011/internal/payments"
	"github.com/Adrien490/synclune-sub011/internal/repositories"
)

const (
	sessionEventCompleted      = "checkout.session.completed"
	sessionEventAsyncSucceeded = "checkout.session.async_payment_succeeded"
	sessionEventExpired        = "checkout.session.expired"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutSessionNotFound indicates the gateway has no record of the session.
	ErrCheckoutSessionNotFound = errors.New("checkout: session not found")
)

// checkoutGateway abstracts the session-retrieval half of payments.Provider for testing.
type checkoutGateway interface {
	RetrieveSession(ctx context.Context, sessionID string) (payments.SessionDetails, error)
}

// orderPaymentRecorder abstracts the order mutation reconciliation performs.
type orderPaymentRecorder interface {
	MarkAsPaid(ctx context.Context, cmd OrderActionCommand) (Order, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Orders    repositories.OrderRepository
	Gateway   checkoutGateway
	Lifecycle orderPaymentRecorder
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	orders    repositories.OrderRepository
	gateway   checkoutGateway
	lifecycle orderPaymentRecorder
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}
	if deps.Lifecycle == nil {
		return nil, errors.New("checkout service: order lifecycle is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		orders:    deps.Orders,
		gateway:   deps.Gateway,
		lifecycle: deps.Lifecycle,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// ReconcileReturn resolves what actually happened to a checkout session. The
// gateway is asked directly; the storefront return URL proves nothing. The
// method is idempotent: replaying a session whose order is already paid
// changes nothing and yields the same verdict.
func (s *checkoutService) ReconcileReturn(ctx context.Context, cmd ReconcileReturnCommand) (CheckoutOutcome, error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return CheckoutOutcome{}, fmt.Errorf("%w: session id is required", ErrCheckoutInvalidInput)
	}

	session, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			s.logger(ctx, "checkout.reconcile.session_missing", map[string]any{"sessionId": sessionID})
			return CheckoutOutcome{Result: CheckoutResultError}, nil
		}
		s.logger(ctx, "checkout.reconcile.gateway_error", map[string]any{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
		return CheckoutOutcome{Result: CheckoutResultError}, nil
	}

	switch {
	case session.Paid:
		return s.settlePaidSession(ctx, session)
	case session.Status == payments.SessionStatusOpen:
		return CheckoutOutcome{Result: CheckoutResultRetry, OrderNumber: session.OrderNumber}, nil
	case session.Status == payments.SessionStatusComplete:
		// Complete but unpaid: an asynchronous payment method is still settling.
		return CheckoutOutcome{Result: CheckoutResultConfirmedPending, OrderNumber: session.OrderNumber}, nil
	case session.Status == payments.SessionStatusExpired:
		return CheckoutOutcome{Result: CheckoutResultExpired, OrderNumber: session.OrderNumber}, nil
	default:
		s.logger(ctx, "checkout.reconcile.unclassified", map[string]any{
			"sessionId":     session.ID,
			"sessionStatus": session.Status,
		})
		return CheckoutOutcome{Result: CheckoutResultError}, nil
	}
}

// HandleSessionEvent applies a verified gateway webhook notification. Paid
// sessions run through the same settlement path as return-URL reconciliation,
// so whichever signal arrives first wins and the other is a no-op.
func (s *checkoutService) HandleSessionEvent(ctx context.Context, cmd SessionEventCommand) error {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrCheckoutInvalidInput)
	}

	switch cmd.EventType {
	case sessionEventCompleted, sessionEventAsyncSucceeded:
		session, err := s.gateway.RetrieveSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, payments.ErrSessionNotFound) {
				return fmt.Errorf("%w: %s", ErrCheckoutSessionNotFound, sessionID)
			}
			return err
		}
		if !session.Paid {
			s.logger(ctx, "checkout.webhook.unpaid_session", map[string]any{
				"sessionId": sessionID,
				"eventType": cmd.EventType,
			})
			return nil
		}
		_, err = s.settlePaidSession(ctx, session)
		return err
	case sessionEventExpired:
		s.logger(ctx, "checkout.webhook.session_expired", map[string]any{"sessionId": sessionID})
		return nil
	default:
		s.logger(ctx, "checkout.webhook.ignored", map[string]any{
			"sessionId": sessionID,
			"eventType": cmd.EventType,
		})
		return nil
	}
}

func (s *checkoutService) settlePaidSession(ctx context.Context, session payments.SessionDetails) (CheckoutOutcome, error) {
	order, err := s.resolveOrder(ctx, session)
	if err != nil {
		s.logger(ctx, "checkout.reconcile.order_missing", map[string]any{
			"sessionId": session.ID,
			"error":     err.Error(),
		})
		return CheckoutOutcome{Result: CheckoutResultError}, nil
	}

	if order.PaymentIntentID == "" && session.PaymentIntentID != "" {
		if updated, err := s.attachPaymentIntent(ctx, order.ID, session.PaymentIntentID); err == nil {
			order = updated
		}
	}

	order, err = s.lifecycle.MarkAsPaid(ctx, OrderActionCommand{OrderID: order.ID})
	if err != nil {
		s.logger(ctx, "checkout.reconcile.mark_paid_failed", map[string]any{
			"sessionId": session.ID,
			"orderId":   order.ID,
			"error":     err.Error(),
		})
		return CheckoutOutcome{Result: CheckoutResultError}, nil
	}

	orderNumber := session.OrderNumber
	if orderNumber == "" {
		orderNumber = order.OrderNumber
	}
	return CheckoutOutcome{
		Result:      CheckoutResultConfirmed,
		OrderNumber: orderNumber,
		Order:       order,
	}, nil
}

func (s *checkoutService) resolveOrder(ctx context.Context, session payments.SessionDetails) (Order, error) {
	if orderID := strings.TrimSpace(session.OrderID); orderID != "" {
		order, err := s.orders.FindByID(ctx, orderID)
		if err == nil {
			return order, nil
		}
	}
	return s.orders.FindByCheckoutSession(ctx, session.ID)
}

func (s *checkoutService) attachPaymentIntent(ctx context.Context, orderID, intentID string) (Order, error) {
	now := s.now()
	return s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		if order.PaymentIntentID == "" {
			order.PaymentIntentID = intentID
			order.UpdatedAt = now
		}
		return nil
	})
}
