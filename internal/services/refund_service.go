package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
	"github.com/Adrien490/synclune-sub011/internal/payments"
	"github.com/Adrien490/synclune-sub011/internal/repositories"
)

const (
	refundEventRequested = "refund.requested"
	refundEventProcessed = "refund.processed"
	refundEventRejected  = "refund.rejected"
	refundEventCanceled  = "refund.canceled"

	refundIDPrefix = "ref_"
)

var (
	// ErrRefundInvalidInput signals the caller provided invalid data.
	ErrRefundInvalidInput = errors.New("refund: invalid input")
	// ErrRefundNotFound indicates the refund could not be located.
	ErrRefundNotFound = errors.New("refund: not found")
	// ErrRefundInvalidState indicates the refund or order state forbids the action.
	ErrRefundInvalidState = errors.New("refund: action not permitted in current state")
	// ErrRefundExceedsBalance indicates the amount exceeds what is still refundable.
	ErrRefundExceedsBalance = errors.New("refund: amount exceeds refundable balance")
	// ErrRefundExceedsQuantity indicates an item quantity exceeds what remains refundable.
	ErrRefundExceedsQuantity = errors.New("refund: quantity exceeds refundable quantity")
	// ErrRefundGateway indicates the payment gateway rejected or failed the refund call.
	ErrRefundGateway = errors.New("refund: gateway failure")
	// ErrRefundConflict indicates concurrent updates or duplicates.
	ErrRefundConflict = errors.New("refund: conflict")
)

// RefundServiceDeps bundles collaborators required to construct the refund service.
type RefundServiceDeps struct {
	Orders      repositories.OrderRepository
	Refunds     repositories.RefundRepository
	Gateway     payments.Provider
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type refundService struct {
	orders  repositories.OrderRepository
	refunds repositories.RefundRepository
	gateway payments.Provider
	clock   func() time.Time
	newID   func() string
	events  OrderEventPublisher
	logger  func(context.Context, string, map[string]any)
}

// NewRefundService wires dependencies into a concrete RefundService implementation.
func NewRefundService(deps RefundServiceDeps) (RefundService, error) {
	if deps.Orders == nil {
		return nil, errors.New("refund service: order repository is required")
	}
	if deps.Refunds == nil {
		return nil, errors.New("refund service: refund repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("refund service: payment gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &refundService{
		orders:  deps.Orders,
		refunds: deps.Refunds,
		gateway: deps.Gateway,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// CreateRefund stages a refund request. The amount is derived from the
// selected items (unit price times quantity) and must fit within the order's
// refundable balance; each item quantity must fit within what requested and
// processed refunds have not already claimed.
func (s *refundService) CreateRefund(ctx context.Context, cmd CreateRefundCommand) (Refund, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Refund{}, fmt.Errorf("%w: order id is required", ErrRefundInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Refund{}, fmt.Errorf("%w: at least one item is required", ErrRefundInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Refund{}, s.mapRepositoryError(err)
	}

	if !domain.OrderPermissions(order).CanRefund {
		return Refund{}, fmt.Errorf("%w: order %s is status=%s payment=%s",
			ErrRefundInvalidState, orderID, order.Status, order.PaymentStatus)
	}

	existing, err := s.refunds.ListByOrder(ctx, orderID)
	if err != nil {
		return Refund{}, s.mapRepositoryError(err)
	}
	claimed := domain.RefundedQuantities(existing)

	var amount int64
	items := make([]RefundItem, 0, len(cmd.Items))
	for i, item := range cmd.Items {
		itemID := strings.TrimSpace(item.OrderItemID)
		if itemID == "" {
			return Refund{}, fmt.Errorf("%w: item %d order item id is required", ErrRefundInvalidInput, i)
		}
		line, ok := order.Item(itemID)
		if !ok {
			return Refund{}, fmt.Errorf("%w: order item %s does not exist", ErrRefundInvalidInput, itemID)
		}
		if item.Quantity <= 0 {
			return Refund{}, fmt.Errorf("%w: item %s quantity must be positive", ErrRefundInvalidInput, itemID)
		}
		if remaining := line.Quantity - claimed[itemID]; item.Quantity > remaining {
			return Refund{}, fmt.Errorf("%w: item %s has %d refundable, %d requested",
				ErrRefundExceedsQuantity, itemID, remaining, item.Quantity)
		}
		amount += line.UnitPrice * int64(item.Quantity)
		item.OrderItemID = itemID
		items = append(items, item)
	}

	if cmd.ExpectedAmount != 0 && cmd.ExpectedAmount != amount {
		return Refund{}, fmt.Errorf("%w: expected amount %d does not match computed amount %d",
			ErrRefundInvalidInput, cmd.ExpectedAmount, amount)
	}
	if amount > order.RefundableBalance() {
		return Refund{}, fmt.Errorf("%w: %d requested, %d refundable",
			ErrRefundExceedsBalance, amount, order.RefundableBalance())
	}

	now := s.now()
	refund := Refund{
		ID:        refundIDPrefix + s.newID(),
		OrderRef:  orderID,
		Amount:    amount,
		Currency:  order.Currency,
		Status:    domain.RefundStatusRequested,
		Reason:    strings.TrimSpace(cmd.Reason),
		Items:     items,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.refunds.Insert(ctx, refund); err != nil {
		return Refund{}, s.mapRepositoryError(err)
	}

	s.publishRefundEvent(ctx, refundEventRequested, order, refund, cmd.ActorID)
	return refund, nil
}

// ProcessRefund executes a staged refund. The gateway call carries the refund
// id as idempotency key, then a single storage transaction settles the refund,
// restocks flagged items, and recomputes the order payment status. Only a
// REQUESTED refund can be processed; re-running a processed refund fails.
func (s *refundService) ProcessRefund(ctx context.Context, cmd ProcessRefundCommand) (Refund, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	refundID := strings.TrimSpace(cmd.RefundID)
	if orderID == "" || refundID == "" {
		return Refund{}, fmt.Errorf("%w: order id and refund id are required", ErrRefundInvalidInput)
	}

	refund, err := s.refunds.FindByID(ctx, orderID, refundID)
	if err != nil {
		return Refund{}, s.mapRepositoryError(err)
	}
	if refund.Status != domain.RefundStatusRequested {
		return Refund{}, fmt.Errorf("%w: refund %s is %s", ErrRefundInvalidState, refundID, refund.Status)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Refund{}, s.mapRepositoryError(err)
	}
	if strings.TrimSpace(order.PaymentIntentID) == "" {
		return Refund{}, fmt.Errorf("%w: order %s has no captured payment", ErrRefundInvalidState, orderID)
	}

	amount := refund.Amount
	details, err := s.gateway.Refund(ctx, payments.RefundRequest{
		PaymentIntentID: order.PaymentIntentID,
		Amount:          &amount,
		Reason:          refund.Reason,
		IdempotencyKey:  refund.ID,
		Metadata: map[string]string{
			"orderId":  order.ID,
			"refundId": refund.ID,
		},
	})
	if err != nil {
		s.logger(ctx, "refund.gateway.failed", map[string]any{
			"order":  orderID,
			"refund": refundID,
			"error":  err.Error(),
		})
		return Refund{}, fmt.Errorf("%w: %v", ErrRefundGateway, err)
	}

	restocks := make(map[string]int64)
	for _, item := range refund.Items {
		if !item.Restock {
			continue
		}
		if line, ok := order.Item(item.OrderItemID); ok && line.ProductRef != "" {
			restocks[line.ProductRef] += int64(item.Quantity)
		}
	}

	result, err := s.refunds.Process(ctx, repositories.ProcessRefundRequest{
		OrderID:         orderID,
		RefundID:        refundID,
		GatewayRefundID: details.RefundID,
		Restocks:        restocks,
		Now:             s.now(),
	})
	if err != nil {
		return Refund{}, s.mapRepositoryError(err)
	}

	s.publishRefundEvent(ctx, refundEventProcessed, result.Order, result.Refund, cmd.ActorID)
	return result.Refund, nil
}

func (s *refundService) RejectRefund(ctx context.Context, cmd CloseRefundCommand) (Refund, error) {
	return s.closeRefund(ctx, cmd, domain.RefundStatusRejected, refundEventRejected)
}

func (s *refundService) CancelRefund(ctx context.Context, cmd CloseRefundCommand) (Refund, error) {
	return s.closeRefund(ctx, cmd, domain.RefundStatusCanceled, refundEventCanceled)
}

func (s *refundService) closeRefund(ctx context.Context, cmd CloseRefundCommand, target domain.RefundStatus, eventType string) (Refund, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	refundID := strings.TrimSpace(cmd.RefundID)
	if orderID == "" || refundID == "" {
		return Refund{}, fmt.Errorf("%w: order id and refund id are required", ErrRefundInvalidInput)
	}

	now := s.now()
	refund, err := s.refunds.Mutate(ctx, orderID, refundID, func(refund *domain.Refund) error {
		if refund.Status != domain.RefundStatusRequested {
			return fmt.Errorf("%w: refund %s is %s", ErrRefundInvalidState, refundID, refund.Status)
		}
		refund.Status = target
		switch target {
		case domain.RefundStatusRejected:
			refund.RejectedAt = &now
		case domain.RefundStatusCanceled:
			refund.CanceledAt = &now
		}
		if reason := strings.TrimSpace(cmd.Reason); reason != "" {
			refund.Reason = reason
		}
		refund.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Refund{}, s.mapRepositoryError(err)
	}

	s.publishRefundEvent(ctx, eventType, Order{ID: orderID}, refund, cmd.ActorID)
	return refund, nil
}

func (s *refundService) GetRefund(ctx context.Context, orderID, refundID string) (Refund, error) {
	refund, err := s.refunds.FindByID(ctx, strings.TrimSpace(orderID), strings.TrimSpace(refundID))
	if err != nil {
		return Refund{}, s.mapRepositoryError(err)
	}
	return refund, nil
}

func (s *refundService) ListRefunds(ctx context.Context, orderID string) ([]Refund, error) {
	refunds, err := s.refunds.ListByOrder(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return refunds, nil
}

func (s *refundService) publishRefundEvent(ctx context.Context, eventType string, order Order, refund Refund, actorID string) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:          eventType,
		OrderID:       refund.OrderRef,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		ActorID:       strings.TrimSpace(actorID),
		OccurredAt:    s.now(),
		Metadata: map[string]any{
			"refundId":     refund.ID,
			"refundStatus": string(refund.Status),
			"amount":       refund.Amount,
		},
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "refund.event.publish.failed", map[string]any{
			"type":   eventType,
			"order":  refund.OrderRef,
			"refund": refund.ID,
			"error":  err.Error(),
		})
	}
}

func (s *refundService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var refundErr *repositories.RefundError
	if errors.As(err, &refundErr) {
		switch refundErr.Code {
		case repositories.RefundErrorNotFound, repositories.RefundErrorOrderNotFound:
			return fmt.Errorf("%w: %v", ErrRefundNotFound, err)
		case repositories.RefundErrorInvalidState:
			return fmt.Errorf("%w: %v", ErrRefundInvalidState, err)
		case repositories.RefundErrorAlreadyProcessed:
			return fmt.Errorf("%w: %v", ErrRefundConflict, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrRefundNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrRefundConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("refund: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *refundService) now() time.Time {
	return s.clock()
}
