package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
	"github.com/Adrien490/synclune-sub011/internal/repositories"
)

const (
	orderEventCreated         = "order.created"
	orderEventStatusChanged   = "order.status.changed"
	orderEventTrackingUpdated = "order.tracking.updated"

	orderIDPrefix = "ord_"

	orderNumberCounter = "orders"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the current status combination forbids the action.
	ErrOrderInvalidState = errors.New("order: action not permitted in current state")
	// ErrOrderConflict indicates concurrent updates or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	PaymentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Refunds     repositories.RefundRepository
	Counters    repositories.CounterRepository
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	refunds  repositories.RefundRepository
	counters repositories.CounterRepository
	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
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

	return &orderService{
		orders:   deps.Orders,
		refunds:  deps.Refunds,
		counters: deps.Counters,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		return Order{}, fmt.Errorf("%w: currency is required", ErrOrderInvalidInput)
	}

	now := s.now()

	items := make([]OrderItem, 0, len(cmd.Items))
	var itemsTotal int64
	for i, item := range cmd.Items {
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item %d quantity must be positive", ErrOrderInvalidInput, i)
		}
		if item.UnitPrice < 0 {
			return Order{}, fmt.Errorf("%w: item %d unit price must not be negative", ErrOrderInvalidInput, i)
		}
		if strings.TrimSpace(item.Title) == "" {
			return Order{}, fmt.Errorf("%w: item %d title is required", ErrOrderInvalidInput, i)
		}
		if strings.TrimSpace(item.ID) == "" {
			item.ID = "itm_" + s.newID()
		}
		itemsTotal += item.Total()
		items = append(items, item)
	}

	shippingRate := int64(0)
	if code := strings.TrimSpace(cmd.ShippingPostalCode); code != "" {
		zone := domain.ResolveShippingZone(code)
		shippingRate = domain.ShippingRateFor(zone.Zone)
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:                 orderIDPrefix + s.newID(),
		OrderNumber:        number,
		CustomerID:         strings.TrimSpace(cmd.CustomerID),
		CustomerEmail:      strings.TrimSpace(cmd.CustomerEmail),
		Currency:           currency,
		Amount:             itemsTotal + shippingRate,
		Status:             domain.OrderStatusPending,
		PaymentStatus:      domain.PaymentStatusPending,
		FulfillmentStatus:  domain.FulfillmentStatusUnfulfilled,
		Items:              items,
		ShippingPostalCode: strings.TrimSpace(cmd.ShippingPostalCode),
		CheckoutSessionID:  strings.TrimSpace(cmd.CheckoutSessionID),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	metadata := make(map[string]any, len(cmd.Metadata))
	for k, v := range cmd.Metadata {
		metadata[k] = v
	}
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		OccurredAt:    now,
		Metadata:      metadata,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (OrderDetails, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderDetails{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderDetails{}, s.mapRepositoryError(err)
	}

	var refunds []Refund
	if s.refunds != nil {
		refunds, err = s.refunds.ListByOrder(ctx, orderID)
		if err != nil {
			return OrderDetails{}, s.mapRepositoryError(err)
		}
	}

	return OrderDetails{
		Order:       order,
		Refunds:     refunds,
		Permissions: domain.OrderPermissions(order),
	}, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// MarkAsPaid records a confirmed gateway capture. Calling it on an order that
// is already paid is a no-op so that checkout reconciliation stays idempotent.
func (s *orderService) MarkAsPaid(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	return s.transition(ctx, cmd.OrderID, cmd.ActorID, func(order *domain.Order, now time.Time) error {
		if order.PaymentStatus == domain.PaymentStatusPaid {
			return nil
		}
		if !domain.OrderPermissions(*order).CanMarkAsPaid {
			return s.stateError("mark as paid", *order)
		}
		order.PaymentStatus = domain.PaymentStatusPaid
		order.PaidAt = &now
		return nil
	})
}

func (s *orderService) MarkAsProcessing(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	return s.transition(ctx, cmd.OrderID, cmd.ActorID, func(order *domain.Order, now time.Time) error {
		if !domain.OrderPermissions(*order).CanMarkAsProcessing {
			return s.stateError("mark as processing", *order)
		}
		order.Status = domain.OrderStatusProcessing
		order.FulfillmentStatus = domain.FulfillmentStatusProcessing
		return nil
	})
}

func (s *orderService) Ship(ctx context.Context, cmd ShipOrderCommand) (Order, error) {
	tracking := strings.TrimSpace(cmd.TrackingNumber)
	return s.transition(ctx, cmd.OrderID, cmd.ActorID, func(order *domain.Order, now time.Time) error {
		if !domain.OrderPermissions(*order).CanMarkAsShipped {
			return s.stateError("ship", *order)
		}
		order.Status = domain.OrderStatusShipped
		order.FulfillmentStatus = domain.FulfillmentStatusShipped
		order.ShippedAt = &now
		if tracking != "" {
			applyTracking(order, tracking, cmd.CarrierOverride)
		}
		return nil
	})
}

func (s *orderService) Deliver(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	return s.transition(ctx, cmd.OrderID, cmd.ActorID, func(order *domain.Order, now time.Time) error {
		if !domain.OrderPermissions(*order).CanMarkAsDelivered {
			return s.stateError("deliver", *order)
		}
		order.Status = domain.OrderStatusDelivered
		order.FulfillmentStatus = domain.FulfillmentStatusDelivered
		order.DeliveredAt = &now
		return nil
	})
}

// RevertToProcessing walks a shipped order back to preparation, discarding the
// tracking details recorded for the aborted shipment.
func (s *orderService) RevertToProcessing(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	return s.transition(ctx, cmd.OrderID, cmd.ActorID, func(order *domain.Order, now time.Time) error {
		if !domain.OrderPermissions(*order).CanRevertToProcessing {
			return s.stateError("revert to processing", *order)
		}
		order.Status = domain.OrderStatusProcessing
		order.FulfillmentStatus = domain.FulfillmentStatusProcessing
		order.ShippedAt = nil
		order.Carrier = ""
		order.TrackingNumber = ""
		order.TrackingURL = ""
		return nil
	})
}

func (s *orderService) UpdateTracking(ctx context.Context, cmd UpdateTrackingCommand) (Order, error) {
	tracking := strings.TrimSpace(cmd.TrackingNumber)
	if tracking == "" {
		return Order{}, fmt.Errorf("%w: tracking number is required", ErrOrderInvalidInput)
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.now()
	order, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		if !domain.OrderPermissions(*order).CanUpdateTracking {
			return s.stateError("update tracking", *order)
		}
		applyTracking(order, tracking, "")
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventTrackingUpdated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		ActorID:       strings.TrimSpace(cmd.ActorID),
		OccurredAt:    now,
		Metadata: map[string]any{
			"carrier":        string(order.Carrier),
			"trackingNumber": order.TrackingNumber,
		},
	})

	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	return s.transition(ctx, cmd.OrderID, cmd.ActorID, func(order *domain.Order, now time.Time) error {
		if !domain.OrderPermissions(*order).CanCancel {
			return s.stateError("cancel", *order)
		}
		order.Status = domain.OrderStatusCanceled
		order.CanceledAt = &now
		return nil
	})
}

// transition wraps the shared mutate-and-publish flow. fn sees the freshly
// read document and decides inside the repository transaction whether the
// action is still permitted.
func (s *orderService) transition(ctx context.Context, orderID, actorID string, fn func(order *domain.Order, now time.Time) error) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.now()
	var previousStatus, previousPayment string
	order, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		previousStatus = string(order.Status)
		previousPayment = string(order.PaymentStatus)
		if err := fn(order, now); err != nil {
			return err
		}
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if previousStatus != string(order.Status) || previousPayment != string(order.PaymentStatus) {
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			PreviousStatus: previousStatus,
			CurrentStatus:  string(order.Status),
			PaymentStatus:  string(order.PaymentStatus),
			ActorID:        strings.TrimSpace(actorID),
			OccurredAt:     now,
		})
	}

	return order, nil
}

func applyTracking(order *domain.Order, trackingNumber, carrierOverride string) {
	detection := domain.DetectCarrier(trackingNumber)
	order.TrackingNumber = strings.ToUpper(strings.TrimSpace(trackingNumber))
	order.Carrier = detection.Carrier
	order.TrackingURL = detection.TrackingURL
	if override := strings.TrimSpace(carrierOverride); override != "" {
		order.Carrier = domain.Carrier(strings.ToLower(override))
	}
}

func (s *orderService) stateError(action string, order domain.Order) error {
	return fmt.Errorf("%w: cannot %s while status=%s payment=%s fulfillment=%s",
		ErrOrderInvalidState, action, order.Status, order.PaymentStatus, order.FulfillmentStatus)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SL-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}
