package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
	"github.com/Adrien490/synclune-sub011/internal/repositories"
)

type stubOrderRepository struct {
	insertFn        func(context.Context, domain.Order) error
	findByIDFn      func(context.Context, string) (domain.Order, error)
	findBySessionFn func(context.Context, string) (domain.Order, error)
	listFn          func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	mutateFn        func(context.Context, string, func(*domain.Order) error) (domain.Order, error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("find by id not stubbed")
}

func (s *stubOrderRepository) FindByCheckoutSession(ctx context.Context, sessionID string) (domain.Order, error) {
	if s.findBySessionFn != nil {
		return s.findBySessionFn(ctx, sessionID)
	}
	return domain.Order{}, errors.New("find by session not stubbed")
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepository) Mutate(ctx context.Context, orderID string, fn func(*domain.Order) error) (domain.Order, error) {
	if s.mutateFn != nil {
		return s.mutateFn(ctx, orderID, fn)
	}
	return domain.Order{}, errors.New("mutate not stubbed")
}

// mutateFrom applies fn to a copy of the given order, mimicking the
// read-modify-write transaction of the real repository.
func mutateFrom(order domain.Order) func(context.Context, string, func(*domain.Order) error) (domain.Order, error) {
	return func(_ context.Context, _ string, fn func(*domain.Order) error) (domain.Order, error) {
		updated := order
		updated.Items = append([]domain.OrderItem(nil), order.Items...)
		if err := fn(&updated); err != nil {
			return domain.Order{}, err
		}
		return updated, nil
	}
}

type stubRefundRepository struct {
	insertFn   func(context.Context, domain.Refund) error
	findByIDFn func(context.Context, string, string) (domain.Refund, error)
	listFn     func(context.Context, string) ([]domain.Refund, error)
	mutateFn   func(context.Context, string, string, func(*domain.Refund) error) (domain.Refund, error)
	processFn  func(context.Context, repositories.ProcessRefundRequest) (repositories.ProcessRefundResult, error)
}

func (s *stubRefundRepository) Insert(ctx context.Context, refund domain.Refund) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, refund)
	}
	return nil
}

func (s *stubRefundRepository) FindByID(ctx context.Context, orderID, refundID string) (domain.Refund, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, orderID, refundID)
	}
	return domain.Refund{}, errors.New("find by id not stubbed")
}

func (s *stubRefundRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID)
	}
	return nil, nil
}

func (s *stubRefundRepository) Mutate(ctx context.Context, orderID, refundID string, fn func(*domain.Refund) error) (domain.Refund, error) {
	if s.mutateFn != nil {
		return s.mutateFn(ctx, orderID, refundID, fn)
	}
	return domain.Refund{}, errors.New("mutate not stubbed")
}

func (s *stubRefundRepository) Process(ctx context.Context, req repositories.ProcessRefundRequest) (repositories.ProcessRefundResult, error) {
	if s.processFn != nil {
		return s.processFn(ctx, req)
	}
	return repositories.ProcessRefundResult{}, errors.New("process not stubbed")
}

type stubCounterRepository struct {
	nextFn      func(context.Context, string, int64) (int64, error)
	configureFn func(context.Context, string, repositories.CounterConfig) error
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubCounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if s.configureFn != nil {
		return s.configureFn(ctx, counterID, cfg)
	}
	return nil
}

type captureEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureEvents) byType(eventType string) []OrderEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []OrderEvent
	for _, event := range c.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepository{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubCounterRepository{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func paidProcessingOrder() domain.Order {
	return domain.Order{
		ID:                "ord_1",
		OrderNumber:       "SL-2026-000007",
		Currency:          "EUR",
		Amount:            5000,
		Status:            domain.OrderStatusProcessing,
		PaymentStatus:     domain.PaymentStatusPaid,
		FulfillmentStatus: domain.FulfillmentStatusProcessing,
		Items: []domain.OrderItem{
			{ID: "itm_a", ProductRef: "prod_a", Title: "Tote bag", UnitPrice: 2500, Quantity: 2},
		},
	}
}

func TestCreateOrderGeneratesNumberAndShipping(t *testing.T) {
	var inserted domain.Order
	orders := &stubOrderRepository{
		insertFn: func(_ context.Context, order domain.Order) error {
			inserted = order
			return nil
		},
	}
	counters := &stubCounterRepository{
		nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
			if counterID != "orders" || step != 1 {
				t.Fatalf("unexpected counter call %s/%d", counterID, step)
			}
			return 42, nil
		},
	}
	events := &captureEvents{}

	svc := newOrderService(t, OrderServiceDeps{Orders: orders, Counters: counters, Events: events})

	order, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		Currency: "eur",
		Items: []OrderItem{
			{Title: "Tote bag", UnitPrice: 2500, Quantity: 2},
		},
		ShippingPostalCode: "75011",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if order.OrderNumber != "SL-2026-000042" {
		t.Fatalf("expected order number SL-2026-000042, got %s", order.OrderNumber)
	}
	if !strings.HasPrefix(order.ID, "ord_") {
		t.Fatalf("expected ord_ prefix, got %s", order.ID)
	}
	if order.Currency != "EUR" {
		t.Fatalf("expected normalised currency EUR, got %s", order.Currency)
	}
	if want := int64(5000) + domain.ShippingRateFor(domain.ZoneDomestic); order.Amount != want {
		t.Fatalf("expected amount %d, got %d", want, order.Amount)
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending/pending, got %s/%s", order.Status, order.PaymentStatus)
	}
	if len(order.Items) != 1 || !strings.HasPrefix(order.Items[0].ID, "itm_") {
		t.Fatalf("expected generated item id, got %+v", order.Items)
	}
	if inserted.ID != order.ID {
		t.Fatalf("expected insert of %s, got %s", order.ID, inserted.ID)
	}
	if got := events.byType("order.created"); len(got) != 1 {
		t.Fatalf("expected one created event, got %d", len(got))
	}
}

func TestCreateOrderRejectsInvalidItems(t *testing.T) {
	svc := newOrderService(t, OrderServiceDeps{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{Currency: "EUR"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for empty items, got %v", err)
	}

	_, err = svc.CreateOrder(context.Background(), CreateOrderCommand{
		Currency: "EUR",
		Items:    []OrderItem{{Title: "Tote bag", UnitPrice: 2500, Quantity: 0}},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}
}

func TestGetOrderJoinsRefundsAndPermissions(t *testing.T) {
	order := paidProcessingOrder()
	orders := &stubOrderRepository{
		findByIDFn: func(_ context.Context, orderID string) (domain.Order, error) {
			if orderID != order.ID {
				t.Fatalf("unexpected order id %s", orderID)
			}
			return order, nil
		},
	}
	refunds := &stubRefundRepository{
		listFn: func(context.Context, string) ([]domain.Refund, error) {
			return []domain.Refund{{ID: "ref_1", OrderRef: order.ID, Status: domain.RefundStatusRequested}}, nil
		},
	}

	svc := newOrderService(t, OrderServiceDeps{Orders: orders, Refunds: refunds})

	details, err := svc.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(details.Refunds) != 1 {
		t.Fatalf("expected one refund, got %d", len(details.Refunds))
	}
	if !details.Permissions.CanMarkAsShipped {
		t.Fatalf("expected processing+paid order to be shippable: %+v", details.Permissions)
	}
	if details.Permissions.CanMarkAsPaid {
		t.Fatalf("did not expect paid order to allow mark-as-paid")
	}
}

func TestMarkAsPaidIsIdempotent(t *testing.T) {
	order := paidProcessingOrder()
	events := &captureEvents{}
	svc := newOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{mutateFn: mutateFrom(order)},
		Events: events,
	})

	updated, err := svc.MarkAsPaid(context.Background(), OrderActionCommand{OrderID: order.ID})
	if err != nil {
		t.Fatalf("mark as paid: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", updated.PaymentStatus)
	}
	if got := events.byType("order.status.changed"); len(got) != 0 {
		t.Fatalf("expected no event for already-paid order, got %d", len(got))
	}
}

func TestMarkAsPaidFromPending(t *testing.T) {
	order := paidProcessingOrder()
	order.Status = domain.OrderStatusPending
	order.PaymentStatus = domain.PaymentStatusPending
	order.FulfillmentStatus = domain.FulfillmentStatusUnfulfilled

	events := &captureEvents{}
	svc := newOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{mutateFn: mutateFrom(order)},
		Events: events,
	})

	updated, err := svc.MarkAsPaid(context.Background(), OrderActionCommand{OrderID: order.ID, ActorID: "admin_1"})
	if err != nil {
		t.Fatalf("mark as paid: %v", err)
	}
	if updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", updated.PaymentStatus)
	}
	if updated.PaidAt == nil {
		t.Fatalf("expected paid timestamp to be set")
	}
	got := events.byType("order.status.changed")
	if len(got) != 1 {
		t.Fatalf("expected one status event, got %d", len(got))
	}
	if got[0].PaymentStatus != "paid" || got[0].ActorID != "admin_1" {
		t.Fatalf("unexpected event payload %+v", got[0])
	}
}

func TestShipDetectsCarrierFromTrackingNumber(t *testing.T) {
	order := paidProcessingOrder()
	svc := newOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{mutateFn: mutateFrom(order)},
	})

	updated, err := svc.Ship(context.Background(), ShipOrderCommand{
		OrderID:        order.ID,
		TrackingNumber: " xy123456789fr ",
	})
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if updated.Status != domain.OrderStatusShipped || updated.FulfillmentStatus != domain.FulfillmentStatusShipped {
		t.Fatalf("expected shipped/shipped, got %s/%s", updated.Status, updated.FulfillmentStatus)
	}
	if updated.ShippedAt == nil {
		t.Fatalf("expected shipped timestamp")
	}
	if updated.Carrier != domain.CarrierChronopost {
		t.Fatalf("expected chronopost, got %s", updated.Carrier)
	}
	if updated.TrackingNumber != "XY123456789FR" {
		t.Fatalf("expected normalised tracking number, got %s", updated.TrackingNumber)
	}
	if !strings.Contains(updated.TrackingURL, "XY123456789FR") {
		t.Fatalf("expected tracking url to embed number, got %s", updated.TrackingURL)
	}
}

func TestShipHonorsCarrierOverride(t *testing.T) {
	order := paidProcessingOrder()
	svc := newOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{mutateFn: mutateFrom(order)},
	})

	updated, err := svc.Ship(context.Background(), ShipOrderCommand{
		OrderID:         order.ID,
		TrackingNumber:  "XY123456789FR",
		CarrierOverride: "Colissimo",
	})
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if updated.Carrier != domain.CarrierColissimo {
		t.Fatalf("expected colissimo override, got %s", updated.Carrier)
	}
}

func TestShipRejectsUnpaidOrder(t *testing.T) {
	order := paidProcessingOrder()
	order.PaymentStatus = domain.PaymentStatusPending

	svc := newOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{mutateFn: mutateFrom(order)},
	})

	_, err := svc.Ship(context.Background(), ShipOrderCommand{OrderID: order.ID})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestDeliverRequiresShippedOrder(t *testing.T) {
	order := paidProcessingOrder()
	svc := newOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{mutateFn: mutateFrom(order)},
	})

	_, err := svc.Deliver(context.Background(), OrderActionCommand{OrderID: order.ID})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state for processing order, got %v", err)
	}
}

func TestRevertToProcessingClearsTracking(t *testing.T) {
	shipped := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	order := paidProcessingOrder()
	order.Status = domain.OrderStatusShipped
	order.FulfillmentStatus = domain.FulfillmentStatusShipped
	order.ShippedAt = &shipped
	order.Carrier = domain.CarrierColissimo
	order.TrackingNumber = "6A1234567890123"
	order.TrackingURL = "https://www.laposte.fr/outils/suivre-vos-envois?code=6A1234567890123"

	svc := newOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{mutateFn: mutateFrom(order)},
	})

	updated, err := svc.RevertToProcessing(context.Background(), OrderActionCommand{OrderID: order.ID})
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if updated.Status != domain.OrderStatusProcessing || updated.FulfillmentStatus != domain.FulfillmentStatusProcessing {
		t.Fatalf("expected processing/processing, got %s/%s", updated.Status, updated.FulfillmentStatus)
	}
	if updated.ShippedAt != nil || updated.TrackingNumber != "" || updated.TrackingURL != "" || updated.Carrier != "" {
		t.Fatalf("expected tracking details cleared, got %+v", updated)
	}
}

func TestUpdateTrackingPublishesEvent(t *testing.T) {
	order := paidProcessingOrder()
	order.Status = domain.OrderStatusShipped
	order.FulfillmentStatus = domain.FulfillmentStatusShipped
	order.TrackingNumber = "00000001"

	events := &captureEvents{}
	svc := newOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{mutateFn: mutateFrom(order)},
		Events: events,
	})

	updated, err := svc.UpdateTracking(context.Background(), UpdateTrackingCommand{
		OrderID:        order.ID,
		TrackingNumber: "1Z999AA10123456784",
	})
	if err != nil {
		t.Fatalf("update tracking: %v", err)
	}
	if updated.Carrier != domain.CarrierUPS {
		t.Fatalf("expected ups, got %s", updated.Carrier)
	}
	got := events.byType("order.tracking.updated")
	if len(got) != 1 {
		t.Fatalf("expected one tracking event, got %d", len(got))
	}
	if got[0].Metadata["trackingNumber"] != "1Z999AA10123456784" {
		t.Fatalf("unexpected event metadata %+v", got[0].Metadata)
	}
}

func TestUpdateTrackingRequiresNumber(t *testing.T) {
	svc := newOrderService(t, OrderServiceDeps{})
	_, err := svc.UpdateTracking(context.Background(), UpdateTrackingCommand{OrderID: "ord_1"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCancelRejectedAfterShipment(t *testing.T) {
	order := paidProcessingOrder()
	order.Status = domain.OrderStatusShipped
	order.FulfillmentStatus = domain.FulfillmentStatusShipped

	svc := newOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{mutateFn: mutateFrom(order)},
	})

	_, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestCancelPendingOrder(t *testing.T) {
	order := paidProcessingOrder()
	order.Status = domain.OrderStatusPending
	order.PaymentStatus = domain.PaymentStatusPending
	order.FulfillmentStatus = domain.FulfillmentStatusUnfulfilled

	svc := newOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{mutateFn: mutateFrom(order)},
	})

	updated, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.Status != domain.OrderStatusCanceled || updated.CanceledAt == nil {
		t.Fatalf("expected canceled with timestamp, got %+v", updated)
	}
}
