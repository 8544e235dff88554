package services

import (
	"context"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
	"github.com/Adrien490/synclune-sub011/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	FulfillmentStatus  = domain.FulfillmentStatus
	Permissions        = domain.Permissions
	Refund             = domain.Refund
	RefundItem         = domain.RefundItem
	RefundStatus       = domain.RefundStatus
	Carrier            = domain.Carrier
	CarrierDetection   = domain.CarrierDetectionResult
	ShippingZone       = domain.ShippingZone
	StockLevel         = domain.StockLevel
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService drives the order lifecycle. Every mutation re-derives the
// permission vector from the freshly read document inside the same transaction
// that writes the change, so a stale admin view can never force an invalid move.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (OrderDetails, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)

	MarkAsPaid(ctx context.Context, cmd OrderActionCommand) (Order, error)
	MarkAsProcessing(ctx context.Context, cmd OrderActionCommand) (Order, error)
	Ship(ctx context.Context, cmd ShipOrderCommand) (Order, error)
	Deliver(ctx context.Context, cmd OrderActionCommand) (Order, error)
	RevertToProcessing(ctx context.Context, cmd OrderActionCommand) (Order, error)
	UpdateTracking(ctx context.Context, cmd UpdateTrackingCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// RefundService stages, settles, and closes refund requests against orders.
type RefundService interface {
	CreateRefund(ctx context.Context, cmd CreateRefundCommand) (Refund, error)
	ProcessRefund(ctx context.Context, cmd ProcessRefundCommand) (Refund, error)
	RejectRefund(ctx context.Context, cmd CloseRefundCommand) (Refund, error)
	CancelRefund(ctx context.Context, cmd CloseRefundCommand) (Refund, error)
	GetRefund(ctx context.Context, orderID string, refundID string) (Refund, error)
	ListRefunds(ctx context.Context, orderID string) ([]Refund, error)
}

// CheckoutService reconciles gateway checkout sessions against stored orders.
// The gateway's answer is the only source of payment truth.
type CheckoutService interface {
	ReconcileReturn(ctx context.Context, cmd ReconcileReturnCommand) (CheckoutOutcome, error)
	HandleSessionEvent(ctx context.Context, cmd SessionEventCommand) error
}

// ShippingService computes shipping zones and rates from destination postal codes.
type ShippingService interface {
	Quote(ctx context.Context, postalCode string) (ShippingQuote, error)
}

// StockService exposes stock reads and manual adjustments for back office use.
type StockService interface {
	GetStock(ctx context.Context, productID string) (StockLevel, error)
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (map[string]StockLevel, error)
	ListLowStock(ctx context.Context, query LowStockQuery) (domain.CursorPage[StockLevel], error)
}

// CounterService exposes managed sequence generation built atop the counter repository.
type CounterService interface {
	Next(ctx context.Context, cmd CounterCommand) (int64, error)
}

// SystemService aggregates operational checks for health endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Command and DTO definitions -----------------------------------------------

// CreateOrderCommand captures a new order at checkout time. Item descriptors are
// snapshotted verbatim; nothing is re-read from the catalog afterwards.
type CreateOrderCommand struct {
	CustomerID         string
	CustomerEmail      string
	Currency           string
	Items              []OrderItem
	ShippingPostalCode string
	CheckoutSessionID  string
	Metadata           map[string]string
}

// OrderDetails joins an order with its refund history and derived permissions.
type OrderDetails struct {
	Order       Order
	Refunds     []Refund
	Permissions Permissions
}

// OrderListFilter narrows admin order listings.
type OrderListFilter = repositories.OrderListFilter

// OrderActionCommand identifies the order and acting operator for a plain transition.
type OrderActionCommand struct {
	OrderID string
	ActorID string
}

// ShipOrderCommand marks the order shipped, detecting the carrier from the
// tracking number unless an explicit override is supplied.
type ShipOrderCommand struct {
	OrderID         string
	ActorID         string
	TrackingNumber  string
	CarrierOverride string
}

// UpdateTrackingCommand replaces the tracking number on a shipped or delivered order.
type UpdateTrackingCommand struct {
	OrderID        string
	ActorID        string
	TrackingNumber string
}

// CancelOrderCommand cancels an order that has not shipped yet.
type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

// CreateRefundCommand stages a refund request for later processing. The
// refund amount is computed from the items; ExpectedAmount, when non-zero,
// is checked against the computed amount and rejects the request on mismatch.
type CreateRefundCommand struct {
	OrderID        string
	ActorID        string
	ExpectedAmount int64
	Reason         string
	Items          []RefundItem
}

// ProcessRefundCommand executes a staged refund against the gateway.
type ProcessRefundCommand struct {
	OrderID  string
	RefundID string
	ActorID  string
}

// CloseRefundCommand rejects or cancels a staged refund.
type CloseRefundCommand struct {
	OrderID  string
	RefundID string
	ActorID  string
	Reason   string
}

// ReconcileReturnCommand carries the session id from the storefront return URL.
type ReconcileReturnCommand struct {
	SessionID string
}

// CheckoutResult enumerates the storefront destinations reconciliation can pick.
type CheckoutResult string

const (
	// CheckoutResultConfirmed sends the customer to the confirmation page.
	CheckoutResultConfirmed CheckoutResult = "confirmed"
	// CheckoutResultConfirmedPending confirms receipt while payment settles asynchronously.
	CheckoutResultConfirmedPending CheckoutResult = "confirmed_pending"
	// CheckoutResultRetry sends the customer back to the still-open hosted session.
	CheckoutResultRetry CheckoutResult = "retry"
	// CheckoutResultExpired reports a lapsed session.
	CheckoutResultExpired CheckoutResult = "expired"
	// CheckoutResultError reports an unclassifiable gateway state.
	CheckoutResultError CheckoutResult = "processing_error"
)

// CheckoutOutcome is the reconciliation verdict handed to the redirect layer.
// OrderNumber comes from the gateway session metadata, never from the query string.
type CheckoutOutcome struct {
	Result      CheckoutResult
	OrderNumber string
	Order       Order
}

// SessionEventCommand carries a verified gateway webhook notification.
type SessionEventCommand struct {
	EventType string
	SessionID string
}

// ShippingQuote reports the resolved zone and rate for a postal code.
type ShippingQuote struct {
	PostalCode string
	Zone       ShippingZone
	Department string
	RateCents  int64
}

// AdjustStockCommand applies manual stock deltas.
type AdjustStockCommand struct {
	Deltas  map[string]int64
	ActorID string
}

// LowStockQuery pages through products at or below a threshold.
type LowStockQuery struct {
	Threshold  int
	Pagination Pagination
}

// CounterCommand requests the next value from a named sequence.
type CounterCommand struct {
	CounterID string
	Step      int64
}
