package domain

import "time"

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was created at checkout and awaits payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates payment succeeded and the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the carrier reported delivery to the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled indicates the order was canceled before shipment.
	OrderStatusCanceled OrderStatus = "canceled"
)

// Valid reports whether the status is one of the closed set of order states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled:
		return true
	}
	return false
}

// PaymentStatus enumerates the payment dimension of an order, tracked
// independently from fulfillment progress.
type PaymentStatus string

const (
	// PaymentStatusPending indicates no capture has been confirmed yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the gateway confirmed a full capture.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusPartiallyRefunded indicates part of the captured amount has been refunded.
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	// PaymentStatusRefunded indicates the captured amount has been fully refunded.
	PaymentStatusRefunded PaymentStatus = "refunded"
	// PaymentStatusFailed indicates the gateway reported a terminal payment failure.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusExpired indicates the payment session lapsed before capture.
	PaymentStatusExpired PaymentStatus = "expired"
)

// Valid reports whether the status is one of the closed set of payment states.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusPartiallyRefunded, PaymentStatusRefunded, PaymentStatusFailed, PaymentStatusExpired:
		return true
	}
	return false
}

// FulfillmentStatus enumerates physical fulfillment progress. It may only
// leave the unfulfilled state once the order is paid.
type FulfillmentStatus string

const (
	// FulfillmentStatusUnfulfilled is the initial state before any preparation.
	FulfillmentStatusUnfulfilled FulfillmentStatus = "unfulfilled"
	// FulfillmentStatusProcessing indicates items are being picked and packed.
	FulfillmentStatusProcessing FulfillmentStatus = "processing"
	// FulfillmentStatusShipped indicates the parcel left the warehouse.
	FulfillmentStatusShipped FulfillmentStatus = "shipped"
	// FulfillmentStatusDelivered indicates the parcel reached the customer.
	FulfillmentStatusDelivered FulfillmentStatus = "delivered"
	// FulfillmentStatusReturned indicates the parcel came back after shipment.
	FulfillmentStatusReturned FulfillmentStatus = "returned"
)

// Valid reports whether the status is one of the closed set of fulfillment states.
func (s FulfillmentStatus) Valid() bool {
	switch s {
	case FulfillmentStatusUnfulfilled, FulfillmentStatusProcessing, FulfillmentStatusShipped, FulfillmentStatusDelivered, FulfillmentStatusReturned:
		return true
	}
	return false
}

// OrderItem is an immutable line-item snapshot captured at order time.
// Title and variant descriptors are denormalised on purpose: they must never
// be re-read from the live catalog once the order exists.
type OrderItem struct {
	ID         string
	ProductRef string
	SKU        string
	Title      string
	Color      string
	Material   string
	Size       string
	UnitPrice  int64
	Quantity   int
}

// Total returns the line total in minor units.
func (i OrderItem) Total() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Order is the root aggregate tracked by the lifecycle engine. Amounts are in
// minor units (cents). The three status dimensions evolve semi-independently;
// Permissions derives what an operator may do from their combination.
type Order struct {
	ID                string
	OrderNumber       string
	CustomerID        string
	CustomerEmail     string
	Currency          string
	Amount            int64
	AmountRefunded    int64
	Status            OrderStatus
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	Items             []OrderItem

	ShippingPostalCode string
	Carrier            Carrier
	TrackingNumber     string
	TrackingURL        string

	CheckoutSessionID string
	PaymentIntentID   string
	InvoiceNumber     string

	PaidAt      *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CanceledAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasTrackingNumber reports whether a non-empty tracking number is recorded.
func (o Order) HasTrackingNumber() bool {
	return o.TrackingNumber != ""
}

// RefundableBalance returns how much of the captured amount can still be
// refunded, in minor units.
func (o Order) RefundableBalance() int64 {
	remaining := o.Amount - o.AmountRefunded
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Item returns the line item with the given id.
func (o Order) Item(itemID string) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return OrderItem{}, false
}
