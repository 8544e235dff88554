package domain

import "time"

// RefundStatus enumerates the lifecycle of a refund request. A refund is
// created in the requested state and moves exactly once to one of the three
// terminal states; rows are never updated afterwards, so the refund history
// of an order is append-only.
type RefundStatus string

const (
	// RefundStatusRequested indicates the refund is staged and awaiting review.
	// No money has moved yet.
	RefundStatusRequested RefundStatus = "requested"
	// RefundStatusProcessed indicates the gateway executed the refund.
	RefundStatusProcessed RefundStatus = "processed"
	// RefundStatusRejected indicates an operator denied the request.
	RefundStatusRejected RefundStatus = "rejected"
	// RefundStatusCanceled indicates the requester withdrew before processing.
	RefundStatusCanceled RefundStatus = "canceled"
)

// Valid reports whether the status is one of the closed set of refund states.
func (s RefundStatus) Valid() bool {
	switch s {
	case RefundStatusRequested, RefundStatusProcessed, RefundStatusRejected, RefundStatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether the refund can no longer change state.
func (s RefundStatus) Terminal() bool {
	return s == RefundStatusProcessed || s == RefundStatusRejected || s == RefundStatusCanceled
}

// CountsAgainstQuantity reports whether refunds in this state consume the
// order item's refundable quantity. Requested refunds count so that two
// staged refunds cannot oversubscribe the same line.
func (s RefundStatus) CountsAgainstQuantity() bool {
	return s == RefundStatusRequested || s == RefundStatusProcessed
}

// RefundItem selects a partial quantity of one order line for refunding.
type RefundItem struct {
	OrderItemID string
	Quantity    int
	Restock     bool
}

// Refund is a staged or settled refund request against one order.
type Refund struct {
	ID              string
	OrderRef        string
	Amount          int64
	Currency        string
	Status          RefundStatus
	Reason          string
	Items           []RefundItem
	GatewayRefundID string

	ProcessedAt *time.Time
	RejectedAt  *time.Time
	CanceledAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PaymentStatusAfterRefund returns the order payment status once refunded
// minor units have been applied against the captured total.
func PaymentStatusAfterRefund(total, refunded int64) PaymentStatus {
	if total > 0 && refunded >= total {
		return PaymentStatusRefunded
	}
	if refunded > 0 {
		return PaymentStatusPartiallyRefunded
	}
	return PaymentStatusPaid
}

// RefundedQuantities sums, per order item, the quantities held by refunds
// whose state still counts against the line (requested or processed).
func RefundedQuantities(refunds []Refund) map[string]int {
	totals := make(map[string]int)
	for _, refund := range refunds {
		if !refund.Status.CountsAgainstQuantity() {
			continue
		}
		for _, item := range refund.Items {
			totals[item.OrderItemID] += item.Quantity
		}
	}
	return totals
}
