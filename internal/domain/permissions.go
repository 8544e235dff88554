package domain

// Permissions is the vector of operator actions allowed by the current
// combination of the three status dimensions plus tracking-number presence.
// Each field is an independent predicate over that tuple; the vector is
// recomputed on every read and re-checked server-side before every write.
type Permissions struct {
	CanMarkAsProcessing   bool
	CanMarkAsPaid         bool
	CanMarkAsShipped      bool
	CanMarkAsDelivered    bool
	CanRevertToProcessing bool
	CanUpdateTracking     bool
	CanCancel             bool
	CanRefund             bool
}

// PermissionsFor computes the permission vector for the given status tuple.
// Delivered and canceled are soft-terminal: refunds stay possible after
// delivery as long as money changed hands.
func PermissionsFor(status OrderStatus, payment PaymentStatus, fulfillment FulfillmentStatus, hasTracking bool) Permissions {
	return Permissions{
		CanMarkAsProcessing:   status == OrderStatusPending && payment == PaymentStatusPaid,
		CanMarkAsPaid:         payment == PaymentStatusPending && (status == OrderStatusPending || status == OrderStatusProcessing),
		CanMarkAsShipped:      status == OrderStatusProcessing && payment == PaymentStatusPaid,
		CanMarkAsDelivered:    status == OrderStatusShipped,
		CanRevertToProcessing: status == OrderStatusShipped,
		CanUpdateTracking:     (status == OrderStatusShipped || status == OrderStatusDelivered) && hasTracking,
		CanCancel:             status == OrderStatusPending || status == OrderStatusProcessing,
		CanRefund:             (status == OrderStatusProcessing || status == OrderStatusShipped || status == OrderStatusDelivered) && payment == PaymentStatusPaid,
	}
}

// OrderPermissions computes the permission vector for an order.
func OrderPermissions(o Order) Permissions {
	return PermissionsFor(o.Status, o.PaymentStatus, o.FulfillmentStatus, o.HasTrackingNumber())
}
