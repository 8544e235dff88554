package domain

import "testing"

var allOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCanceled,
}

var allPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusPartiallyRefunded,
	PaymentStatusRefunded,
	PaymentStatusFailed,
	PaymentStatusExpired,
}

var allFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentStatusUnfulfilled,
	FulfillmentStatusProcessing,
	FulfillmentStatusShipped,
	FulfillmentStatusDelivered,
	FulfillmentStatusReturned,
}

func TestPermissionsForExhaustive(t *testing.T) {
	for _, status := range allOrderStatuses {
		for _, payment := range allPaymentStatuses {
			for _, fulfillment := range allFulfillmentStatuses {
				for _, hasTracking := range []bool{false, true} {
					perms := PermissionsFor(status, payment, fulfillment, hasTracking)

					wantProcessing := status == OrderStatusPending && payment == PaymentStatusPaid
					if perms.CanMarkAsProcessing != wantProcessing {
						t.Errorf("CanMarkAsProcessing(%s,%s) = %v, want %v", status, payment, perms.CanMarkAsProcessing, wantProcessing)
					}

					wantPaid := payment == PaymentStatusPending && (status == OrderStatusPending || status == OrderStatusProcessing)
					if perms.CanMarkAsPaid != wantPaid {
						t.Errorf("CanMarkAsPaid(%s,%s) = %v, want %v", status, payment, perms.CanMarkAsPaid, wantPaid)
					}

					wantShipped := status == OrderStatusProcessing && payment == PaymentStatusPaid
					if perms.CanMarkAsShipped != wantShipped {
						t.Errorf("CanMarkAsShipped(%s,%s) = %v, want %v", status, payment, perms.CanMarkAsShipped, wantShipped)
					}

					wantDelivered := status == OrderStatusShipped
					if perms.CanMarkAsDelivered != wantDelivered {
						t.Errorf("CanMarkAsDelivered(%s) = %v, want %v", status, perms.CanMarkAsDelivered, wantDelivered)
					}

					if perms.CanRevertToProcessing != wantDelivered {
						t.Errorf("CanRevertToProcessing(%s) = %v, want %v", status, perms.CanRevertToProcessing, wantDelivered)
					}

					wantTracking := (status == OrderStatusShipped || status == OrderStatusDelivered) && hasTracking
					if perms.CanUpdateTracking != wantTracking {
						t.Errorf("CanUpdateTracking(%s,tracking=%v) = %v, want %v", status, hasTracking, perms.CanUpdateTracking, wantTracking)
					}

					wantCancel := status == OrderStatusPending || status == OrderStatusProcessing
					if perms.CanCancel != wantCancel {
						t.Errorf("CanCancel(%s) = %v, want %v", status, perms.CanCancel, wantCancel)
					}

					wantRefund := (status == OrderStatusProcessing || status == OrderStatusShipped || status == OrderStatusDelivered) && payment == PaymentStatusPaid
					if perms.CanRefund != wantRefund {
						t.Errorf("CanRefund(%s,%s) = %v, want %v", status, payment, perms.CanRefund, wantRefund)
					}
				}
			}
		}
	}
}

func TestPermissionsCanceledOrderIsInert(t *testing.T) {
	for _, payment := range allPaymentStatuses {
		for _, fulfillment := range allFulfillmentStatuses {
			for _, hasTracking := range []bool{false, true} {
				perms := PermissionsFor(OrderStatusCanceled, payment, fulfillment, hasTracking)
				if perms.CanMarkAsShipped {
					t.Errorf("canceled order must not be shippable (payment=%s)", payment)
				}
				if perms.CanCancel {
					t.Errorf("canceled order must not be cancelable again (payment=%s)", payment)
				}
				if perms.CanRefund {
					t.Errorf("canceled order must not be refundable (payment=%s)", payment)
				}
			}
		}
	}
}

func TestOrderPermissionsUsesTrackingPresence(t *testing.T) {
	order := Order{
		Status:            OrderStatusShipped,
		PaymentStatus:     PaymentStatusPaid,
		FulfillmentStatus: FulfillmentStatusShipped,
	}
	if OrderPermissions(order).CanUpdateTracking {
		t.Fatalf("expected tracking update denied without a tracking number")
	}
	order.TrackingNumber = "XY123456789FR"
	if !OrderPermissions(order).CanUpdateTracking {
		t.Fatalf("expected tracking update allowed with a tracking number")
	}
}

func TestRefundAllowedAfterDelivery(t *testing.T) {
	perms := PermissionsFor(OrderStatusDelivered, PaymentStatusPaid, FulfillmentStatusDelivered, true)
	if !perms.CanRefund {
		t.Fatalf("expected delivered paid orders to remain refundable")
	}
	if perms.CanCancel {
		t.Fatalf("delivered orders must not be cancelable")
	}
}
