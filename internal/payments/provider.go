package payments

import (
	"context"
	"errors"
	"time"
)

// SessionStatus enumerates the normalised checkout session states shared across providers.
type SessionStatus string

const (
	// SessionStatusOpen indicates the session is still awaiting customer action.
	SessionStatusOpen SessionStatus = "open"
	// SessionStatusComplete indicates the customer finished the hosted flow.
	SessionStatusComplete SessionStatus = "complete"
	// SessionStatusExpired indicates the session lapsed before completion.
	SessionStatusExpired SessionStatus = "expired"
	// SessionStatusUnknown indicates the provider reported a state we do not model.
	SessionStatusUnknown SessionStatus = "unknown"
)

// ErrSessionNotFound is returned when the provider has no record of the session.
var ErrSessionNotFound = errors.New("payments: checkout session not found")

// SessionDetails normalises provider specific checkout session fields for reconciliation.
type SessionDetails struct {
	ID              string
	Status          SessionStatus
	Paid            bool
	PaymentIntentID string
	OrderID         string
	OrderNumber     string
	AmountTotal     int64
	Currency        string
	ExpiresAt       time.Time
	Metadata        map[string]string
}

// RefundRequest defines a provider refund attempt against a captured payment.
type RefundRequest struct {
	PaymentIntentID string
	Amount          *int64
	Reason          string
	IdempotencyKey  string
	Metadata        map[string]string
}

// RefundDetails carries the provider's view of a created refund.
type RefundDetails struct {
	RefundID string
	Status   string
	Amount   int64
	Currency string
}

// Provider defines the contract gateway adapters implement.
type Provider interface {
	RetrieveSession(ctx context.Context, sessionID string) (SessionDetails, error)
	Refund(ctx context.Context, req RefundRequest) (RefundDetails, error)
}
