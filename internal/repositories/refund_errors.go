package repositories

import "fmt"

// RefundErrorCode enumerates repository error causes for refund operations.
type RefundErrorCode string

const (
	// RefundErrorUnknown represents an unspecified failure.
	RefundErrorUnknown RefundErrorCode = "refund_unknown"
	// RefundErrorNotFound indicates the refund document is missing.
	RefundErrorNotFound RefundErrorCode = "refund_not_found"
	// RefundErrorInvalidState indicates the refund status forbids the operation.
	RefundErrorInvalidState RefundErrorCode = "refund_invalid_state"
	// RefundErrorAlreadyProcessed indicates a gateway refund id is already recorded.
	RefundErrorAlreadyProcessed RefundErrorCode = "refund_already_processed"
	// RefundErrorOrderNotFound indicates the parent order document is missing.
	RefundErrorOrderNotFound RefundErrorCode = "refund_order_not_found"
)

// RefundError wraps refund-specific failures with machine readable codes.
type RefundError struct {
	Op      string
	Code    RefundErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RefundError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *RefundError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewRefundError constructs a typed refund error.
func NewRefundError(code RefundErrorCode, message string, err error) *RefundError {
	if message == "" {
		message = string(code)
	}
	return &RefundError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
