package repositories

import (
	"context"
	"time"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Refunds() RefundRepository
	Stock() StockRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order documents and provides query helpers for admins and reconciliation.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindByCheckoutSession resolves the order attached to a gateway checkout session.
	FindByCheckoutSession(ctx context.Context, sessionID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// Mutate re-reads the order inside a transaction, applies fn to the fresh copy and
	// persists the result. fn returning an error aborts the transaction.
	Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error)
}

// RefundRepository persists refund documents underneath their parent order.
type RefundRepository interface {
	Insert(ctx context.Context, refund domain.Refund) error
	FindByID(ctx context.Context, orderID string, refundID string) (domain.Refund, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error)
	// Mutate re-reads the refund inside a transaction, applies fn and persists the result.
	Mutate(ctx context.Context, orderID string, refundID string, fn func(refund *domain.Refund) error) (domain.Refund, error)
	// Process applies a successful gateway refund in a single transaction: the refund
	// flips to processed with the gateway refund id recorded, flagged items restock, and
	// the order's refunded amount and payment status are recomputed.
	Process(ctx context.Context, req ProcessRefundRequest) (ProcessRefundResult, error)
}

// ProcessRefundRequest carries the gateway outcome to apply against storage.
type ProcessRefundRequest struct {
	OrderID         string
	RefundID        string
	GatewayRefundID string
	// Restocks maps product ids to quantities to add back to stock.
	Restocks map[string]int64
	Now      time.Time
}

// ProcessRefundResult reports the documents mutated by the transaction.
type ProcessRefundResult struct {
	Refund domain.Refund
	Order  domain.Order
	Stocks map[string]domain.StockLevel
}

// StockRepository manages per-product stock levels with atomic adjustments.
type StockRepository interface {
	Get(ctx context.Context, productID string) (domain.StockLevel, error)
	// Adjust applies the given deltas atomically and returns the updated levels.
	Adjust(ctx context.Context, deltas map[string]int64, now time.Time) (map[string]domain.StockLevel, error)
	ListLowStock(ctx context.Context, query StockLowQuery) (domain.CursorPage[domain.StockLevel], error)
}

// StockLowQuery controls pagination and threshold filtering for low stock listings.
type StockLowQuery struct {
	Threshold int
	PageSize  int
	PageToken string
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter narrows admin order listings.
type OrderListFilter struct {
	Status        []string
	PaymentStatus []string
	DateRange     domain.RangeQuery[time.Time]
	Pagination    domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
