package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
	pfirestore "github.com/Adrien490/synclune-sub011/internal/platform/firestore"
	"github.com/Adrien490/synclune-sub011/internal/repositories"
)

const refundsSubCollection = "refunds"

type refundItemDocument struct {
	OrderItemID string `firestore:"orderItemId"`
	Quantity    int    `firestore:"quantity"`
	Restock     bool   `firestore:"restock"`
}

type refundDocument struct {
	OrderRef        string               `firestore:"orderRef"`
	Amount          int64                `firestore:"amount"`
	Currency        string               `firestore:"currency"`
	Status          string               `firestore:"status"`
	Reason          string               `firestore:"reason,omitempty"`
	Items           []refundItemDocument `firestore:"items"`
	GatewayRefundID string               `firestore:"gatewayRefundId,omitempty"`

	ProcessedAt *time.Time `firestore:"processedAt,omitempty"`
	RejectedAt  *time.Time `firestore:"rejectedAt,omitempty"`
	CanceledAt  *time.Time `firestore:"canceledAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

// RefundRepository implements repositories.RefundRepository backed by Firestore.
// Refund documents live underneath their parent order so that order and refund
// mutations share a transactional boundary.
type RefundRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewRefundRepository constructs a Firestore-backed refund repository.
func NewRefundRepository(provider *pfirestore.Provider) (*RefundRepository, error) {
	if provider == nil {
		return nil, errors.New("refund repository requires firestore provider")
	}
	return &RefundRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
	}, nil
}

func (r *RefundRepository) refundRef(ctx context.Context, orderID, refundID string) (*firestore.DocumentRef, error) {
	orderRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return nil, err
	}
	refundID = strings.TrimSpace(refundID)
	if refundID == "" {
		return nil, errors.New("refund repository: refund id is required")
	}
	return orderRef.Collection(refundsSubCollection).Doc(refundID), nil
}

// Insert creates the refund document, failing when the id already exists.
func (r *RefundRepository) Insert(ctx context.Context, refund domain.Refund) error {
	if r == nil || r.provider == nil {
		return errors.New("refund repository not initialised")
	}
	ref, err := r.refundRef(ctx, refund.OrderRef, refund.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeRefundDocument(refund)); err != nil {
		return pfirestore.WrapError("refunds.insert", err)
	}
	return nil
}

// FindByID fetches a single refund by order and refund id.
func (r *RefundRepository) FindByID(ctx context.Context, orderID, refundID string) (domain.Refund, error) {
	if r == nil || r.provider == nil {
		return domain.Refund{}, errors.New("refund repository not initialised")
	}
	ref, err := r.refundRef(ctx, orderID, refundID)
	if err != nil {
		return domain.Refund{}, err
	}
	snapshot, err := ref.Get(ctx)
	if err != nil {
		return domain.Refund{}, pfirestore.WrapError("refunds.get", err)
	}
	var doc refundDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Refund{}, fmt.Errorf("firestore refunds decode %s: %w", refundID, err)
	}
	return decodeRefundDocument(snapshot.Ref.ID, doc), nil
}

// ListByOrder returns every refund recorded against the order, oldest first.
func (r *RefundRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Refund, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("refund repository not initialised")
	}
	orderRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return nil, err
	}

	snapshots, err := orderRef.Collection(refundsSubCollection).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, pfirestore.WrapError("refunds.list", err)
	}

	refunds := make([]domain.Refund, 0, len(snapshots))
	for _, snapshot := range snapshots {
		var doc refundDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore refunds decode %s: %w", snapshot.Ref.ID, err)
		}
		refunds = append(refunds, decodeRefundDocument(snapshot.Ref.ID, doc))
	}
	return refunds, nil
}

// Mutate re-reads the refund inside a transaction, applies fn and writes the result back.
func (r *RefundRepository) Mutate(ctx context.Context, orderID, refundID string, fn func(refund *domain.Refund) error) (domain.Refund, error) {
	if r == nil || r.provider == nil {
		return domain.Refund{}, errors.New("refund repository not initialised")
	}
	if fn == nil {
		return domain.Refund{}, errors.New("refund repository: mutate function is required")
	}

	var (
		mutated domain.Refund
		fnErr   error
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		fnErr = nil
		ref, err := r.refundRef(ctx, orderID, refundID)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc refundDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore refunds decode %s: %w", refundID, err)
		}

		refund := decodeRefundDocument(ref.ID, doc)
		if err := fn(&refund); err != nil {
			fnErr = err
			return err
		}
		refund.ID = ref.ID
		refund.OrderRef = strings.TrimSpace(orderID)
		mutated = refund

		return tx.Set(ref, encodeRefundDocument(refund))
	})
	if err != nil {
		if fnErr != nil {
			return domain.Refund{}, fnErr
		}
		return domain.Refund{}, pfirestore.WrapError("refunds.mutate", err)
	}
	return mutated, nil
}

// Process settles a gateway refund in one transaction. The refund flips to
// processed with the gateway refund id recorded, flagged items restock, and the
// parent order's refunded amount and payment status are recomputed. Calling it
// again with the same gateway refund id is a no-op.
func (r *RefundRepository) Process(ctx context.Context, req repositories.ProcessRefundRequest) (repositories.ProcessRefundResult, error) {
	if r == nil || r.provider == nil {
		return repositories.ProcessRefundResult{}, errors.New("refund repository not initialised")
	}
	gatewayRefundID := strings.TrimSpace(req.GatewayRefundID)
	if gatewayRefundID == "" {
		return repositories.ProcessRefundResult{}, errors.New("refund repository: gateway refund id is required")
	}
	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var (
		result repositories.ProcessRefundResult
		opErr  error
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		opErr = nil
		result = repositories.ProcessRefundResult{}

		orderRef, err := r.orders.DocumentRef(ctx, req.OrderID)
		if err != nil {
			return err
		}
		refundRef, err := r.refundRef(ctx, req.OrderID, req.RefundID)
		if err != nil {
			return err
		}

		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}

		// All reads must precede writes inside a Firestore transaction.
		orderSnap, err := tx.Get(orderRef)
		if status.Code(err) == codes.NotFound {
			opErr = repositories.NewRefundError(repositories.RefundErrorOrderNotFound, fmt.Sprintf("order %s not found", req.OrderID), err)
			return opErr
		}
		if err != nil {
			return err
		}

		refundSnap, err := tx.Get(refundRef)
		if status.Code(err) == codes.NotFound {
			opErr = repositories.NewRefundError(repositories.RefundErrorNotFound, fmt.Sprintf("refund %s not found", req.RefundID), err)
			return opErr
		}
		if err != nil {
			return err
		}

		type stockRead struct {
			ref   *firestore.DocumentRef
			doc   stockDocument
			found bool
			delta int64
		}
		stocks := make(map[string]stockRead, len(req.Restocks))
		for productID, delta := range req.Restocks {
			productID = strings.TrimSpace(productID)
			if productID == "" || delta == 0 {
				continue
			}
			ref := client.Collection(stockCollection).Doc(productID)
			snap, err := tx.Get(ref)
			read := stockRead{ref: ref, delta: delta}
			switch status.Code(err) {
			case codes.NotFound:
				// restocking an unknown product creates the record
			case codes.OK:
				read.found = true
				if err := snap.DataTo(&read.doc); err != nil {
					return fmt.Errorf("firestore stock decode %s: %w", productID, err)
				}
			default:
				return err
			}
			stocks[productID] = read
		}

		var orderDoc orderDocument
		if err := orderSnap.DataTo(&orderDoc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", req.OrderID, err)
		}
		var refundDoc refundDocument
		if err := refundSnap.DataTo(&refundDoc); err != nil {
			return fmt.Errorf("firestore refunds decode %s: %w", req.RefundID, err)
		}

		order := decodeOrderDocument(req.OrderID, orderDoc)
		refund := decodeRefundDocument(req.RefundID, refundDoc)

		// Double-apply guard: a refund that already carries a gateway id was
		// settled by a previous attempt and must not be settled again.
		if refund.GatewayRefundID != "" {
			opErr = repositories.NewRefundError(repositories.RefundErrorAlreadyProcessed,
				fmt.Sprintf("refund %s already settled with gateway id %s", req.RefundID, refund.GatewayRefundID), nil)
			return opErr
		}
		if refund.Status != domain.RefundStatusRequested {
			opErr = repositories.NewRefundError(repositories.RefundErrorInvalidState,
				fmt.Sprintf("refund %s is %s, expected %s", req.RefundID, refund.Status, domain.RefundStatusRequested), nil)
			return opErr
		}

		refund.Status = domain.RefundStatusProcessed
		refund.GatewayRefundID = gatewayRefundID
		refund.ProcessedAt = &now
		refund.UpdatedAt = now

		order.AmountRefunded += refund.Amount
		order.PaymentStatus = domain.PaymentStatusAfterRefund(order.Amount, order.AmountRefunded)
		order.UpdatedAt = now

		if err := tx.Set(refundRef, encodeRefundDocument(refund)); err != nil {
			return err
		}
		if err := tx.Set(orderRef, encodeOrderDocument(order)); err != nil {
			return err
		}

		levels := make(map[string]domain.StockLevel, len(stocks))
		for productID, read := range stocks {
			if read.found {
				if err := tx.Update(read.ref, []firestore.Update{
					{Path: "onHand", Value: firestore.Increment(read.delta)},
					{Path: "updatedAt", Value: now},
				}); err != nil {
					return err
				}
				levels[productID] = domain.StockLevel{ProductID: productID, OnHand: read.doc.OnHand + read.delta, UpdatedAt: now}
				continue
			}
			doc := stockDocument{OnHand: read.delta, UpdatedAt: now}
			if err := tx.Set(read.ref, doc); err != nil {
				return err
			}
			levels[productID] = domain.StockLevel{ProductID: productID, OnHand: doc.OnHand, UpdatedAt: now}
		}

		result = repositories.ProcessRefundResult{
			Refund: refund,
			Order:  order,
			Stocks: levels,
		}
		return nil
	})
	if err != nil {
		if opErr != nil {
			return repositories.ProcessRefundResult{}, opErr
		}
		return repositories.ProcessRefundResult{}, pfirestore.WrapError("refunds.process", err)
	}
	return result, nil
}

func encodeRefundDocument(refund domain.Refund) refundDocument {
	items := make([]refundItemDocument, 0, len(refund.Items))
	for _, item := range refund.Items {
		items = append(items, refundItemDocument{
			OrderItemID: item.OrderItemID,
			Quantity:    item.Quantity,
			Restock:     item.Restock,
		})
	}
	return refundDocument{
		OrderRef:        refund.OrderRef,
		Amount:          refund.Amount,
		Currency:        refund.Currency,
		Status:          string(refund.Status),
		Reason:          refund.Reason,
		Items:           items,
		GatewayRefundID: refund.GatewayRefundID,
		ProcessedAt:     normaliseTimePtr(refund.ProcessedAt),
		RejectedAt:      normaliseTimePtr(refund.RejectedAt),
		CanceledAt:      normaliseTimePtr(refund.CanceledAt),
		CreatedAt:       refund.CreatedAt.UTC(),
		UpdatedAt:       refund.UpdatedAt.UTC(),
	}
}

func decodeRefundDocument(id string, doc refundDocument) domain.Refund {
	items := make([]domain.RefundItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.RefundItem{
			OrderItemID: item.OrderItemID,
			Quantity:    item.Quantity,
			Restock:     item.Restock,
		})
	}
	return domain.Refund{
		ID:              id,
		OrderRef:        doc.OrderRef,
		Amount:          doc.Amount,
		Currency:        doc.Currency,
		Status:          domain.RefundStatus(doc.Status),
		Reason:          doc.Reason,
		Items:           items,
		GatewayRefundID: doc.GatewayRefundID,
		ProcessedAt:     doc.ProcessedAt,
		RejectedAt:      doc.RejectedAt,
		CanceledAt:      doc.CanceledAt,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}
