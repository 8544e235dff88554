package firestore

import (
	"context"
	"encoding/base64"
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

const ordersCollection = "orders"

type orderItemDocument struct {
	ID         string `firestore:"id"`
	ProductRef string `firestore:"productRef"`
	SKU        string `firestore:"sku,omitempty"`
	Title      string `firestore:"title"`
	Color      string `firestore:"color,omitempty"`
	Material   string `firestore:"material,omitempty"`
	Size       string `firestore:"size,omitempty"`
	UnitPrice  int64  `firestore:"unitPrice"`
	Quantity   int    `firestore:"quantity"`
}

type orderDocument struct {
	OrderNumber       string              `firestore:"orderNumber"`
	CustomerID        string              `firestore:"customerId,omitempty"`
	CustomerEmail     string              `firestore:"customerEmail,omitempty"`
	Currency          string              `firestore:"currency"`
	Amount            int64               `firestore:"amount"`
	AmountRefunded    int64               `firestore:"amountRefunded"`
	Status            string              `firestore:"status"`
	PaymentStatus     string              `firestore:"paymentStatus"`
	FulfillmentStatus string              `firestore:"fulfillmentStatus"`
	Items             []orderItemDocument `firestore:"items"`

	ShippingPostalCode string `firestore:"shippingPostalCode,omitempty"`
	Carrier            string `firestore:"carrier,omitempty"`
	TrackingNumber     string `firestore:"trackingNumber,omitempty"`
	TrackingURL        string `firestore:"trackingUrl,omitempty"`

	CheckoutSessionID string `firestore:"checkoutSessionId,omitempty"`
	PaymentIntentID   string `firestore:"paymentIntentId,omitempty"`
	InvoiceNumber     string `firestore:"invoiceNumber,omitempty"`

	PaidAt      *time.Time `firestore:"paidAt,omitempty"`
	ShippedAt   *time.Time `firestore:"shippedAt,omitempty"`
	DeliveredAt *time.Time `firestore:"deliveredAt,omitempty"`
	CanceledAt  *time.Time `firestore:"canceledAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{
		provider: provider,
		base:     base,
	}, nil
}

// Insert creates the order document, failing when the id already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// FindByID fetches a single order by document id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data), nil
}

// FindByCheckoutSession resolves the order created for a gateway checkout session.
func (r *OrderRepository) FindByCheckoutSession(ctx context.Context, sessionID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Order{}, errors.New("order repository: checkout session id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("checkoutSessionId", "==", sessionID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByCheckoutSession", status.Error(codes.NotFound, "order not found for session"))
	}
	return decodeOrderDocument(docs[0].ID, docs[0].Data), nil
}

// List returns a page of orders ordered by most recent creation.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statusFilters := normaliseFilterValues(filter.Status)
	paymentFilters := normaliseFilterValues(filter.PaymentStatus)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statusFilters) > 10 {
				statusFilters = statusFilters[:10]
			}
			q = q.Where("status", "in", statusFilters)
		}

		if len(paymentFilters) == 1 {
			q = q.Where("paymentStatus", "==", paymentFilters[0])
		} else if len(paymentFilters) > 1 {
			if len(paymentFilters) > 10 {
				paymentFilters = paymentFilters[:10]
			}
			q = q.Where("paymentStatus", "in", paymentFilters)
		}

		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}

		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeOrderListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Mutate re-reads the order inside a transaction, applies fn and writes the result back.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if fn == nil {
		return domain.Order{}, errors.New("order repository: mutate function is required")
	}

	var (
		mutated domain.Order
		fnErr   error
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		fnErr = nil
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", orderID, err)
		}

		order := decodeOrderDocument(orderID, doc)
		if err := fn(&order); err != nil {
			fnErr = err
			return err
		}
		order.ID = orderID
		mutated = order

		return tx.Set(ref, encodeOrderDocument(order))
	})
	if err != nil {
		if fnErr != nil {
			return domain.Order{}, fnErr
		}
		return domain.Order{}, pfirestore.WrapError("orders.mutate", err)
	}
	return mutated, nil
}

func encodeOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ID:         item.ID,
			ProductRef: item.ProductRef,
			SKU:        item.SKU,
			Title:      item.Title,
			Color:      item.Color,
			Material:   item.Material,
			Size:       item.Size,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
		})
	}

	return orderDocument{
		OrderNumber:        order.OrderNumber,
		CustomerID:         order.CustomerID,
		CustomerEmail:      order.CustomerEmail,
		Currency:           order.Currency,
		Amount:             order.Amount,
		AmountRefunded:     order.AmountRefunded,
		Status:             string(order.Status),
		PaymentStatus:      string(order.PaymentStatus),
		FulfillmentStatus:  string(order.FulfillmentStatus),
		Items:              items,
		ShippingPostalCode: order.ShippingPostalCode,
		Carrier:            string(order.Carrier),
		TrackingNumber:     order.TrackingNumber,
		TrackingURL:        order.TrackingURL,
		CheckoutSessionID:  order.CheckoutSessionID,
		PaymentIntentID:    order.PaymentIntentID,
		InvoiceNumber:      order.InvoiceNumber,
		PaidAt:             normaliseTimePtr(order.PaidAt),
		ShippedAt:          normaliseTimePtr(order.ShippedAt),
		DeliveredAt:        normaliseTimePtr(order.DeliveredAt),
		CanceledAt:         normaliseTimePtr(order.CanceledAt),
		CreatedAt:          order.CreatedAt.UTC(),
		UpdatedAt:          order.UpdatedAt.UTC(),
	}
}

func decodeOrderDocument(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ID:         item.ID,
			ProductRef: item.ProductRef,
			SKU:        item.SKU,
			Title:      item.Title,
			Color:      item.Color,
			Material:   item.Material,
			Size:       item.Size,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
		})
	}

	return domain.Order{
		ID:                 id,
		OrderNumber:        doc.OrderNumber,
		CustomerID:         doc.CustomerID,
		CustomerEmail:      doc.CustomerEmail,
		Currency:           doc.Currency,
		Amount:             doc.Amount,
		AmountRefunded:     doc.AmountRefunded,
		Status:             domain.OrderStatus(doc.Status),
		PaymentStatus:      domain.PaymentStatus(doc.PaymentStatus),
		FulfillmentStatus:  domain.FulfillmentStatus(doc.FulfillmentStatus),
		Items:              items,
		ShippingPostalCode: doc.ShippingPostalCode,
		Carrier:            domain.Carrier(doc.Carrier),
		TrackingNumber:     doc.TrackingNumber,
		TrackingURL:        doc.TrackingURL,
		CheckoutSessionID:  doc.CheckoutSessionID,
		PaymentIntentID:    doc.PaymentIntentID,
		InvoiceNumber:      doc.InvoiceNumber,
		PaidAt:             doc.PaidAt,
		ShippedAt:          doc.ShippedAt,
		DeliveredAt:        doc.DeliveredAt,
		CanceledAt:         doc.CanceledAt,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
}

func encodeOrderListToken(createdAt time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", createdAt.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeOrderListToken(token string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("malformed token")
	}
	parsed, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return parsed, parts[1], nil
}

func normaliseFilterValues(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func normaliseTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
