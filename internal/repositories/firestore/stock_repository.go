package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
	pfirestore "github.com/Adrien490/synclune-sub011/internal/platform/firestore"
	"github.com/Adrien490/synclune-sub011/internal/repositories"
)

const stockCollection = "stock"

type stockDocument struct {
	OnHand    int64     `firestore:"onHand"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// StockRepository implements repositories.StockRepository backed by Firestore.
type StockRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[stockDocument]
}

// NewStockRepository constructs a Firestore-backed stock repository.
func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[stockDocument](provider, stockCollection, nil, nil)
	return &StockRepository{
		provider: provider,
		base:     base,
	}, nil
}

// Get returns the stock level for a product.
func (r *StockRepository) Get(ctx context.Context, productID string) (domain.StockLevel, error) {
	if r == nil || r.base == nil {
		return domain.StockLevel{}, errors.New("stock repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.StockLevel{}, repositories.NewStockError(repositories.StockErrorNotFound, "product id is required", nil)
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.StockLevel{}, err
	}
	return domain.StockLevel{ProductID: doc.ID, OnHand: doc.Data.OnHand, UpdatedAt: doc.Data.UpdatedAt}, nil
}

// Adjust applies the given deltas atomically. Negative deltas that would drive
// a level below zero abort the whole transaction.
func (r *StockRepository) Adjust(ctx context.Context, deltas map[string]int64, now time.Time) (map[string]domain.StockLevel, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("stock repository not initialised")
	}
	if len(deltas) == 0 {
		return map[string]domain.StockLevel{}, nil
	}
	now = now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var (
		levels map[string]domain.StockLevel
		opErr  error
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		opErr = nil
		levels = make(map[string]domain.StockLevel, len(deltas))

		type pending struct {
			ref *firestore.DocumentRef
			doc stockDocument
		}
		writes := make(map[string]pending, len(deltas))

		for productID, delta := range deltas {
			productID = strings.TrimSpace(productID)
			if productID == "" {
				opErr = repositories.NewStockError(repositories.StockErrorNotFound, "product id is required", nil)
				return opErr
			}
			ref, err := r.base.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}

			var doc stockDocument
			snap, err := tx.Get(ref)
			switch status.Code(err) {
			case codes.NotFound:
				if delta < 0 {
					opErr = repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("no stock record for %s", productID), err)
					return opErr
				}
			case codes.OK:
				if err := snap.DataTo(&doc); err != nil {
					return fmt.Errorf("firestore stock decode %s: %w", productID, err)
				}
			default:
				return err
			}

			next := doc.OnHand + delta
			if next < 0 {
				opErr = repositories.NewStockError(repositories.StockErrorInsufficient,
					fmt.Sprintf("stock for %s would drop to %d", productID, next), nil)
				return opErr
			}
			writes[productID] = pending{ref: ref, doc: stockDocument{OnHand: next, UpdatedAt: now}}
		}

		for productID, write := range writes {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
			levels[productID] = domain.StockLevel{ProductID: productID, OnHand: write.doc.OnHand, UpdatedAt: now}
		}
		return nil
	})
	if err != nil {
		if opErr != nil {
			return nil, opErr
		}
		return nil, pfirestore.WrapError("stock.adjust", err)
	}
	return levels, nil
}

// ListLowStock returns products at or below the threshold, lowest first.
func (r *StockRepository) ListLowStock(ctx context.Context, query repositories.StockLowQuery) (domain.CursorPage[domain.StockLevel], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.StockLevel]{}, errors.New("stock repository not initialised")
	}

	limit := query.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(query.PageToken); token != "" {
		onHand, docID, err := decodeStockListToken(token)
		if err != nil {
			return domain.CursorPage[domain.StockLevel]{}, fmt.Errorf("stock repository: invalid page token: %w", err)
		}
		startAfter = []any{onHand, docID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("onHand", "<=", int64(query.Threshold))
		q = q.OrderBy("onHand", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.StockLevel]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		nextToken = encodeStockListToken(last.Data.OnHand, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.StockLevel, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, domain.StockLevel{ProductID: doc.ID, OnHand: doc.Data.OnHand, UpdatedAt: doc.Data.UpdatedAt})
	}

	return domain.CursorPage[domain.StockLevel]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func encodeStockListToken(onHand int64, docID string) string {
	payload := fmt.Sprintf("%d|%s", onHand, docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeStockListToken(token string) (int64, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return 0, "", errors.New("malformed token")
	}
	onHand, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", err
	}
	return onHand, parts[1], nil
}
