package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
	"github.com/Adrien490/synclune-sub011/internal/repositories"
)

var (
	// ErrStockInvalidInput indicates the caller supplied invalid stock parameters.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrStockNotFound indicates no stock record exists for the product.
	ErrStockNotFound = errors.New("stock: not found")
	// ErrStockInsufficient indicates a negative adjustment would drive stock below zero.
	ErrStockInsufficient = errors.New("stock: insufficient quantity")
)

// StockServiceDeps bundles collaborators required to construct the stock service.
type StockServiceDeps struct {
	Stock  repositories.StockRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type stockService struct {
	stock  repositories.StockRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewStockService wires dependencies into a concrete StockService implementation.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Stock == nil {
		return nil, errors.New("stock service: stock repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &stockService{
		stock: deps.Stock,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *stockService) GetStock(ctx context.Context, productID string) (StockLevel, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return StockLevel{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	level, err := s.stock.Get(ctx, productID)
	if err != nil {
		return StockLevel{}, s.mapRepositoryError(err)
	}
	return level, nil
}

func (s *stockService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (map[string]StockLevel, error) {
	if len(cmd.Deltas) == 0 {
		return nil, fmt.Errorf("%w: at least one delta is required", ErrStockInvalidInput)
	}

	levels, err := s.stock.Adjust(ctx, cmd.Deltas, s.clock())
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	s.logger(ctx, "stock.adjusted", map[string]any{
		"products": len(levels),
		"actor":    strings.TrimSpace(cmd.ActorID),
	})
	return levels, nil
}

func (s *stockService) ListLowStock(ctx context.Context, query LowStockQuery) (domain.CursorPage[StockLevel], error) {
	if query.Threshold < 0 {
		return domain.CursorPage[StockLevel]{}, fmt.Errorf("%w: threshold must not be negative", ErrStockInvalidInput)
	}
	page, err := s.stock.ListLowStock(ctx, repositories.StockLowQuery{
		Threshold: query.Threshold,
		PageSize:  query.Pagination.PageSize,
		PageToken: query.Pagination.PageToken,
	})
	if err != nil {
		return domain.CursorPage[StockLevel]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *stockService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorNotFound:
			return fmt.Errorf("%w: %s", ErrStockNotFound, stockErr.Message)
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %s", ErrStockInsufficient, stockErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrStockNotFound, err)
	}

	return err
}
