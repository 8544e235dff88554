package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
	"github.com/Adrien490/synclune-sub011/internal/services"
)

type stubStockService struct {
	getFn     func(context.Context, string) (services.StockLevel, error)
	adjustFn  func(context.Context, services.AdjustStockCommand) (map[string]services.StockLevel, error)
	listLowFn func(context.Context, services.LowStockQuery) (domain.CursorPage[services.StockLevel], error)
}

func (s *stubStockService) GetStock(ctx context.Context, productID string) (services.StockLevel, error) {
	if s.getFn != nil {
		return s.getFn(ctx, productID)
	}
	return services.StockLevel{}, errors.New("not implemented")
}

func (s *stubStockService) AdjustStock(ctx context.Context, cmd services.AdjustStockCommand) (map[string]services.StockLevel, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, cmd)
	}
	return nil, errors.New("not implemented")
}

func (s *stubStockService) ListLowStock(ctx context.Context, query services.LowStockQuery) (domain.CursorPage[services.StockLevel], error) {
	if s.listLowFn != nil {
		return s.listLowFn(ctx, query)
	}
	return domain.CursorPage[services.StockLevel]{}, errors.New("not implemented")
}

func newStockRouter(service services.StockService) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin/stock", NewAdminStockHandlers(service).Routes)
	return router
}

func TestAdminStockHandlersGetStock(t *testing.T) {
	now := time.Date(2026, 5, 12, 11, 0, 0, 0, time.UTC)
	service := &stubStockService{
		getFn: func(_ context.Context, productID string) (services.StockLevel, error) {
			if productID != "prod_a" {
				t.Fatalf("unexpected product id %s", productID)
			}
			return services.StockLevel{ProductID: "prod_a", OnHand: 7, UpdatedAt: now}, nil
		},
	}

	router := newStockRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/admin/stock/prod_a", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp stockPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.ProductID != "prod_a" || resp.OnHand != 7 {
		t.Fatalf("unexpected payload: %#v", resp)
	}
}

func TestAdminStockHandlersGetStockNotFound(t *testing.T) {
	service := &stubStockService{
		getFn: func(context.Context, string) (services.StockLevel, error) {
			return services.StockLevel{}, services.ErrStockNotFound
		},
	}

	router := newStockRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/admin/stock/prod_missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAdminStockHandlersAdjustStock(t *testing.T) {
	now := time.Date(2026, 5, 12, 11, 0, 0, 0, time.UTC)

	var capturedCmd services.AdjustStockCommand
	service := &stubStockService{
		adjustFn: func(_ context.Context, cmd services.AdjustStockCommand) (map[string]services.StockLevel, error) {
			capturedCmd = cmd
			return map[string]services.StockLevel{
				"prod_b": {ProductID: "prod_b", OnHand: 1, UpdatedAt: now},
				"prod_a": {ProductID: "prod_a", OnHand: 9, UpdatedAt: now},
			}, nil
		},
	}

	router := newStockRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/admin/stock/", bytes.NewBufferString(`{"actor_id":"adm_9","deltas":{"prod_a":2,"prod_b":-1}}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedCmd.ActorID != "adm_9" {
		t.Fatalf("expected actor adm_9, got %s", capturedCmd.ActorID)
	}
	if capturedCmd.Deltas["prod_a"] != 2 || capturedCmd.Deltas["prod_b"] != -1 {
		t.Fatalf("unexpected deltas: %#v", capturedCmd.Deltas)
	}

	var resp stockListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(resp.Items))
	}
	// Sorted by product id for stable output.
	if resp.Items[0].ProductID != "prod_a" || resp.Items[1].ProductID != "prod_b" {
		t.Fatalf("unexpected order: %#v", resp.Items)
	}
}

func TestAdminStockHandlersAdjustStockInsufficient(t *testing.T) {
	service := &stubStockService{
		adjustFn: func(context.Context, services.AdjustStockCommand) (map[string]services.StockLevel, error) {
			return nil, services.ErrStockInsufficient
		},
	}

	router := newStockRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/admin/stock/", bytes.NewBufferString(`{"deltas":{"prod_a":-99}}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestAdminStockHandlersAdjustStockRequiresBody(t *testing.T) {
	router := newStockRouter(&stubStockService{})
	req := httptest.NewRequest(http.MethodPost, "/admin/stock/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminStockHandlersListLowStock(t *testing.T) {
	now := time.Date(2026, 5, 12, 11, 0, 0, 0, time.UTC)

	var capturedQuery services.LowStockQuery
	service := &stubStockService{
		listLowFn: func(_ context.Context, query services.LowStockQuery) (domain.CursorPage[services.StockLevel], error) {
			capturedQuery = query
			return domain.CursorPage[services.StockLevel]{
				Items:         []services.StockLevel{{ProductID: "prod_a", OnHand: 2, UpdatedAt: now}},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	router := newStockRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/admin/stock/low?threshold=3&page_size=25&page_token=tok123", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedQuery.Threshold != 3 {
		t.Fatalf("expected threshold 3, got %d", capturedQuery.Threshold)
	}
	if capturedQuery.Pagination.PageSize != 25 || capturedQuery.Pagination.PageToken != "tok123" {
		t.Fatalf("unexpected pagination: %#v", capturedQuery.Pagination)
	}

	var resp stockListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].OnHand != 2 {
		t.Fatalf("unexpected items: %#v", resp.Items)
	}
	if resp.NextPageToken != "tok-next" {
		t.Fatalf("expected next page token, got %s", resp.NextPageToken)
	}
}

func TestAdminStockHandlersListLowStockInvalidThreshold(t *testing.T) {
	router := newStockRouter(&stubStockService{})
	req := httptest.NewRequest(http.MethodGet, "/admin/stock/low?threshold=-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
