package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
	"github.com/Adrien490/synclune-sub011/internal/services"
)

type stubRefundService struct {
	createFn  func(context.Context, services.CreateRefundCommand) (services.Refund, error)
	processFn func(context.Context, services.ProcessRefundCommand) (services.Refund, error)
	rejectFn  func(context.Context, services.CloseRefundCommand) (services.Refund, error)
	cancelFn  func(context.Context, services.CloseRefundCommand) (services.Refund, error)
	getFn     func(context.Context, string, string) (services.Refund, error)
	listFn    func(context.Context, string) ([]services.Refund, error)
}

func (s *stubRefundService) CreateRefund(ctx context.Context, cmd services.CreateRefundCommand) (services.Refund, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Refund{}, errors.New("not implemented")
}

func (s *stubRefundService) ProcessRefund(ctx context.Context, cmd services.ProcessRefundCommand) (services.Refund, error) {
	if s.processFn != nil {
		return s.processFn(ctx, cmd)
	}
	return services.Refund{}, errors.New("not implemented")
}

func (s *stubRefundService) RejectRefund(ctx context.Context, cmd services.CloseRefundCommand) (services.Refund, error) {
	if s.rejectFn != nil {
		return s.rejectFn(ctx, cmd)
	}
	return services.Refund{}, errors.New("not implemented")
}

func (s *stubRefundService) CancelRefund(ctx context.Context, cmd services.CloseRefundCommand) (services.Refund, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Refund{}, errors.New("not implemented")
}

func (s *stubRefundService) GetRefund(ctx context.Context, orderID string, refundID string) (services.Refund, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, refundID)
	}
	return services.Refund{}, errors.New("not implemented")
}

func (s *stubRefundService) ListRefunds(ctx context.Context, orderID string) ([]services.Refund, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID)
	}
	return nil, errors.New("not implemented")
}

func newRefundRouter(service services.RefundService) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin/orders/{orderID}/refunds", NewAdminRefundHandlers(service).Routes)
	return router
}

func sampleRefund(now time.Time) services.Refund {
	return services.Refund{
		ID:       "ref_1",
		OrderRef: "ord_123",
		Amount:   1500,
		Currency: "eur",
		Status:   domain.RefundStatusRequested,
		Reason:   "damaged item",
		Items: []domain.RefundItem{
			{OrderItemID: "itm_a", Quantity: 1, Restock: true},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestAdminRefundHandlersCreateRefund(t *testing.T) {
	now := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)

	var capturedCmd services.CreateRefundCommand
	service := &stubRefundService{
		createFn: func(_ context.Context, cmd services.CreateRefundCommand) (services.Refund, error) {
			capturedCmd = cmd
			return sampleRefund(now), nil
		},
	}

	body := `{
		"actor_id": "adm_9",
		"expected_amount": 1500,
		"reason": "damaged item",
		"items": [{"order_item_id": "itm_a", "quantity": 1, "restock": true}]
	}`

	router := newRefundRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_123/refunds/", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedCmd.OrderID != "ord_123" {
		t.Fatalf("expected order id from path, got %s", capturedCmd.OrderID)
	}
	if capturedCmd.ExpectedAmount != 1500 {
		t.Fatalf("expected amount check 1500, got %d", capturedCmd.ExpectedAmount)
	}
	if len(capturedCmd.Items) != 1 || !capturedCmd.Items[0].Restock {
		t.Fatalf("unexpected items: %#v", capturedCmd.Items)
	}

	var resp refundResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Refund.ID != "ref_1" || resp.Refund.Status != string(domain.RefundStatusRequested) {
		t.Fatalf("unexpected refund payload: %#v", resp.Refund)
	}
	if resp.Refund.Currency != "EUR" {
		t.Fatalf("expected currency uppercased, got %s", resp.Refund.Currency)
	}
}

func TestAdminRefundHandlersCreateRefundExceedsBalance(t *testing.T) {
	service := &stubRefundService{
		createFn: func(context.Context, services.CreateRefundCommand) (services.Refund, error) {
			return services.Refund{}, services.ErrRefundExceedsBalance
		},
	}

	router := newRefundRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_123/refunds/", bytes.NewBufferString(`{"items":[{"order_item_id":"itm_a","quantity":40}]}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestAdminRefundHandlersCreateRefundRequiresBody(t *testing.T) {
	router := newRefundRouter(&stubRefundService{})
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_123/refunds/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminRefundHandlersListRefunds(t *testing.T) {
	now := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)
	service := &stubRefundService{
		listFn: func(_ context.Context, orderID string) ([]services.Refund, error) {
			if orderID != "ord_123" {
				t.Fatalf("unexpected order id %s", orderID)
			}
			return []services.Refund{sampleRefund(now)}, nil
		},
	}

	router := newRefundRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/admin/orders/ord_123/refunds/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp refundListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "ref_1" {
		t.Fatalf("unexpected refunds: %#v", resp.Items)
	}
}

func TestAdminRefundHandlersGetRefundNotFound(t *testing.T) {
	service := &stubRefundService{
		getFn: func(context.Context, string, string) (services.Refund, error) {
			return services.Refund{}, services.ErrRefundNotFound
		},
	}

	router := newRefundRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/admin/orders/ord_123/refunds/ref_missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAdminRefundHandlersProcessRefund(t *testing.T) {
	now := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)

	var capturedCmd services.ProcessRefundCommand
	service := &stubRefundService{
		processFn: func(_ context.Context, cmd services.ProcessRefundCommand) (services.Refund, error) {
			capturedCmd = cmd
			refund := sampleRefund(now)
			refund.Status = domain.RefundStatusProcessed
			refund.GatewayRefundID = "re_42"
			refund.ProcessedAt = &now
			return refund, nil
		},
	}

	router := newRefundRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_123/refunds/ref_1:process", bytes.NewBufferString(`{"actor_id":"adm_9"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedCmd.OrderID != "ord_123" || capturedCmd.RefundID != "ref_1" {
		t.Fatalf("unexpected command: %#v", capturedCmd)
	}

	var resp refundResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Refund.Status != string(domain.RefundStatusProcessed) {
		t.Fatalf("expected processed status, got %s", resp.Refund.Status)
	}
	if resp.Refund.GatewayRefundID != "re_42" {
		t.Fatalf("expected gateway refund id, got %s", resp.Refund.GatewayRefundID)
	}
	if resp.Refund.ProcessedAt == "" {
		t.Fatalf("expected processed_at timestamp")
	}
}

func TestAdminRefundHandlersProcessGatewayFailure(t *testing.T) {
	service := &stubRefundService{
		processFn: func(context.Context, services.ProcessRefundCommand) (services.Refund, error) {
			return services.Refund{}, fmt.Errorf("%w: card issuer declined", services.ErrRefundGateway)
		},
	}

	router := newRefundRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_123/refunds/ref_1:process", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "card issuer declined") {
		t.Fatalf("expected gateway message in response, got %s", rr.Body.String())
	}
}

func TestAdminRefundHandlersRejectForwardsReason(t *testing.T) {
	now := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)

	var capturedCmd services.CloseRefundCommand
	service := &stubRefundService{
		rejectFn: func(_ context.Context, cmd services.CloseRefundCommand) (services.Refund, error) {
			capturedCmd = cmd
			refund := sampleRefund(now)
			refund.Status = domain.RefundStatusRejected
			refund.RejectedAt = &now
			return refund, nil
		},
	}

	router := newRefundRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_123/refunds/ref_1:reject", bytes.NewBufferString(`{"reason":"not eligible"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedCmd.Reason != "not eligible" {
		t.Fatalf("expected reason forwarded, got %q", capturedCmd.Reason)
	}
}

func TestAdminRefundHandlersCancelInvalidState(t *testing.T) {
	service := &stubRefundService{
		cancelFn: func(context.Context, services.CloseRefundCommand) (services.Refund, error) {
			return services.Refund{}, services.ErrRefundInvalidState
		},
	}

	router := newRefundRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_123/refunds/ref_1:cancel", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}
