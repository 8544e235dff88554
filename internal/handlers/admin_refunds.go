package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Adrien490/synclune-sub011/internal/platform/httpx"
	"github.com/Adrien490/synclune-sub011/internal/services"
)

// AdminRefundHandlers exposes the staged refund workflow nested under orders.
type AdminRefundHandlers struct {
	refunds services.RefundService
}

// NewAdminRefundHandlers constructs a new AdminRefundHandlers instance.
func NewAdminRefundHandlers(refunds services.RefundService) *AdminRefundHandlers {
	return &AdminRefundHandlers{refunds: refunds}
}

// Routes registers the /admin/orders/{orderID}/refunds endpoints.
func (h *AdminRefundHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createRefund)
	r.Get("/", h.listRefunds)
	r.Get("/{refundID}", h.getRefund)
	r.Post("/{refundID}:process", h.processRefund)
	r.Post("/{refundID}:reject", h.closeRefund(func(ctx context.Context, cmd services.CloseRefundCommand) (services.Refund, error) {
		return h.refunds.RejectRefund(ctx, cmd)
	}))
	r.Post("/{refundID}:cancel", h.closeRefund(func(ctx context.Context, cmd services.CloseRefundCommand) (services.Refund, error) {
		return h.refunds.CancelRefund(ctx, cmd)
	}))
}

type createRefundRequest struct {
	ActorID string                    `json:"actor_id"`
	Amount  int64                     `json:"expected_amount"`
	Reason  string                    `json:"reason"`
	Items   []createRefundItemRequest `json:"items"`
}

type createRefundItemRequest struct {
	OrderItemID string `json:"order_item_id"`
	Quantity    int    `json:"quantity"`
	Restock     bool   `json:"restock"`
}

type closeRefundRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

func (h *AdminRefundHandlers) createRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("refund_service_unavailable", "refund service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req createRefundRequest
	if !decodeBody(ctx, w, r, &req, true) {
		return
	}

	items := make([]services.RefundItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.RefundItem{
			OrderItemID: strings.TrimSpace(item.OrderItemID),
			Quantity:    item.Quantity,
			Restock:     item.Restock,
		})
	}

	refund, err := h.refunds.CreateRefund(ctx, services.CreateRefundCommand{
		OrderID:        orderID,
		ActorID:        req.ActorID,
		ExpectedAmount: req.Amount,
		Reason:         req.Reason,
		Items:          items,
	})
	if err != nil {
		writeRefundError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, refundResponse{Refund: buildRefundPayload(refund)})
}

func (h *AdminRefundHandlers) listRefunds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("refund_service_unavailable", "refund service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	refunds, err := h.refunds.ListRefunds(ctx, orderID)
	if err != nil {
		writeRefundError(ctx, w, err)
		return
	}

	items := make([]refundPayload, 0, len(refunds))
	for _, refund := range refunds {
		items = append(items, buildRefundPayload(refund))
	}
	writeJSONResponse(w, http.StatusOK, refundListResponse{Items: items})
}

func (h *AdminRefundHandlers) getRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("refund_service_unavailable", "refund service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	refundID := strings.TrimSpace(chi.URLParam(r, "refundID"))
	if orderID == "" || refundID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id and refund id are required", http.StatusBadRequest))
		return
	}

	refund, err := h.refunds.GetRefund(ctx, orderID, refundID)
	if err != nil {
		writeRefundError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, refundResponse{Refund: buildRefundPayload(refund)})
}

func (h *AdminRefundHandlers) processRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("refund_service_unavailable", "refund service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	refundID := strings.TrimSpace(chi.URLParam(r, "refundID"))
	if orderID == "" || refundID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id and refund id are required", http.StatusBadRequest))
		return
	}

	var req closeRefundRequest
	if !decodeBody(ctx, w, r, &req, false) {
		return
	}

	refund, err := h.refunds.ProcessRefund(ctx, services.ProcessRefundCommand{
		OrderID:  orderID,
		RefundID: refundID,
		ActorID:  req.ActorID,
	})
	if err != nil {
		writeRefundError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, refundResponse{Refund: buildRefundPayload(refund)})
}

func (h *AdminRefundHandlers) closeRefund(invoke func(context.Context, services.CloseRefundCommand) (services.Refund, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.refunds == nil {
			httpx.WriteError(ctx, w, httpx.NewError("refund_service_unavailable", "refund service unavailable", http.StatusServiceUnavailable))
			return
		}

		orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
		refundID := strings.TrimSpace(chi.URLParam(r, "refundID"))
		if orderID == "" || refundID == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id and refund id are required", http.StatusBadRequest))
			return
		}

		var req closeRefundRequest
		if !decodeBody(ctx, w, r, &req, false) {
			return
		}

		refund, err := invoke(ctx, services.CloseRefundCommand{
			OrderID:  orderID,
			RefundID: refundID,
			ActorID:  req.ActorID,
			Reason:   req.Reason,
		})
		if err != nil {
			writeRefundError(ctx, w, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, refundResponse{Refund: buildRefundPayload(refund)})
	}
}

type refundResponse struct {
	Refund refundPayload `json:"refund"`
}

type refundListResponse struct {
	Items []refundPayload `json:"items"`
}

type refundPayload struct {
	ID              string              `json:"id"`
	OrderRef        string              `json:"order_ref"`
	Amount          int64               `json:"amount"`
	Currency        string              `json:"currency"`
	Status          string              `json:"status"`
	Reason          string              `json:"reason,omitempty"`
	Items           []refundItemPayload `json:"items,omitempty"`
	GatewayRefundID string              `json:"gateway_refund_id,omitempty"`
	ProcessedAt     string              `json:"processed_at,omitempty"`
	RejectedAt      string              `json:"rejected_at,omitempty"`
	CanceledAt      string              `json:"canceled_at,omitempty"`
	CreatedAt       string              `json:"created_at"`
	UpdatedAt       string              `json:"updated_at,omitempty"`
}

type refundItemPayload struct {
	OrderItemID string `json:"order_item_id"`
	Quantity    int    `json:"quantity"`
	Restock     bool   `json:"restock"`
}

func buildRefundPayload(refund services.Refund) refundPayload {
	payload := refundPayload{
		ID:              strings.TrimSpace(refund.ID),
		OrderRef:        strings.TrimSpace(refund.OrderRef),
		Amount:          refund.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(refund.Currency)),
		Status:          string(refund.Status),
		Reason:          strings.TrimSpace(refund.Reason),
		GatewayRefundID: strings.TrimSpace(refund.GatewayRefundID),
		ProcessedAt:     formatTime(pointerTime(refund.ProcessedAt)),
		RejectedAt:      formatTime(pointerTime(refund.RejectedAt)),
		CanceledAt:      formatTime(pointerTime(refund.CanceledAt)),
		CreatedAt:       formatTime(refund.CreatedAt),
		UpdatedAt:       formatTime(refund.UpdatedAt),
	}
	for _, item := range refund.Items {
		payload.Items = append(payload.Items, refundItemPayload{
			OrderItemID: item.OrderItemID,
			Quantity:    item.Quantity,
			Restock:     item.Restock,
		})
	}
	return payload
}

func writeRefundError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrRefundInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrRefundNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("refund_not_found", "refund not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrRefundExceedsBalance), errors.Is(err, services.ErrRefundExceedsQuantity):
		httpx.WriteError(ctx, w, httpx.NewError("refund_unprocessable", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrRefundInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("refund_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrRefundConflict):
		httpx.WriteError(ctx, w, httpx.NewError("refund_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrRefundGateway):
		httpx.WriteError(ctx, w, httpx.NewError("refund_gateway_error", err.Error(), http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("refund_error", "failed to process refund request", http.StatusInternalServerError))
	}
}
