package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Adrien490/synclune-sub011/internal/platform/httpx"
	"github.com/Adrien490/synclune-sub011/internal/services"
)

const (
	defaultLowStockThreshold = 5
	defaultLowStockPageSize  = 50
)

// AdminStockHandlers exposes stock reads and manual adjustments.
type AdminStockHandlers struct {
	stock services.StockService
}

// NewAdminStockHandlers constructs a new AdminStockHandlers instance.
func NewAdminStockHandlers(stock services.StockService) *AdminStockHandlers {
	return &AdminStockHandlers{stock: stock}
}

// Routes registers the /admin/stock endpoints.
func (h *AdminStockHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/low", h.listLowStock)
	r.Get("/{productID}", h.getStock)
	r.Post("/", h.adjustStock)
}

type adjustStockRequest struct {
	ActorID string           `json:"actor_id"`
	Deltas  map[string]int64 `json:"deltas"`
}

func (h *AdminStockHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	level, err := h.stock.GetStock(ctx, productID)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildStockPayload(level))
}

func (h *AdminStockHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adjustStockRequest
	if !decodeBody(ctx, w, r, &req, true) {
		return
	}

	levels, err := h.stock.AdjustStock(ctx, services.AdjustStockCommand{
		Deltas:  req.Deltas,
		ActorID: req.ActorID,
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	productIDs := make([]string, 0, len(levels))
	for productID := range levels {
		productIDs = append(productIDs, productID)
	}
	sort.Strings(productIDs)

	items := make([]stockPayload, 0, len(productIDs))
	for _, productID := range productIDs {
		items = append(items, buildStockPayload(levels[productID]))
	}
	writeJSONResponse(w, http.StatusOK, stockListResponse{Items: items})
}

func (h *AdminStockHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	threshold := defaultLowStockThreshold
	if raw := strings.TrimSpace(query.Get("threshold")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "threshold must be a non-negative integer", http.StatusBadRequest))
			return
		}
		threshold = value
	}

	pageSize := defaultLowStockPageSize
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be a positive integer", http.StatusBadRequest))
			return
		}
		pageSize = value
	}

	page, err := h.stock.ListLowStock(ctx, services.LowStockQuery{
		Threshold: threshold,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	items := make([]stockPayload, 0, len(page.Items))
	for _, level := range page.Items {
		items = append(items, buildStockPayload(level))
	}
	writeJSONResponse(w, http.StatusOK, stockListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

type stockListResponse struct {
	Items         []stockPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type stockPayload struct {
	ProductID string `json:"product_id"`
	OnHand    int64  `json:"on_hand"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func buildStockPayload(level services.StockLevel) stockPayload {
	return stockPayload{
		ProductID: strings.TrimSpace(level.ProductID),
		OnHand:    level.OnHand,
		UpdatedAt: formatTime(level.UpdatedAt),
	}
}

func writeStockError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrStockInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStockNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", "stock record not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStockInsufficient):
		httpx.WriteError(ctx, w, httpx.NewError("stock_insufficient", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("stock_error", "failed to process stock request", http.StatusInternalServerError))
	}
}
