package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
	"github.com/Adrien490/synclune-sub011/internal/platform/httpx"
	"github.com/Adrien490/synclune-sub011/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 16 * 1024
)

// AdminOrderHandlers exposes the back office order lifecycle endpoints.
type AdminOrderHandlers struct {
	orders services.OrderService
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{orders: orders}
}

// Routes registers the /admin/orders endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:mark-paid", h.action(func(ctx context.Context, cmd services.OrderActionCommand) (services.Order, error) {
		return h.orders.MarkAsPaid(ctx, cmd)
	}))
	r.Post("/{orderID}:mark-processing", h.action(func(ctx context.Context, cmd services.OrderActionCommand) (services.Order, error) {
		return h.orders.MarkAsProcessing(ctx, cmd)
	}))
	r.Post("/{orderID}:ship", h.shipOrder)
	r.Post("/{orderID}:deliver", h.action(func(ctx context.Context, cmd services.OrderActionCommand) (services.Order, error) {
		return h.orders.Deliver(ctx, cmd)
	}))
	r.Post("/{orderID}:revert-to-processing", h.action(func(ctx context.Context, cmd services.OrderActionCommand) (services.Order, error) {
		return h.orders.RevertToProcessing(ctx, cmd)
	}))
	r.Post("/{orderID}:tracking", h.updateTracking)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

type createOrderRequest struct {
	CustomerID         string                   `json:"customer_id"`
	CustomerEmail      string                   `json:"customer_email"`
	Currency           string                   `json:"currency"`
	Items              []createOrderItemRequest `json:"items"`
	ShippingPostalCode string                   `json:"shipping_postal_code"`
	CheckoutSessionID  string                   `json:"checkout_session_id"`
	Metadata           map[string]string        `json:"metadata"`
}

type createOrderItemRequest struct {
	ProductRef string `json:"product_ref"`
	SKU        string `json:"sku"`
	Title      string `json:"title"`
	Color      string `json:"color"`
	Material   string `json:"material"`
	Size       string `json:"size"`
	UnitPrice  int64  `json:"unit_price"`
	Quantity   int    `json:"quantity"`
}

type orderActionRequest struct {
	ActorID string `json:"actor_id"`
}

type shipOrderRequest struct {
	ActorID         string `json:"actor_id"`
	TrackingNumber  string `json:"tracking_number"`
	CarrierOverride string `json:"carrier"`
}

type updateTrackingRequest struct {
	ActorID        string `json:"actor_id"`
	TrackingNumber string `json:"tracking_number"`
}

type cancelOrderRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

func (h *AdminOrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createOrderRequest
	if !decodeBody(ctx, w, r, &req, true) {
		return
	}

	items := make([]services.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItem{
			ProductRef: strings.TrimSpace(item.ProductRef),
			SKU:        strings.TrimSpace(item.SKU),
			Title:      strings.TrimSpace(item.Title),
			Color:      strings.TrimSpace(item.Color),
			Material:   strings.TrimSpace(item.Material),
			Size:       strings.TrimSpace(item.Size),
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
		})
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		CustomerID:         req.CustomerID,
		CustomerEmail:      req.CustomerEmail,
		Currency:           req.Currency,
		Items:              items,
		ShippingPostalCode: req.ShippingPostalCode,
		CheckoutSessionID:  req.CheckoutSessionID,
		Metadata:           req.Metadata,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order, domain.OrderPermissions(order))})
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	var dateRange domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.To = &ts
	}

	pageSize := defaultOrderPageSize
	if sizeRaw := strings.TrimSpace(query.Get("page_size")); sizeRaw != "" {
		size, err := strconv.Atoi(sizeRaw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case size <= 0:
			pageSize = defaultOrderPageSize
		case size > maxOrderPageSize:
			pageSize = maxOrderPageSize
		default:
			pageSize = size
		}
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		Status:        parseFilterValues(query["status"]),
		PaymentStatus: parseFilterValues(query["payment_status"]),
		DateRange:     dateRange,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	details, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := orderDetailsResponse{
		Order:   buildOrderPayload(details.Order, details.Permissions),
		Refunds: make([]refundPayload, 0, len(details.Refunds)),
	}
	for _, refund := range details.Refunds {
		payload.Refunds = append(payload.Refunds, buildRefundPayload(refund))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// action wraps the plain transitions that only need an order id and an actor.
func (h *AdminOrderHandlers) action(invoke func(context.Context, services.OrderActionCommand) (services.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.orders == nil {
			httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
			return
		}

		orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
		if orderID == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
			return
		}

		var req orderActionRequest
		if !decodeBody(ctx, w, r, &req, false) {
			return
		}

		order, err := invoke(ctx, services.OrderActionCommand{OrderID: orderID, ActorID: req.ActorID})
		if err != nil {
			writeOrderError(ctx, w, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, domain.OrderPermissions(order))})
	}
}

func (h *AdminOrderHandlers) shipOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req shipOrderRequest
	if !decodeBody(ctx, w, r, &req, false) {
		return
	}

	order, err := h.orders.Ship(ctx, services.ShipOrderCommand{
		OrderID:         orderID,
		ActorID:         req.ActorID,
		TrackingNumber:  req.TrackingNumber,
		CarrierOverride: req.CarrierOverride,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, domain.OrderPermissions(order))})
}

func (h *AdminOrderHandlers) updateTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updateTrackingRequest
	if !decodeBody(ctx, w, r, &req, true) {
		return
	}

	order, err := h.orders.UpdateTracking(ctx, services.UpdateTrackingCommand{
		OrderID:        orderID,
		ActorID:        req.ActorID,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, domain.OrderPermissions(order))})
}

func (h *AdminOrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	if !decodeBody(ctx, w, r, &req, false) {
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		ActorID: req.ActorID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, domain.OrderPermissions(order))})
}

// decodeBody reads and decodes a JSON body into dst. When required is false
// an empty body is accepted and dst is left zeroed.
func decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any, required bool) bool {
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if len(body) == 0 {
		if required {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
			return false
		}
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID                string `json:"id"`
	OrderNumber       string `json:"order_number"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	FulfillmentStatus string `json:"fulfillment_status"`
	Currency          string `json:"currency"`
	Amount            int64  `json:"amount"`
	AmountRefunded    int64  `json:"amount_refunded,omitempty"`
	CreatedAt         string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderDetailsResponse struct {
	Order   orderPayload    `json:"order"`
	Refunds []refundPayload `json:"refunds"`
}

type orderPayload struct {
	ID                 string             `json:"id"`
	OrderNumber        string             `json:"order_number"`
	CustomerID         string             `json:"customer_id,omitempty"`
	CustomerEmail      string             `json:"customer_email,omitempty"`
	Status             string             `json:"status"`
	PaymentStatus      string             `json:"payment_status"`
	FulfillmentStatus  string             `json:"fulfillment_status"`
	Currency           string             `json:"currency"`
	Amount             int64              `json:"amount"`
	AmountRefunded     int64              `json:"amount_refunded"`
	Items              []orderItemPayload `json:"items"`
	ShippingPostalCode string             `json:"shipping_postal_code,omitempty"`
	Carrier            string             `json:"carrier,omitempty"`
	TrackingNumber     string             `json:"tracking_number,omitempty"`
	TrackingURL        string             `json:"tracking_url,omitempty"`
	CheckoutSessionID  string             `json:"checkout_session_id,omitempty"`
	PaymentIntentID    string             `json:"payment_intent_id,omitempty"`
	PaidAt             string             `json:"paid_at,omitempty"`
	ShippedAt          string             `json:"shipped_at,omitempty"`
	DeliveredAt        string             `json:"delivered_at,omitempty"`
	CanceledAt         string             `json:"canceled_at,omitempty"`
	CreatedAt          string             `json:"created_at"`
	UpdatedAt          string             `json:"updated_at,omitempty"`
	Permissions        permissionsPayload `json:"permissions"`
}

type orderItemPayload struct {
	ID         string `json:"id"`
	ProductRef string `json:"product_ref,omitempty"`
	SKU        string `json:"sku,omitempty"`
	Title      string `json:"title"`
	Color      string `json:"color,omitempty"`
	Material   string `json:"material,omitempty"`
	Size       string `json:"size,omitempty"`
	UnitPrice  int64  `json:"unit_price"`
	Quantity   int    `json:"quantity"`
	Total      int64  `json:"total"`
}

type permissionsPayload struct {
	CanMarkAsProcessing   bool `json:"can_mark_as_processing"`
	CanMarkAsPaid         bool `json:"can_mark_as_paid"`
	CanMarkAsShipped      bool `json:"can_mark_as_shipped"`
	CanMarkAsDelivered    bool `json:"can_mark_as_delivered"`
	CanRevertToProcessing bool `json:"can_revert_to_processing"`
	CanUpdateTracking     bool `json:"can_update_tracking"`
	CanCancel             bool `json:"can_cancel"`
	CanRefund             bool `json:"can_refund"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:                strings.TrimSpace(order.ID),
		OrderNumber:       strings.TrimSpace(order.OrderNumber),
		Status:            string(order.Status),
		PaymentStatus:     string(order.PaymentStatus),
		FulfillmentStatus: string(order.FulfillmentStatus),
		Currency:          strings.ToUpper(strings.TrimSpace(order.Currency)),
		Amount:            order.Amount,
		AmountRefunded:    order.AmountRefunded,
		CreatedAt:         formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order, permissions services.Permissions) orderPayload {
	payload := orderPayload{
		ID:                 strings.TrimSpace(order.ID),
		OrderNumber:        strings.TrimSpace(order.OrderNumber),
		CustomerID:         strings.TrimSpace(order.CustomerID),
		CustomerEmail:      strings.TrimSpace(order.CustomerEmail),
		Status:             string(order.Status),
		PaymentStatus:      string(order.PaymentStatus),
		FulfillmentStatus:  string(order.FulfillmentStatus),
		Currency:           strings.ToUpper(strings.TrimSpace(order.Currency)),
		Amount:             order.Amount,
		AmountRefunded:     order.AmountRefunded,
		Items:              make([]orderItemPayload, 0, len(order.Items)),
		ShippingPostalCode: strings.TrimSpace(order.ShippingPostalCode),
		Carrier:            string(order.Carrier),
		TrackingNumber:     strings.TrimSpace(order.TrackingNumber),
		TrackingURL:        strings.TrimSpace(order.TrackingURL),
		CheckoutSessionID:  strings.TrimSpace(order.CheckoutSessionID),
		PaymentIntentID:    strings.TrimSpace(order.PaymentIntentID),
		PaidAt:             formatTime(pointerTime(order.PaidAt)),
		ShippedAt:          formatTime(pointerTime(order.ShippedAt)),
		DeliveredAt:        formatTime(pointerTime(order.DeliveredAt)),
		CanceledAt:         formatTime(pointerTime(order.CanceledAt)),
		CreatedAt:          formatTime(order.CreatedAt),
		UpdatedAt:          formatTime(order.UpdatedAt),
		Permissions:        buildPermissionsPayload(permissions),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:         strings.TrimSpace(item.ID),
			ProductRef: strings.TrimSpace(item.ProductRef),
			SKU:        strings.TrimSpace(item.SKU),
			Title:      strings.TrimSpace(item.Title),
			Color:      strings.TrimSpace(item.Color),
			Material:   strings.TrimSpace(item.Material),
			Size:       strings.TrimSpace(item.Size),
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			Total:      item.Total(),
		})
	}

	return payload
}

func buildPermissionsPayload(p services.Permissions) permissionsPayload {
	return permissionsPayload{
		CanMarkAsProcessing:   p.CanMarkAsProcessing,
		CanMarkAsPaid:         p.CanMarkAsPaid,
		CanMarkAsShipped:      p.CanMarkAsShipped,
		CanMarkAsDelivered:    p.CanMarkAsDelivered,
		CanRevertToProcessing: p.CanRevertToProcessing,
		CanUpdateTracking:     p.CanUpdateTracking,
		CanCancel:             p.CanCancel,
		CanRefund:             p.CanRefund,
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
