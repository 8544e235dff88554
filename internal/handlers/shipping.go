package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Adrien490/synclune-sub011/internal/platform/httpx"
	"github.com/Adrien490/synclune-sub011/internal/services"
)

// ShippingHandlers exposes the shipping quote endpoint used by the storefront
// checkout form.
type ShippingHandlers struct {
	shipping services.ShippingService
}

// NewShippingHandlers constructs a new ShippingHandlers instance.
func NewShippingHandlers(shipping services.ShippingService) *ShippingHandlers {
	return &ShippingHandlers{shipping: shipping}
}

// Routes registers the /shipping endpoints.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/quote", h.quote)
}

type shippingQuoteResponse struct {
	PostalCode string `json:"postal_code"`
	Zone       string `json:"zone"`
	Department string `json:"department,omitempty"`
	RateCents  int64  `json:"rate_cents"`
}

func (h *ShippingHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
		return
	}

	postalCode := strings.TrimSpace(r.URL.Query().Get("postal_code"))
	quote, err := h.shipping.Quote(ctx, postalCode)
	if err != nil {
		if errors.Is(err, services.ErrShippingInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "postal_code is required", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("shipping_error", "failed to compute shipping quote", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, shippingQuoteResponse{
		PostalCode: quote.PostalCode,
		Zone:       string(quote.Zone),
		Department: quote.Department,
		RateCents:  quote.RateCents,
	})
}
