package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
	"github.com/Adrien490/synclune-sub011/internal/services"
)

type stubShippingService struct {
	quoteFn func(context.Context, string) (services.ShippingQuote, error)
}

func (s *stubShippingService) Quote(ctx context.Context, postalCode string) (services.ShippingQuote, error) {
	if s.quoteFn != nil {
		return s.quoteFn(ctx, postalCode)
	}
	return services.ShippingQuote{}, errors.New("not implemented")
}

func newShippingRouter(service services.ShippingService) chi.Router {
	router := chi.NewRouter()
	router.Route("/shipping", NewShippingHandlers(service).Routes)
	return router
}

func TestShippingHandlersQuote(t *testing.T) {
	service := &stubShippingService{
		quoteFn: func(_ context.Context, postalCode string) (services.ShippingQuote, error) {
			if postalCode != "75011" {
				t.Fatalf("unexpected postal code %s", postalCode)
			}
			return services.ShippingQuote{
				PostalCode: "75011",
				Zone:       domain.ZoneDomestic,
				Department: "75",
				RateCents:  590,
			}, nil
		},
	}

	router := newShippingRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/shipping/quote?postal_code=75011", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp shippingQuoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Zone != string(domain.ZoneDomestic) || resp.Department != "75" || resp.RateCents != 590 {
		t.Fatalf("unexpected quote: %#v", resp)
	}
}

func TestShippingHandlersQuoteMissingPostalCode(t *testing.T) {
	service := &stubShippingService{
		quoteFn: func(context.Context, string) (services.ShippingQuote, error) {
			return services.ShippingQuote{}, services.ErrShippingInvalidInput
		},
	}

	router := newShippingRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/shipping/quote", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestShippingHandlersQuoteUnknownZoneStillQuotes(t *testing.T) {
	service := &stubShippingService{
		quoteFn: func(context.Context, string) (services.ShippingQuote, error) {
			return services.ShippingQuote{
				PostalCode: "00000",
				Zone:       domain.ZoneUnknown,
				RateCents:  1990,
			}, nil
		},
	}

	router := newShippingRouter(service)
	req := httptest.NewRequest(http.MethodGet, "/shipping/quote?postal_code=00000", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp shippingQuoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.RateCents != 1990 {
		t.Fatalf("expected fallback rate 1990, got %d", resp.RateCents)
	}
}
