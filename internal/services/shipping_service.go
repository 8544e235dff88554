package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
)

// ErrShippingInvalidInput indicates the postal code is missing or malformed.
var ErrShippingInvalidInput = errors.New("shipping: invalid input")

// ShippingServiceDeps bundles collaborators for the shipping service.
type ShippingServiceDeps struct {
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type shippingService struct {
	logger func(context.Context, string, map[string]any)
}

// NewShippingService constructs the zone and rate resolver.
func NewShippingService(deps ShippingServiceDeps) (ShippingService, error) {
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &shippingService{logger: logger}, nil
}

// Quote classifies the postal code and returns the rate for its zone. Unknown
// zones still quote, at the highest tier, so checkout never blocks on a code
// we cannot classify.
func (s *shippingService) Quote(ctx context.Context, postalCode string) (ShippingQuote, error) {
	code := strings.TrimSpace(postalCode)
	if code == "" {
		return ShippingQuote{}, fmt.Errorf("%w: postal code is required", ErrShippingInvalidInput)
	}

	result := domain.ResolveShippingZone(code)
	if result.Zone == domain.ZoneUnknown {
		s.logger(ctx, "shipping.zone.unknown", map[string]any{"postalCode": code})
	}

	return ShippingQuote{
		PostalCode: code,
		Zone:       result.Zone,
		Department: result.Department,
		RateCents:  domain.ShippingRateFor(result.Zone),
	}, nil
}
