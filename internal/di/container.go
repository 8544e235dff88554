package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adrien490/synclune-sub011/internal/payments"
	"github.com/Adrien490/synclune-sub011/internal/platform/config"
	"github.com/Adrien490/synclune-sub011/internal/repositories"
	"github.com/Adrien490/synclune-sub011/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders   services.OrderService
	Refunds  services.RefundService
	Checkout services.CheckoutService
	Shipping services.ShippingService
	Stock    services.StockService
	Counters services.CounterService
	System   services.SystemService
}

// Deps carries infrastructure collaborators that live outside the repository registry.
// Gateway and Events may be nil when the corresponding backend is not configured;
// the services depending on them are then left unset and handlers answer 503.
type Deps struct {
	Gateway payments.Provider
	Events  services.OrderEventPublisher
	Logger  func(ctx context.Context, event string, fields map[string]any)
	Build   services.BuildInfo
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Deps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	if deps.Gateway == nil && cfg.PSP.StripeAPIKey != "" {
		gateway, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.PSP.StripeAPIKey,
			Logger: deps.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		deps.Gateway = gateway
	}

	svc, err := buildServices(reg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, deps Deps) (Services, error) {
	var svc Services
	if reg == nil {
		return svc, nil
	}

	counterRepo := reg.Counters()
	if counterRepo != nil {
		counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
			Repository: counterRepo,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build counter service: %w", err)
		}
		svc.Counters = counterSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	shippingSvc, err := services.NewShippingService(services.ShippingServiceDeps{
		Logger: deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping service: %w", err)
	}
	svc.Shipping = shippingSvc

	if stockRepo := reg.Stock(); stockRepo != nil {
		stockSvc, err := services.NewStockService(services.StockServiceDeps{
			Stock:  stockRepo,
			Clock:  time.Now,
			Logger: deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build stock service: %w", err)
		}
		svc.Stock = stockSvc
	}

	ordersRepo := reg.Orders()
	refundsRepo := reg.Refunds()
	if ordersRepo != nil && refundsRepo != nil && counterRepo != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:   ordersRepo,
			Refunds:  refundsRepo,
			Counters: counterRepo,
			Clock:    time.Now,
			Events:   deps.Events,
			Logger:   deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if deps.Gateway != nil && ordersRepo != nil && refundsRepo != nil {
		refundSvc, err := services.NewRefundService(services.RefundServiceDeps{
			Orders:  ordersRepo,
			Refunds: refundsRepo,
			Gateway: deps.Gateway,
			Clock:   time.Now,
			Events:  deps.Events,
			Logger:  deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build refund service: %w", err)
		}
		svc.Refunds = refundSvc
	}

	if deps.Gateway != nil && ordersRepo != nil && svc.Orders != nil {
		checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
			Orders:    ordersRepo,
			Gateway:   deps.Gateway,
			Lifecycle: svc.Orders,
			Clock:     time.Now,
			Logger:    deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkoutSvc
	}

	return svc, nil
}
