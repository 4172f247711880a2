package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voxsar/commerce-api/internal/payments"
	"github.com/voxsar/commerce-api/internal/platform/config"
	"github.com/voxsar/commerce-api/internal/repositories"
	"github.com/voxsar/commerce-api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Cart     services.CartService
	Checkout services.CheckoutService
	Orders   services.OrderService
}

// ContainerDeps carries the externally constructed infrastructure that the
// container wires into services.
type ContainerDeps struct {
	Registry repositories.Registry
	Gateway  *payments.Manager
	Events   services.EventPublisher
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer assembles the service graph over the supplied registry and
// payment gateway.
func NewContainer(cfg config.Config, deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment gateway manager is required")
	}

	svc, err := buildServices(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
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

func buildServices(cfg config.Config, deps ContainerDeps) (Services, error) {
	reg := deps.Registry

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := serviceLogger(deps.Logger)

	pricer, err := services.NewPriceResolver(services.PriceResolverDeps{
		PriceLists: reg.PriceLists(),
		Clock:      clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build price resolver: %w", err)
	}

	taxes, err := services.NewTaxCalculator(services.TaxCalculatorDeps{
		Regions: reg.TaxRegions(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build tax calculator: %w", err)
	}

	discounts := services.NewPromotionResolver()

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:      reg.Carts(),
		Products:   reg.Products(),
		Promotions: reg.Promotions(),
		TaxRegions: reg.TaxRegions(),
		Pricer:     pricer,
		Taxes:      taxes,
		Discounts:  discounts,
		Events:     deps.Events,
		Clock:      clock,
		CartTTL:    cfg.Cart.TTL,
		SweepBatch: cfg.Cart.ExpirySweepBatch,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:          reg.Carts(),
		Orders:         reg.Orders(),
		Payments:       reg.Payments(),
		PaymentIntents: reg.PaymentIntents(),
		Promotions:     reg.Promotions(),
		UnitOfWork:     reg,
		Gateway:        newGatewayAdapter(deps.Gateway, cfg.PSP.DefaultProvider),
		Events:         deps.Events,
		Clock:          clock,
		GatewayTimeout: cfg.PSP.GatewayTimeout,
		Logger:         logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: reg.Orders(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	return Services{
		Cart:     cartSvc,
		Checkout: checkoutSvc,
		Orders:   orderSvc,
	}, nil
}

func serviceLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	if logger == nil {
		return nil
	}
	return func(_ context.Context, msg string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Warn(msg, zapFields...)
	}
}
