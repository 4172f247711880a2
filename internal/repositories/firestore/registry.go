package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/voxsar/commerce-api/internal/platform/firestore"
	"github.com/voxsar/commerce-api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	carts      *CartRepository
	orders     *OrderRepository
	payments   *PaymentRepository
	intents    *PaymentIntentRepository
	products   *ProductRepository
	priceLists *PriceListRepository
	taxRegions *TaxRegionRepository
	promotions *PromotionRepository
	health     repositories.HealthRepository
}

// NewRegistry constructs the full repository set over a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	payments, err := NewPaymentRepository(provider)
	if err != nil {
		return nil, err
	}
	intents, err := NewPaymentIntentRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	priceLists, err := NewPriceListRepository(provider)
	if err != nil {
		return nil, err
	}
	taxRegions, err := NewTaxRegionRepository(provider)
	if err != nil {
		return nil, err
	}
	promotions, err := NewPromotionRepository(provider)
	if err != nil {
		return nil, err
	}

	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:   provider,
		carts:      carts,
		orders:     orders,
		payments:   payments,
		intents:    intents,
		products:   products,
		priceLists: priceLists,
		taxRegions: taxRegions,
		promotions: promotions,
		health:     health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes fn inside a Firestore transaction. The context passed to
// fn carries the transaction; repository operations route through it.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.WithTransaction(txCtx, tx))
	})
}

// Carts returns the cart repository.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Payments returns the payment repository.
func (r *Registry) Payments() repositories.PaymentRepository { return r.payments }

// PaymentIntents returns the payment intent repository.
func (r *Registry) PaymentIntents() repositories.PaymentIntentRepository { return r.intents }

// Products returns the product repository.
func (r *Registry) Products() repositories.ProductRepository { return r.products }

// PriceLists returns the price list repository.
func (r *Registry) PriceLists() repositories.PriceListRepository { return r.priceLists }

// TaxRegions returns the tax region repository.
func (r *Registry) TaxRegions() repositories.TaxRegionRepository { return r.taxRegions }

// Promotions returns the promotion repository.
func (r *Registry) Promotions() repositories.PromotionRepository { return r.promotions }

// Health returns the readiness probe repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

var _ repositories.Registry = (*Registry)(nil)
