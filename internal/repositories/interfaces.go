package repositories

import (
	"context"
	"time"

	domain "github.com/voxsar/commerce-api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	PaymentIntents() PaymentIntentRepository
	Products() ProductRepository
	PriceLists() PriceListRepository
	TaxRegions() TaxRegionRepository
	Promotions() PromotionRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns cart persistence. Update is a compare-and-swap on the
// stored version: a mismatch surfaces as a conflict error and the write is
// discarded.
type CartRepository interface {
	Insert(ctx context.Context, cart domain.Cart) error
	Update(ctx context.Context, cart domain.Cart, expectedVersion int64) (domain.Cart, error)
	FindByID(ctx context.Context, cartID string) (domain.Cart, error)
	ListExpired(ctx context.Context, filter ExpiredCartFilter) ([]domain.Cart, error)
}

// ExpiredCartFilter bounds the expiry sweep query.
type ExpiredCartFilter struct {
	Before time.Time
	Limit  int
}

// OrderRepository persists order snapshots. Orders transition pending →
// completed/canceled exactly once; completed orders are never updated.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByCartID(ctx context.Context, cartID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
}

// OrderListFilter is the typed query surface for order listings. StartAfter
// carries the cursor values of the last document on the previous page, in the
// same order as the query's sort keys.
type OrderListFilter struct {
	CustomerID   string
	Status       domain.OrderStatus
	CreatedAfter *time.Time
	StartAfter   []any
	Limit        int
}

// PaymentRepository stores payment records linked to orders.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
}

// PaymentIntentRepository tracks the local view of gateway payment intents.
type PaymentIntentRepository interface {
	Upsert(ctx context.Context, intent domain.PaymentIntent) error
	FindByID(ctx context.Context, intentID string) (domain.PaymentIntent, error)
	UpdateStatus(ctx context.Context, intentID string, status domain.PaymentIntentStatus, updatedAt time.Time) (domain.PaymentIntent, error)
}

// ProductRepository provides read-only catalog lookups for line item pricing.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
}

// PriceListRepository provides read-only access to price list definitions.
type PriceListRepository interface {
	FindByID(ctx context.Context, priceListID string) (domain.PriceList, error)
	ListActive(ctx context.Context, now time.Time) ([]domain.PriceList, error)
}

// TaxRegionRepository resolves tax regions for address countries.
type TaxRegionRepository interface {
	FindByID(ctx context.Context, regionID string) (domain.TaxRegion, error)
	FindByCountry(ctx context.Context, countryCode, subdivision string) (domain.TaxRegion, error)
}

// PromotionRepository provides read-plus-usage access to promotion records.
// Usage counters are the only promotion field the core mutates.
type PromotionRepository interface {
	FindByID(ctx context.Context, promotionID string) (domain.Promotion, error)
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	IncrementUsage(ctx context.Context, promotionID string) error
}

// HealthRepository reports persistence connectivity for readiness probes.
type HealthRepository interface {
	Ping(ctx context.Context) error
}
