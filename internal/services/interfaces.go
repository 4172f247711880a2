package services

import (
	"context"
	"time"

	domain "github.com/voxsar/commerce-api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart            = domain.Cart
	CartStatus      = domain.CartStatus
	CartLineItem    = domain.CartLineItem
	CartTotals      = domain.CartTotals
	AppliedDiscount = domain.AppliedDiscount
	DiscountType    = domain.DiscountType
	ShippingMethod  = domain.ShippingMethod
	PaymentSession  = domain.PaymentSession
	Address         = domain.Address
	TaxLine         = domain.TaxLine
	TaxRegion       = domain.TaxRegion
	PriceList       = domain.PriceList
	Promotion       = domain.Promotion
	Product         = domain.Product
	ProductVariant  = domain.ProductVariant
	ProductSnapshot = domain.ProductSnapshot
	Order           = domain.Order
	OrderTotals     = domain.OrderTotals
	OrderLineItem   = domain.OrderLineItem
	Payment         = domain.Payment
	PaymentIntent   = domain.PaymentIntent
)

// CartService orchestrates cart lifecycle operations against persistence and
// the price, tax and promotion resolvers.
type CartService interface {
	CreateCart(ctx context.Context, cmd CreateCartCommand) (Cart, error)
	GetCart(ctx context.Context, cartID string) (Cart, error)
	AddLineItem(ctx context.Context, cmd AddLineItemCommand) (Cart, error)
	UpdateLineItem(ctx context.Context, cmd UpdateLineItemCommand) (Cart, error)
	RemoveLineItem(ctx context.Context, cmd RemoveLineItemCommand) (Cart, error)
	ApplyDiscount(ctx context.Context, cmd ApplyDiscountCommand) (Cart, error)
	RemoveDiscount(ctx context.Context, cmd RemoveDiscountCommand) (Cart, error)
	UpdateAddresses(ctx context.Context, cmd UpdateAddressesCommand) (Cart, error)
	SetShippingMethod(ctx context.Context, cmd SetShippingMethodCommand) (Cart, error)
	SetPaymentSession(ctx context.Context, cmd SetPaymentSessionCommand) (Cart, error)
	ValidateCart(ctx context.Context, cartID string) (CartValidation, error)
	AbandonCart(ctx context.Context, cartID string) (Cart, error)
	CleanupExpiredCarts(ctx context.Context) (int, error)
}

// CheckoutService converts a checkout-ready cart into an immutable order,
// confirming payment with the external gateway along the way.
type CheckoutService interface {
	CreatePaymentSession(ctx context.Context, cmd CreatePaymentSessionCommand) (Cart, error)
	Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error)
}

// OrderService exposes read access to order snapshots.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListQuery) ([]Order, error)
}

// PriceResolver resolves a unit price for a variant, preferring active
// price-list entries over the catalog base price.
type PriceResolver interface {
	ResolvePrice(ctx context.Context, cmd ResolvePriceCommand) (int64, error)
}

// TaxCalculator computes the cart tax breakdown for a region, following the
// parent chain when the region carries no default rate of its own.
type TaxCalculator interface {
	Calculate(ctx context.Context, region TaxRegion, items []CartLineItem) (TaxResult, error)
}

// PromotionResolver values a promotion against the current cart state.
type PromotionResolver interface {
	Resolve(promotion Promotion, cart Cart, now time.Time) (AppliedDiscount, error)
}

// EventPublisher emits domain lifecycle events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload map[string]any) error
}

// CreateCartCommand carries inputs for cart creation.
type CreateCartCommand struct {
	Currency       string
	CustomerID     string
	SalesChannelID string
	RegionID       string
}

// AddLineItemCommand adds (or merges) a product variant into a cart.
type AddLineItemCommand struct {
	CartID      string
	ProductID   string
	VariantID   string
	Quantity    int64
	PriceListID string
}

// UpdateLineItemCommand changes the quantity of an existing line. A zero
// quantity removes the line; negatives are rejected.
type UpdateLineItemCommand struct {
	CartID   string
	ItemID   string
	Quantity int64
}

// RemoveLineItemCommand removes a line from the cart.
type RemoveLineItemCommand struct {
	CartID string
	ItemID string
}

// ApplyDiscountCommand applies a promotion by id or code.
type ApplyDiscountCommand struct {
	CartID      string
	PromotionID string
	Code        string
}

// RemoveDiscountCommand removes an applied discount.
type RemoveDiscountCommand struct {
	CartID     string
	DiscountID string
}

// UpdateAddressesCommand patches billing and/or shipping addresses.
type UpdateAddressesCommand struct {
	CartID          string
	BillingAddress  *Address
	ShippingAddress *Address
}

// SetShippingMethodCommand selects a shipping option for the cart.
type SetShippingMethodCommand struct {
	CartID           string
	ShippingOptionID string
	Name             string
	Price            int64
}

// SetPaymentSessionCommand attaches a gateway payment session to the cart.
type SetPaymentSessionCommand struct {
	CartID          string
	ProviderID      string
	PaymentIntentID string
}

// CartValidation reports checkout readiness without side effects.
type CartValidation struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

// CreatePaymentSessionCommand opens a gateway payment intent for the cart
// total and attaches the resulting session.
type CreatePaymentSessionCommand struct {
	CartID     string
	ProviderID string
}

// CheckoutCommand carries the final checkout inputs. Overrides are applied
// to the cart before validation.
type CheckoutCommand struct {
	CartID          string
	OrderNumber     string
	Note            string
	BillingAddress  *Address
	ShippingAddress *Address
	ShippingMethod  *SetShippingMethodCommand
}

// OrderListQuery is the typed filter for order listings. StartAfter resumes
// a listing after the page cursor decoded from the client's page token.
type OrderListQuery struct {
	CustomerID   string
	Status       domain.OrderStatus
	CreatedAfter *time.Time
	StartAfter   []any
	Limit        int
}

// ResolvePriceCommand identifies the variant, currency and quantity to price.
type ResolvePriceCommand struct {
	Product     Product
	VariantID   string
	Currency    string
	Quantity    int64
	PriceListID string
}

// TaxResult pairs the cart-level breakdown with per-line attribution.
type TaxResult struct {
	Lines   []TaxLine
	PerItem map[string]int64
	Total   int64
}
