package domain

import (
	"time"
)

// CartStatus describes the lifecycle state of a cart.
type CartStatus string

const (
	// CartStatusActive indicates the cart accepts mutations.
	CartStatusActive CartStatus = "ACTIVE"
	// CartStatusCompleted indicates the cart was converted into an order.
	CartStatusCompleted CartStatus = "COMPLETED"
	// CartStatusAbandoned indicates the cart was abandoned explicitly.
	CartStatusAbandoned CartStatus = "ABANDONED"
	// CartStatusExpired indicates the cart passed its expiry deadline.
	CartStatusExpired CartStatus = "EXPIRED"
)

// ProductSnapshot captures the catalog identity of a line item at add time.
// The copy decouples carts from later catalog edits.
type ProductSnapshot struct {
	Title        string
	VariantTitle string
	Thumbnail    string
	SKU          string
	TaxCode      string
}

// CartLineItem is one priced product entry inside a cart. Total, DiscountTotal
// and TaxTotal are derived during recalculation, never set independently.
type CartLineItem struct {
	ID            string
	ProductID     string
	VariantID     string
	Quantity      int64
	UnitPrice     int64
	Total         int64
	DiscountTotal int64
	TaxTotal      int64
	Snapshot      ProductSnapshot
	AddedAt       time.Time
}

// TaxLineSource identifies where a tax breakdown entry originated.
type TaxLineSource string

const (
	// TaxSourceDefault marks the region's default rate.
	TaxSourceDefault TaxLineSource = "default"
	// TaxSourceOverride marks a product or tax-code specific override.
	TaxSourceOverride TaxLineSource = "override"
	// TaxSourceParent marks a rate inherited from a parent region.
	TaxSourceParent TaxLineSource = "parent"
)

// TaxLine is one applied tax rate with its computed amount in minor units.
type TaxLine struct {
	Name   string
	Rate   float64
	Amount int64
	Source TaxLineSource
}

// DiscountType enumerates supported promotion mechanics.
type DiscountType string

const (
	// DiscountPercentage takes a percentage off the cart subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixedAmount takes a fixed amount off, capped at the subtotal.
	DiscountFixedAmount DiscountType = "fixed_amount"
	// DiscountFreeShipping offsets the shipping amount.
	DiscountFreeShipping DiscountType = "free_shipping"
	// DiscountBuyXGetY grants free units of a product; currently valued at zero.
	DiscountBuyXGetY DiscountType = "buy_x_get_y"
)

// AppliedDiscount records a promotion applied to a cart. A cart holds at
// most one entry per promotion id; re-applying replaces the entry.
type AppliedDiscount struct {
	ID          string
	PromotionID string
	Code        string
	Type        DiscountType
	Value       int64
	Amount      int64
	AppliedAt   time.Time
}

// ShippingMethod is the shipping option selected for a cart.
type ShippingMethod struct {
	ID               string
	ShippingOptionID string
	Name             string
	Price            int64
}

// PaymentSession links a cart to a provider-side payment intent.
type PaymentSession struct {
	ID              string
	ProviderID      string
	PaymentIntentID string
	Status          string
	CreatedAt       time.Time
}

// Address is a billing or shipping address attached to a cart or order.
type Address struct {
	FirstName   string
	LastName    string
	Line1       string
	Line2       string
	City        string
	Subdivision string
	PostalCode  string
	CountryCode string
	Phone       string
}

// CartTotals holds the derived monetary summary of a cart in minor units.
type CartTotals struct {
	Subtotal      int64
	TaxTotal      int64
	ShippingTotal int64
	DiscountTotal int64
	Total         int64
}

// Cart is the pricing aggregate: line items, applied discounts, selected
// shipping and payment, a recomputed tax breakdown, and derived totals.
// Version increases on every persisted write and backs optimistic
// concurrency.
type Cart struct {
	ID              string
	Status          CartStatus
	Currency        string
	CustomerID      string
	SalesChannelID  string
	RegionID        string
	Items           []CartLineItem
	Discounts       []AppliedDiscount
	ShippingMethod  *ShippingMethod
	PaymentSession  *PaymentSession
	BillingAddress  *Address
	ShippingAddress *Address
	TaxBreakdown    []TaxLine
	Totals          CartTotals
	OrderID         string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
	CompletedAt     *time.Time
}

// OrderStatus describes the lifecycle of an order record.
type OrderStatus string

const (
	// OrderStatusPending marks the shell persisted before payment confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCompleted marks a finalized, immutable order.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCanceled marks a shell voided after a failed confirmation.
	OrderStatusCanceled OrderStatus = "canceled"
)

// OrderLineItem is the immutable copy of a cart line at checkout time.
type OrderLineItem struct {
	ID            string
	ProductID     string
	VariantID     string
	Quantity      int64
	UnitPrice     int64
	Total         int64
	DiscountTotal int64
	TaxTotal      int64
	Snapshot      ProductSnapshot
}

// OrderTotals freezes the cart totals at checkout time.
type OrderTotals struct {
	Subtotal      int64
	TaxTotal      int64
	ShippingTotal int64
	DiscountTotal int64
	Total         int64
}

// Order is the immutable result of a successful checkout. The core never
// mutates a completed order; fulfillment systems own downstream state.
type Order struct {
	ID              string
	Number          string
	Status          OrderStatus
	CartID          string
	CustomerID      string
	Currency        string
	Items           []OrderLineItem
	Discounts       []AppliedDiscount
	ShippingMethod  *ShippingMethod
	BillingAddress  *Address
	ShippingAddress *Address
	TaxBreakdown    []TaxLine
	Totals          OrderTotals
	PaymentID       string
	Note            string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// PaymentStatus describes the lifecycle of a payment record.
type PaymentStatus string

const (
	// PaymentStatusPending marks a payment awaiting gateway confirmation.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCaptured marks a confirmed, captured payment.
	PaymentStatusCaptured PaymentStatus = "captured"
	// PaymentStatusFailed marks a payment the gateway declined.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusCanceled marks a payment voided before confirmation.
	PaymentStatusCanceled PaymentStatus = "canceled"
)

// Payment records the money movement backing an order.
type Payment struct {
	ID              string
	OrderID         string
	CartID          string
	ProviderID      string
	PaymentIntentID string
	Status          PaymentStatus
	Amount          int64
	Currency        string
	CreatedAt       time.Time
	CapturedAt      *time.Time
}

// PaymentIntentStatus mirrors the normalized gateway intent states.
type PaymentIntentStatus string

const (
	// IntentRequiresAction means the customer must complete an action first.
	IntentRequiresAction PaymentIntentStatus = "requires_action"
	// IntentProcessing means the gateway is confirming the intent.
	IntentProcessing PaymentIntentStatus = "processing"
	// IntentSucceeded means funds are secured.
	IntentSucceeded PaymentIntentStatus = "succeeded"
	// IntentCanceled means the intent was voided.
	IntentCanceled PaymentIntentStatus = "canceled"
)

// PaymentIntent is the locally tracked view of a gateway payment intent.
type PaymentIntent struct {
	ID           string
	ProviderID   string
	ProviderRef  string
	Status       PaymentIntentStatus
	Amount       int64
	Currency     string
	ClientSecret string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProductVariant is a purchasable variation of a product. BasePrice maps
// upper-case currency codes to minor-unit amounts.
type ProductVariant struct {
	ID        string
	SKU       string
	Title     string
	BasePrice map[string]int64
}

// Product is the catalog entry line items reference.
type Product struct {
	ID        string
	Title     string
	Thumbnail string
	TaxCode   string
	BasePrice map[string]int64
	Variants  []ProductVariant
	Active    bool
}

// Variant returns the variant with the given id, or nil.
func (p Product) Variant(variantID string) *ProductVariant {
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return &p.Variants[i]
		}
	}
	return nil
}

// PriceListStatus gates whether a price list participates in resolution.
type PriceListStatus string

const (
	// PriceListActive marks a usable price list.
	PriceListActive PriceListStatus = "active"
	// PriceListDraft marks a list excluded from resolution.
	PriceListDraft PriceListStatus = "draft"
)

// PriceListEntry is one priced row in a price list. Quantity bounds are
// inclusive; a zero bound means unbounded on that side.
type PriceListEntry struct {
	ProductID   string
	VariantID   string
	Currency    string
	Amount      int64
	MinQuantity int64
	MaxQuantity int64
}

// PriceList is a scheduled set of price overrides.
type PriceList struct {
	ID       string
	Name     string
	Status   PriceListStatus
	Entries  []PriceListEntry
	StartsAt *time.Time
	EndsAt   *time.Time
}

// IsActive reports whether the list participates in resolution at now.
func (pl PriceList) IsActive(now time.Time) bool {
	if pl.Status != PriceListActive {
		return false
	}
	if pl.StartsAt != nil && now.Before(*pl.StartsAt) {
		return false
	}
	if pl.EndsAt != nil && now.After(*pl.EndsAt) {
		return false
	}
	return true
}

// TaxRateOverride replaces or stacks on the default rate for matching items.
// Product-level targeting takes precedence over tax-code targeting.
type TaxRateOverride struct {
	Name       string
	Rate       float64
	Combinable bool
	ProductIDs []string
	TaxCodes   []string
}

// TaxRegion defines the tax rules for a country or subdivision. A region
// without its own default rate inherits the parent's.
type TaxRegion struct {
	ID              string
	CountryCode     string
	Subdivision     string
	ParentID        string
	DefaultRate     *float64
	DefaultRateName string
	Overrides       []TaxRateOverride
}

// PromotionStatus gates whether a promotion can be applied.
type PromotionStatus string

const (
	// PromotionActive marks an applicable promotion.
	PromotionActive PromotionStatus = "active"
	// PromotionDraft marks a promotion not yet published.
	PromotionDraft PromotionStatus = "draft"
	// PromotionDisabled marks a promotion switched off.
	PromotionDisabled PromotionStatus = "disabled"
)

// Promotion is a discount rule applied to carts by id or code.
type Promotion struct {
	ID         string
	Code       string
	Status     PromotionStatus
	Type       DiscountType
	Value      int64
	UsageLimit int64
	UsageCount int64
	StartsAt   *time.Time
	EndsAt     *time.Time
}

// IsActive reports whether the promotion can be applied at now.
func (p Promotion) IsActive(now time.Time) bool {
	if p.Status != PromotionActive {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	if p.UsageLimit > 0 && p.UsageCount >= p.UsageLimit {
		return false
	}
	return true
}
