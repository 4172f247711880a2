package domain

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrCartNotActive is returned by every cart mutation once the cart has
// reached a terminal status. COMPLETED, ABANDONED and EXPIRED are all
// terminal; no transitions leave them.
var ErrCartNotActive = errors.New("cart is not active")

// ErrLineItemNotFound is returned when a referenced line item does not exist.
var ErrLineItemNotFound = errors.New("line item not found")

// ErrDiscountNotFound is returned when a referenced discount does not exist.
var ErrDiscountNotFound = errors.New("discount not found")

// ErrInvalidQuantity is returned for non-positive line item quantities.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// DefaultCartTTL is how long a cart stays usable without an explicit expiry.
const DefaultCartTTL = 30 * 24 * time.Hour

// RoundHalfUp rounds a fractional minor-unit amount to the nearest integer,
// ties away from zero. Tax and percentage discounts round per line with
// this rule so cent-level results are reproducible.
func RoundHalfUp(v float64) int64 {
	if v >= 0 {
		return int64(math.Floor(v + 0.5))
	}
	return int64(math.Ceil(v - 0.5))
}

// NewCart constructs an active cart with the default expiry window.
func NewCart(id, currency string, now time.Time) *Cart {
	return &Cart{
		ID:        id,
		Status:    CartStatusActive,
		Currency:  currency,
		Items:     []CartLineItem{},
		Discounts: []AppliedDiscount{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(DefaultCartTTL),
	}
}

func (c *Cart) ensureActive() error {
	if c.Status != CartStatusActive {
		return ErrCartNotActive
	}
	return nil
}

// IsExpired reports whether the cart's expiry deadline has passed. It is a
// pure function of now; callers transition expired carts via MarkExpired.
func (c *Cart) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// FindItem returns the index of the line item with the given id, or -1.
func (c *Cart) FindItem(itemID string) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// FindVariantItem returns the index of the line item matching the product
// and variant pair, or -1. Repeated adds merge into one line.
func (c *Cart) FindVariantItem(productID, variantID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].VariantID == variantID {
			return i
		}
	}
	return -1
}

// AddLineItem appends a new line or merges quantity into an existing line
// for the same product/variant pair. A merged line keeps the freshly
// resolved unit price. Concludes by recomputing totals.
func (c *Cart) AddLineItem(item CartLineItem) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if idx := c.FindVariantItem(item.ProductID, item.VariantID); idx >= 0 {
		c.Items[idx].Quantity += item.Quantity
		c.Items[idx].UnitPrice = item.UnitPrice
	} else {
		c.Items = append(c.Items, item)
	}
	c.RecalculateTotals()
	return nil
}

// UpdateLineItem replaces the quantity and unit price of an existing line.
// Zero and negative quantities are rejected; the service routes zero to
// removal before calling here.
func (c *Cart) UpdateLineItem(itemID string, quantity, unitPrice int64) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	idx := c.FindItem(itemID)
	if idx < 0 {
		return ErrLineItemNotFound
	}
	c.Items[idx].Quantity = quantity
	c.Items[idx].UnitPrice = unitPrice
	c.RecalculateTotals()
	return nil
}

// RemoveLineItem deletes a line from the cart.
func (c *Cart) RemoveLineItem(itemID string) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	idx := c.FindItem(itemID)
	if idx < 0 {
		return ErrLineItemNotFound
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.RecalculateTotals()
	return nil
}

// ApplyDiscount records an applied promotion. A discount for the same
// promotion id replaces the existing entry instead of stacking.
func (c *Cart) ApplyDiscount(d AppliedDiscount) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	replaced := false
	for i := range c.Discounts {
		if c.Discounts[i].PromotionID == d.PromotionID {
			d.ID = c.Discounts[i].ID
			c.Discounts[i] = d
			replaced = true
			break
		}
	}
	if !replaced {
		c.Discounts = append(c.Discounts, d)
	}
	c.RecalculateTotals()
	return nil
}

// RemoveDiscount deletes an applied discount by its id.
func (c *Cart) RemoveDiscount(discountID string) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	for i := range c.Discounts {
		if c.Discounts[i].ID == discountID {
			c.Discounts = append(c.Discounts[:i], c.Discounts[i+1:]...)
			c.RecalculateTotals()
			return nil
		}
	}
	return ErrDiscountNotFound
}

// SetShippingMethod selects the shipping option, replacing any previous one.
func (c *Cart) SetShippingMethod(m ShippingMethod) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.ShippingMethod = &m
	c.RecalculateTotals()
	return nil
}

// SetPaymentSession attaches the payment session, replacing any previous one.
func (c *Cart) SetPaymentSession(s PaymentSession) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.PaymentSession = &s
	return nil
}

// SetAddresses updates billing and/or shipping addresses. Nil arguments
// leave the existing value untouched.
func (c *Cart) SetAddresses(billing, shipping *Address) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	if billing != nil {
		b := *billing
		c.BillingAddress = &b
	}
	if shipping != nil {
		s := *shipping
		c.ShippingAddress = &s
	}
	return nil
}

// SetTaxBreakdown replaces the cart tax breakdown and per-item attribution,
// then recomputes totals. perItem maps line item ids to attributed tax.
func (c *Cart) SetTaxBreakdown(lines []TaxLine, perItem map[string]int64) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.TaxBreakdown = lines
	for i := range c.Items {
		c.Items[i].TaxTotal = perItem[c.Items[i].ID]
	}
	c.RecalculateTotals()
	return nil
}

// MarkCompleted transitions the cart into its terminal COMPLETED state and
// records the resulting order.
func (c *Cart) MarkCompleted(orderID string, now time.Time) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.Status = CartStatusCompleted
	c.OrderID = orderID
	t := now
	c.CompletedAt = &t
	return nil
}

// MarkAbandoned transitions the cart into its terminal ABANDONED state.
func (c *Cart) MarkAbandoned() error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.Status = CartStatusAbandoned
	return nil
}

// MarkExpired transitions the cart into its terminal EXPIRED state.
func (c *Cart) MarkExpired() error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.Status = CartStatusExpired
	return nil
}

// RecalculateTotals recomputes every derived figure from the cart's current
// state: line totals, the cart subtotal, the discount total (free-shipping
// entries track the currently selected shipping price), per-item discount
// allocation, and the grand total. Idempotent: running it twice in a row
// yields identical results.
func (c *Cart) RecalculateTotals() {
	var subtotal int64
	for i := range c.Items {
		c.Items[i].Total = c.Items[i].UnitPrice * c.Items[i].Quantity
		subtotal += c.Items[i].Total
	}

	var tax int64
	for _, tl := range c.TaxBreakdown {
		tax += tl.Amount
	}

	var shipping int64
	if c.ShippingMethod != nil {
		shipping = c.ShippingMethod.Price
	}

	var discount, itemDiscount int64
	for i := range c.Discounts {
		if c.Discounts[i].Type == DiscountFreeShipping {
			c.Discounts[i].Amount = shipping
		} else {
			itemDiscount += c.Discounts[i].Amount
		}
		discount += c.Discounts[i].Amount
	}

	c.allocateItemDiscounts(itemDiscount, subtotal)

	total := subtotal + tax + shipping - discount
	if total < 0 {
		total = 0
	}

	c.Totals = CartTotals{
		Subtotal:      subtotal,
		TaxTotal:      tax,
		ShippingTotal: shipping,
		DiscountTotal: discount,
		Total:         total,
	}
}

// allocateItemDiscounts spreads the item-level discount total across lines
// proportionally to their totals, assigning leftover cents by largest
// remainder so the per-item figures always sum to the cart-level amount.
func (c *Cart) allocateItemDiscounts(amount, subtotal int64) {
	if len(c.Items) == 0 {
		return
	}
	if amount <= 0 || subtotal <= 0 {
		for i := range c.Items {
			c.Items[i].DiscountTotal = 0
		}
		return
	}
	if amount > subtotal {
		amount = subtotal
	}

	type share struct {
		index     int
		remainder float64
	}
	shares := make([]share, len(c.Items))
	var allocated int64
	for i := range c.Items {
		exact := float64(amount) * float64(c.Items[i].Total) / float64(subtotal)
		base := int64(math.Floor(exact))
		c.Items[i].DiscountTotal = base
		allocated += base
		shares[i] = share{index: i, remainder: exact - float64(base)}
	}
	sort.SliceStable(shares, func(a, b int) bool {
		return shares[a].remainder > shares[b].remainder
	})
	for i := int64(0); i < amount-allocated; i++ {
		c.Items[shares[i%int64(len(shares))].index].DiscountTotal++
	}
}
