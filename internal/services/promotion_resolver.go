package services

import (
	"errors"
	"fmt"
	"time"

	domain "github.com/voxsar/commerce-api/internal/domain"
)

// ErrPromotionNotActive indicates the promotion is outside its window,
// disabled, or over its usage limit.
var ErrPromotionNotActive = errors.New("promotion resolver: promotion not active")

// ErrPromotionUnsupported indicates the promotion carries an unknown type.
var ErrPromotionUnsupported = errors.New("promotion resolver: unsupported promotion type")

type promotionResolver struct{}

// NewPromotionResolver constructs a PromotionResolver.
func NewPromotionResolver() PromotionResolver {
	return promotionResolver{}
}

// Resolve values the promotion against the cart's current subtotal and
// shipping selection. Percentage discounts round half-up; fixed discounts
// cap at the subtotal so totals never go negative.
func (promotionResolver) Resolve(promotion Promotion, cart Cart, now time.Time) (AppliedDiscount, error) {
	if !promotion.IsActive(now) {
		return AppliedDiscount{}, fmt.Errorf("%w: %s", ErrPromotionNotActive, promotion.ID)
	}

	subtotal := cart.Totals.Subtotal

	var amount int64
	switch promotion.Type {
	case domain.DiscountPercentage:
		amount = domain.RoundHalfUp(float64(subtotal) * float64(promotion.Value) / 100)
	case domain.DiscountFixedAmount:
		amount = promotion.Value
		if amount > subtotal {
			amount = subtotal
		}
	case domain.DiscountFreeShipping:
		if cart.ShippingMethod != nil {
			amount = cart.ShippingMethod.Price
		}
	case domain.DiscountBuyXGetY:
		// Valued at zero until the grant mechanics land.
		amount = 0
	default:
		return AppliedDiscount{}, fmt.Errorf("%w: %s", ErrPromotionUnsupported, promotion.Type)
	}
	if amount < 0 {
		amount = 0
	}

	return AppliedDiscount{
		PromotionID: promotion.ID,
		Code:        promotion.Code,
		Type:        promotion.Type,
		Value:       promotion.Value,
		Amount:      amount,
		AppliedAt:   now,
	}, nil
}
