package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voxsar/commerce-api/internal/repositories"
)

// ErrPriceNotFound indicates no price exists for the requested currency.
// There is no currency conversion and no zero-price fallback: an unpriced
// currency is a hard error.
var ErrPriceNotFound = errors.New("price resolver: price not found")

// ErrPriceInvalidInput indicates the caller supplied invalid pricing input.
var ErrPriceInvalidInput = errors.New("price resolver: invalid input")

var errPriceClockRequired = errors.New("price resolver: clock is required")

// PriceResolverDeps wires the price list lookup used during resolution.
type PriceResolverDeps struct {
	PriceLists repositories.PriceListRepository
	Clock      func() time.Time
}

type priceResolver struct {
	priceLists repositories.PriceListRepository
	now        func() time.Time
}

// NewPriceResolver constructs a PriceResolver enforcing dependency validation.
func NewPriceResolver(deps PriceResolverDeps) (PriceResolver, error) {
	if deps.Clock == nil {
		return nil, errPriceClockRequired
	}
	return &priceResolver{
		priceLists: deps.PriceLists,
		now:        func() time.Time { return deps.Clock().UTC() },
	}, nil
}

// ResolvePrice returns the unit price for the variant in minor units. An
// active price list entry matching variant (or product when the entry is
// variant-agnostic), currency and quantity tier wins; otherwise the catalog
// base price applies.
func (r *priceResolver) ResolvePrice(ctx context.Context, cmd ResolvePriceCommand) (int64, error) {
	if r == nil {
		return 0, ErrPriceInvalidInput
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		return 0, fmt.Errorf("%w: currency is required", ErrPriceInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity must be greater than zero", ErrPriceInvalidInput)
	}

	if listID := strings.TrimSpace(cmd.PriceListID); listID != "" && r.priceLists != nil {
		list, err := r.priceLists.FindByID(ctx, listID)
		if err != nil {
			if !isRepoNotFound(err) {
				return 0, fmt.Errorf("price resolver: load price list: %w", err)
			}
		} else if list.IsActive(r.now()) {
			if amount, ok := matchPriceListEntry(list, cmd, currency); ok {
				return amount, nil
			}
		}
	}

	return basePrice(cmd.Product, cmd.VariantID, currency)
}

func matchPriceListEntry(list PriceList, cmd ResolvePriceCommand, currency string) (int64, bool) {
	variantID := strings.TrimSpace(cmd.VariantID)
	for _, entry := range list.Entries {
		if !strings.EqualFold(entry.Currency, currency) {
			continue
		}
		if entry.VariantID != "" {
			if !strings.EqualFold(entry.VariantID, variantID) {
				continue
			}
		} else if !strings.EqualFold(entry.ProductID, cmd.Product.ID) {
			continue
		}
		if entry.MinQuantity > 0 && cmd.Quantity < entry.MinQuantity {
			continue
		}
		if entry.MaxQuantity > 0 && cmd.Quantity > entry.MaxQuantity {
			continue
		}
		return entry.Amount, true
	}
	return 0, false
}

func basePrice(product Product, variantID, currency string) (int64, error) {
	if id := strings.TrimSpace(variantID); id != "" {
		if variant := product.Variant(id); variant != nil {
			if amount, ok := variant.BasePrice[currency]; ok {
				return amount, nil
			}
			return 0, fmt.Errorf("%w: variant %s has no %s price", ErrPriceNotFound, id, currency)
		}
	}
	if amount, ok := product.BasePrice[currency]; ok {
		return amount, nil
	}
	return 0, fmt.Errorf("%w: product %s has no %s price", ErrPriceNotFound, product.ID, currency)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
