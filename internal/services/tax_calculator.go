package services

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/voxsar/commerce-api/internal/domain"
	"github.com/voxsar/commerce-api/internal/repositories"
)

// taxCalculator derives the cart tax breakdown. The default rate applies to
// the whole subtotal; per-item overrides either stack on top (combinable) or
// replace the default portion attributed to that line (exclusive). All
// amounts round half-up per line, which keeps cent-level results stable
// regardless of item order.
type taxCalculator struct {
	regions repositories.TaxRegionRepository
}

// TaxCalculatorDeps wires the region lookup used for parent-rate inheritance.
type TaxCalculatorDeps struct {
	Regions repositories.TaxRegionRepository
}

// NewTaxCalculator constructs a TaxCalculator.
func NewTaxCalculator(deps TaxCalculatorDeps) (TaxCalculator, error) {
	return &taxCalculator{regions: deps.Regions}, nil
}

// Calculate produces the breakdown for the region over the given items.
func (c *taxCalculator) Calculate(ctx context.Context, region TaxRegion, items []CartLineItem) (TaxResult, error) {
	result := TaxResult{PerItem: make(map[string]int64, len(items))}
	if len(items) == 0 {
		return result, nil
	}

	defaultRate, defaultName, defaultSource, err := c.effectiveDefault(ctx, region)
	if err != nil {
		return TaxResult{}, err
	}

	var subtotal int64
	for i := range items {
		subtotal += items[i].UnitPrice * items[i].Quantity
	}

	defaultAmount := int64(0)
	if defaultRate > 0 {
		defaultAmount = domain.RoundHalfUp(float64(subtotal) * defaultRate)
	}

	var overrideLines []TaxLine
	for i := range items {
		lineTotal := items[i].UnitPrice * items[i].Quantity
		defaultShare := int64(0)
		if defaultRate > 0 {
			defaultShare = domain.RoundHalfUp(float64(lineTotal) * defaultRate)
		}

		override := matchOverride(region, items[i])
		if override == nil {
			result.PerItem[items[i].ID] = defaultShare
			continue
		}

		amount := domain.RoundHalfUp(float64(lineTotal) * override.Rate)
		overrideLines = append(overrideLines, TaxLine{
			Name:   override.Name,
			Rate:   override.Rate,
			Amount: amount,
			Source: domain.TaxSourceOverride,
		})

		if override.Combinable {
			result.PerItem[items[i].ID] = defaultShare + amount
			continue
		}

		// Exclusive: the default tax attributed to this line comes back out.
		defaultAmount -= defaultShare
		result.PerItem[items[i].ID] = amount
	}
	if defaultAmount < 0 {
		defaultAmount = 0
	}

	if defaultRate > 0 && defaultAmount > 0 {
		result.Lines = append(result.Lines, TaxLine{
			Name:   defaultName,
			Rate:   defaultRate,
			Amount: defaultAmount,
			Source: defaultSource,
		})
	}
	result.Lines = append(result.Lines, overrideLines...)

	for _, line := range result.Lines {
		result.Total += line.Amount
	}
	return result, nil
}

// effectiveDefault resolves the region's default rate, walking up to the
// parent region when the region has none of its own.
func (c *taxCalculator) effectiveDefault(ctx context.Context, region TaxRegion) (float64, string, domain.TaxLineSource, error) {
	if region.DefaultRate != nil {
		name := region.DefaultRateName
		if name == "" {
			name = "Tax"
		}
		return *region.DefaultRate, name, domain.TaxSourceDefault, nil
	}
	if region.ParentID == "" || c.regions == nil {
		return 0, "", domain.TaxSourceDefault, nil
	}
	parent, err := c.regions.FindByID(ctx, region.ParentID)
	if err != nil {
		if isRepoNotFound(err) {
			return 0, "", domain.TaxSourceDefault, nil
		}
		return 0, "", domain.TaxSourceDefault, fmt.Errorf("tax calculator: load parent region: %w", err)
	}
	if parent.DefaultRate == nil {
		return 0, "", domain.TaxSourceDefault, nil
	}
	name := parent.DefaultRateName
	if name == "" {
		name = "Tax"
	}
	return *parent.DefaultRate, name, domain.TaxSourceParent, nil
}

// matchOverride picks the override targeting the item. Product-level targets
// win over tax-code targets.
func matchOverride(region TaxRegion, item CartLineItem) *domain.TaxRateOverride {
	var codeMatch *domain.TaxRateOverride
	for i := range region.Overrides {
		ov := &region.Overrides[i]
		for _, pid := range ov.ProductIDs {
			if strings.EqualFold(pid, item.ProductID) {
				return ov
			}
		}
		if codeMatch == nil && item.Snapshot.TaxCode != "" {
			for _, code := range ov.TaxCodes {
				if strings.EqualFold(code, item.Snapshot.TaxCode) {
					codeMatch = ov
					break
				}
			}
		}
	}
	return codeMatch
}
