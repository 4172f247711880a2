package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/voxsar/commerce-api/internal/domain"
)

func testProduct() Product {
	return Product{
		ID:        "prod_1",
		Title:     "Sticker Pack",
		BasePrice: map[string]int64{"USD": 1200},
		Variants: []ProductVariant{
			{ID: "var_1", SKU: "STK-L", Title: "Large", BasePrice: map[string]int64{"USD": 1500, "EUR": 1400}},
		},
	}
}

func newTestPriceResolver(t *testing.T, lists *stubPriceListRepository) PriceResolver {
	t.Helper()
	resolver, err := NewPriceResolver(PriceResolverDeps{PriceLists: lists, Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewPriceResolver: %v", err)
	}
	return resolver
}

func TestResolvePriceUsesVariantBasePrice(t *testing.T) {
	resolver := newTestPriceResolver(t, nil)

	price, err := resolver.ResolvePrice(context.Background(), ResolvePriceCommand{
		Product:   testProduct(),
		VariantID: "var_1",
		Currency:  "usd",
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("ResolvePrice: %v", err)
	}
	if price != 1500 {
		t.Fatalf("expected variant base price 1500, got %d", price)
	}
}

func TestResolvePriceFallsBackToProductBasePrice(t *testing.T) {
	resolver := newTestPriceResolver(t, nil)

	price, err := resolver.ResolvePrice(context.Background(), ResolvePriceCommand{
		Product:  testProduct(),
		Currency: "USD",
		Quantity: 1,
	})
	if err != nil {
		t.Fatalf("ResolvePrice: %v", err)
	}
	if price != 1200 {
		t.Fatalf("expected product base price 1200, got %d", price)
	}
}

func TestResolvePriceActiveListEntryWins(t *testing.T) {
	lists := &stubPriceListRepository{
		findByIDFn: func(_ context.Context, priceListID string) (domain.PriceList, error) {
			if priceListID != "pl_1" {
				return domain.PriceList{}, errStubNotFound
			}
			return domain.PriceList{
				ID:     "pl_1",
				Status: domain.PriceListActive,
				Entries: []domain.PriceListEntry{
					{VariantID: "var_1", Currency: "USD", Amount: 999},
				},
			}, nil
		},
	}
	resolver := newTestPriceResolver(t, lists)

	price, err := resolver.ResolvePrice(context.Background(), ResolvePriceCommand{
		Product:     testProduct(),
		VariantID:   "var_1",
		Currency:    "USD",
		Quantity:    1,
		PriceListID: "pl_1",
	})
	if err != nil {
		t.Fatalf("ResolvePrice: %v", err)
	}
	if price != 999 {
		t.Fatalf("expected list price 999, got %d", price)
	}
}

func TestResolvePriceIgnoresInactiveList(t *testing.T) {
	ended := fixedNow.Add(-time.Hour)
	lists := &stubPriceListRepository{
		findByIDFn: func(context.Context, string) (domain.PriceList, error) {
			return domain.PriceList{
				ID:     "pl_1",
				Status: domain.PriceListActive,
				EndsAt: &ended,
				Entries: []domain.PriceListEntry{
					{VariantID: "var_1", Currency: "USD", Amount: 999},
				},
			}, nil
		},
	}
	resolver := newTestPriceResolver(t, lists)

	price, err := resolver.ResolvePrice(context.Background(), ResolvePriceCommand{
		Product:     testProduct(),
		VariantID:   "var_1",
		Currency:    "USD",
		Quantity:    1,
		PriceListID: "pl_1",
	})
	if err != nil {
		t.Fatalf("ResolvePrice: %v", err)
	}
	if price != 1500 {
		t.Fatalf("expected fallback to base price 1500, got %d", price)
	}
}

func TestResolvePriceVariantAgnosticEntryMatchesProduct(t *testing.T) {
	lists := &stubPriceListRepository{
		findByIDFn: func(context.Context, string) (domain.PriceList, error) {
			return domain.PriceList{
				ID:     "pl_1",
				Status: domain.PriceListActive,
				Entries: []domain.PriceListEntry{
					{ProductID: "prod_1", Currency: "USD", Amount: 1100},
				},
			}, nil
		},
	}
	resolver := newTestPriceResolver(t, lists)

	price, err := resolver.ResolvePrice(context.Background(), ResolvePriceCommand{
		Product:     testProduct(),
		VariantID:   "var_1",
		Currency:    "USD",
		Quantity:    1,
		PriceListID: "pl_1",
	})
	if err != nil {
		t.Fatalf("ResolvePrice: %v", err)
	}
	if price != 1100 {
		t.Fatalf("expected product-level list price 1100, got %d", price)
	}
}

func TestResolvePriceQuantityTiersInclusive(t *testing.T) {
	lists := &stubPriceListRepository{
		findByIDFn: func(context.Context, string) (domain.PriceList, error) {
			return domain.PriceList{
				ID:     "pl_1",
				Status: domain.PriceListActive,
				Entries: []domain.PriceListEntry{
					{VariantID: "var_1", Currency: "USD", Amount: 1400, MinQuantity: 1, MaxQuantity: 9},
					{VariantID: "var_1", Currency: "USD", Amount: 1200, MinQuantity: 10},
				},
			}, nil
		},
	}
	resolver := newTestPriceResolver(t, lists)

	cases := []struct {
		quantity int64
		want     int64
	}{
		{1, 1400},
		{9, 1400},
		{10, 1200},
		{500, 1200},
	}
	for _, tc := range cases {
		price, err := resolver.ResolvePrice(context.Background(), ResolvePriceCommand{
			Product:     testProduct(),
			VariantID:   "var_1",
			Currency:    "USD",
			Quantity:    tc.quantity,
			PriceListID: "pl_1",
		})
		if err != nil {
			t.Fatalf("quantity %d: %v", tc.quantity, err)
		}
		if price != tc.want {
			t.Fatalf("quantity %d: expected %d, got %d", tc.quantity, tc.want, price)
		}
	}
}

func TestResolvePriceMissingCurrency(t *testing.T) {
	resolver := newTestPriceResolver(t, nil)

	_, err := resolver.ResolvePrice(context.Background(), ResolvePriceCommand{
		Product:   testProduct(),
		VariantID: "var_1",
		Currency:  "JPY",
		Quantity:  1,
	})
	if !errors.Is(err, ErrPriceNotFound) {
		t.Fatalf("expected ErrPriceNotFound, got %v", err)
	}
}

func TestResolvePriceInvalidInput(t *testing.T) {
	resolver := newTestPriceResolver(t, nil)

	if _, err := resolver.ResolvePrice(context.Background(), ResolvePriceCommand{Product: testProduct(), Currency: "", Quantity: 1}); !errors.Is(err, ErrPriceInvalidInput) {
		t.Fatalf("expected ErrPriceInvalidInput for empty currency, got %v", err)
	}
	if _, err := resolver.ResolvePrice(context.Background(), ResolvePriceCommand{Product: testProduct(), Currency: "USD", Quantity: 0}); !errors.Is(err, ErrPriceInvalidInput) {
		t.Fatalf("expected ErrPriceInvalidInput for zero quantity, got %v", err)
	}
}

func TestResolvePriceUnknownListFallsBack(t *testing.T) {
	lists := &stubPriceListRepository{
		findByIDFn: func(context.Context, string) (domain.PriceList, error) {
			return domain.PriceList{}, errStubNotFound
		},
	}
	resolver := newTestPriceResolver(t, lists)

	price, err := resolver.ResolvePrice(context.Background(), ResolvePriceCommand{
		Product:     testProduct(),
		VariantID:   "var_1",
		Currency:    "USD",
		Quantity:    1,
		PriceListID: "pl_missing",
	})
	if err != nil {
		t.Fatalf("ResolvePrice: %v", err)
	}
	if price != 1500 {
		t.Fatalf("expected base price 1500, got %d", price)
	}
}
