package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/voxsar/commerce-api/internal/domain"
	"github.com/voxsar/commerce-api/internal/repositories"
)

func newTestCartService(t *testing.T, deps CartServiceDeps) CartService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = fixedClock
	}
	if deps.Products == nil {
		deps.Products = &stubProductRepository{
			findByIDFn: func(_ context.Context, productID string) (domain.Product, error) {
				if productID != "prod_1" {
					return domain.Product{}, errStubNotFound
				}
				return domain.Product{
					ID:        "prod_1",
					Title:     "Sticker Pack",
					TaxCode:   "standard",
					BasePrice: map[string]int64{"USD": 1200},
					Variants: []domain.ProductVariant{
						{ID: "var_1", SKU: "STK-L", Title: "Large", BasePrice: map[string]int64{"USD": 1500}},
					},
					Active: true,
				}, nil
			},
		}
	}
	if deps.Pricer == nil {
		pricer, err := NewPriceResolver(PriceResolverDeps{Clock: fixedClock})
		if err != nil {
			t.Fatalf("NewPriceResolver: %v", err)
		}
		deps.Pricer = pricer
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = sequenceIDs("id")
	}
	svc, err := NewCartService(deps)
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func activeCart(id string) domain.Cart {
	cart := domain.NewCart(id, "USD", fixedNow)
	cart.Version = 1
	return *cart
}

func TestCreateCart(t *testing.T) {
	repo := newMemoryCartRepository()
	svc := newTestCartService(t, CartServiceDeps{Carts: repo, CartTTL: 48 * time.Hour})

	cart, err := svc.CreateCart(context.Background(), CreateCartCommand{Currency: "usd", CustomerID: " cust_1 "})
	if err != nil {
		t.Fatalf("CreateCart: %v", err)
	}
	if cart.Currency != "USD" {
		t.Fatalf("expected upper-cased currency, got %s", cart.Currency)
	}
	if cart.CustomerID != "cust_1" {
		t.Fatalf("expected trimmed customer id, got %q", cart.CustomerID)
	}
	if cart.Status != domain.CartStatusActive {
		t.Fatalf("expected active cart, got %s", cart.Status)
	}
	if !cart.ExpiresAt.Equal(fixedNow.Add(48 * time.Hour)) {
		t.Fatalf("expected configured TTL expiry, got %s", cart.ExpiresAt)
	}
	if cart.Version != 1 {
		t.Fatalf("expected version 1, got %d", cart.Version)
	}
	if _, err := repo.FindByID(context.Background(), cart.ID); err != nil {
		t.Fatalf("cart not persisted: %v", err)
	}
}

func TestCreateCartRejectsBadCurrency(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: newMemoryCartRepository()})

	for _, currency := range []string{"", "US", "usdd", "U$D"} {
		if _, err := svc.CreateCart(context.Background(), CreateCartCommand{Currency: currency}); !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("%q: expected ErrCartInvalidInput, got %v", currency, err)
		}
	}
}

func TestGetCartNotFound(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: newMemoryCartRepository()})

	if _, err := svc.GetCart(context.Background(), "missing"); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}

func TestAddLineItemResolvesPriceAndPersists(t *testing.T) {
	repo := newMemoryCartRepository(activeCart("cart_1"))
	svc := newTestCartService(t, CartServiceDeps{Carts: repo})

	cart, err := svc.AddLineItem(context.Background(), AddLineItemCommand{
		CartID:    "cart_1",
		ProductID: "prod_1",
		VariantID: "var_1",
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("AddLineItem: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected one line, got %d", len(cart.Items))
	}
	item := cart.Items[0]
	if item.UnitPrice != 1500 {
		t.Fatalf("expected resolved variant price 1500, got %d", item.UnitPrice)
	}
	if item.Snapshot.Title != "Sticker Pack" || item.Snapshot.SKU != "STK-L" {
		t.Fatalf("unexpected snapshot %+v", item.Snapshot)
	}
	if cart.Totals.Subtotal != 3000 {
		t.Fatalf("expected subtotal 3000, got %d", cart.Totals.Subtotal)
	}
	if cart.Version != 2 {
		t.Fatalf("expected bumped version 2, got %d", cart.Version)
	}
}

func TestAddLineItemUnknownProduct(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: newMemoryCartRepository(activeCart("cart_1"))})

	_, err := svc.AddLineItem(context.Background(), AddLineItemCommand{CartID: "cart_1", ProductID: "prod_missing", Quantity: 1})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestAddLineItemUnknownVariant(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: newMemoryCartRepository(activeCart("cart_1"))})

	_, err := svc.AddLineItem(context.Background(), AddLineItemCommand{CartID: "cart_1", ProductID: "prod_1", VariantID: "var_missing", Quantity: 1})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestUpdateLineItemZeroQuantityRemoves(t *testing.T) {
	cart := activeCart("cart_1")
	cart.Items = []domain.CartLineItem{{ID: "item_1", ProductID: "prod_1", Quantity: 2, UnitPrice: 1500}}
	cart.RecalculateTotals()
	repo := newMemoryCartRepository(cart)
	svc := newTestCartService(t, CartServiceDeps{Carts: repo})

	updated, err := svc.UpdateLineItem(context.Background(), UpdateLineItemCommand{CartID: "cart_1", ItemID: "item_1", Quantity: 0})
	if err != nil {
		t.Fatalf("UpdateLineItem: %v", err)
	}
	if len(updated.Items) != 0 {
		t.Fatalf("expected line removed, got %d lines", len(updated.Items))
	}
	if updated.Totals.Subtotal != 0 {
		t.Fatalf("expected zero subtotal, got %d", updated.Totals.Subtotal)
	}
}

func TestUpdateLineItemNegativeQuantity(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: newMemoryCartRepository(activeCart("cart_1"))})

	if _, err := svc.UpdateLineItem(context.Background(), UpdateLineItemCommand{CartID: "cart_1", ItemID: "item_1", Quantity: -1}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestUpdateLineItemNotFound(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: newMemoryCartRepository(activeCart("cart_1"))})

	if _, err := svc.UpdateLineItem(context.Background(), UpdateLineItemCommand{CartID: "cart_1", ItemID: "missing", Quantity: 2}); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestApplyDiscountByCode(t *testing.T) {
	cart := activeCart("cart_1")
	cart.Items = []domain.CartLineItem{{ID: "item_1", ProductID: "prod_1", Quantity: 1, UnitPrice: 10000}}
	cart.RecalculateTotals()

	promotions := &stubPromotionRepository{
		findByCodeFn: func(_ context.Context, code string) (domain.Promotion, error) {
			if code != "TEN" {
				return domain.Promotion{}, errStubNotFound
			}
			return domain.Promotion{ID: "promo_1", Code: "TEN", Status: domain.PromotionActive, Type: domain.DiscountPercentage, Value: 10}, nil
		},
	}
	svc := newTestCartService(t, CartServiceDeps{
		Carts:      newMemoryCartRepository(cart),
		Promotions: promotions,
		Discounts:  NewPromotionResolver(),
	})

	updated, err := svc.ApplyDiscount(context.Background(), ApplyDiscountCommand{CartID: "cart_1", Code: "TEN"})
	if err != nil {
		t.Fatalf("ApplyDiscount: %v", err)
	}
	if len(updated.Discounts) != 1 {
		t.Fatalf("expected one discount, got %d", len(updated.Discounts))
	}
	if updated.Discounts[0].Amount != 1000 {
		t.Fatalf("expected 1000, got %d", updated.Discounts[0].Amount)
	}
	if updated.Totals.Total != 9000 {
		t.Fatalf("expected total 9000, got %d", updated.Totals.Total)
	}
}

func TestApplyDiscountUnknownPromotion(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{
		Carts:      newMemoryCartRepository(activeCart("cart_1")),
		Promotions: &stubPromotionRepository{},
		Discounts:  NewPromotionResolver(),
	})

	if _, err := svc.ApplyDiscount(context.Background(), ApplyDiscountCommand{CartID: "cart_1", PromotionID: "missing"}); !errors.Is(err, ErrPromotionInvalid) {
		t.Fatalf("expected ErrPromotionInvalid, got %v", err)
	}
}

func TestApplyDiscountInactivePromotion(t *testing.T) {
	promotions := &stubPromotionRepository{
		findByIDFn: func(context.Context, string) (domain.Promotion, error) {
			return domain.Promotion{ID: "promo_1", Status: domain.PromotionDisabled, Type: domain.DiscountPercentage, Value: 10}, nil
		},
	}
	svc := newTestCartService(t, CartServiceDeps{
		Carts:      newMemoryCartRepository(activeCart("cart_1")),
		Promotions: promotions,
		Discounts:  NewPromotionResolver(),
	})

	if _, err := svc.ApplyDiscount(context.Background(), ApplyDiscountCommand{CartID: "cart_1", PromotionID: "promo_1"}); !errors.Is(err, ErrPromotionInvalid) {
		t.Fatalf("expected ErrPromotionInvalid, got %v", err)
	}
}

func TestApplyDiscountRequiresIdentifier(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{
		Carts:      newMemoryCartRepository(activeCart("cart_1")),
		Promotions: &stubPromotionRepository{},
		Discounts:  NewPromotionResolver(),
	})

	if _, err := svc.ApplyDiscount(context.Background(), ApplyDiscountCommand{CartID: "cart_1"}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestRemoveDiscountUnknown(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: newMemoryCartRepository(activeCart("cart_1"))})

	if _, err := svc.RemoveDiscount(context.Background(), RemoveDiscountCommand{CartID: "cart_1", DiscountID: "missing"}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestUpdateAddressesResolvesTaxRegion(t *testing.T) {
	usRate := 0.08
	cart := activeCart("cart_1")
	cart.Items = []domain.CartLineItem{{ID: "item_1", ProductID: "prod_1", Quantity: 1, UnitPrice: 10000}}
	cart.RecalculateTotals()

	regions := &stubTaxRegionRepository{
		findByCountryFn: func(_ context.Context, countryCode, subdivision string) (domain.TaxRegion, error) {
			if countryCode != "US" {
				return domain.TaxRegion{}, errStubNotFound
			}
			return domain.TaxRegion{ID: "reg_us", CountryCode: "US", DefaultRate: &usRate}, nil
		},
		findByIDFn: func(_ context.Context, regionID string) (domain.TaxRegion, error) {
			return domain.TaxRegion{ID: "reg_us", CountryCode: "US", DefaultRate: &usRate}, nil
		},
	}
	taxes, err := NewTaxCalculator(TaxCalculatorDeps{Regions: regions})
	if err != nil {
		t.Fatalf("NewTaxCalculator: %v", err)
	}
	svc := newTestCartService(t, CartServiceDeps{
		Carts:      newMemoryCartRepository(cart),
		TaxRegions: regions,
		Taxes:      taxes,
	})

	updated, err := svc.UpdateAddresses(context.Background(), UpdateAddressesCommand{
		CartID:          "cart_1",
		ShippingAddress: &Address{Line1: "1 Main St", City: "Portland", CountryCode: "us"},
	})
	if err != nil {
		t.Fatalf("UpdateAddresses: %v", err)
	}
	if updated.RegionID != "reg_us" {
		t.Fatalf("expected region resolved, got %q", updated.RegionID)
	}
	if updated.Totals.TaxTotal != 800 {
		t.Fatalf("expected tax 800, got %d", updated.Totals.TaxTotal)
	}
	if updated.BillingAddress != nil {
		t.Fatal("billing address should stay unset")
	}
}

func TestUpdateAddressesRequiresOne(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: newMemoryCartRepository(activeCart("cart_1"))})

	if _, err := svc.UpdateAddresses(context.Background(), UpdateAddressesCommand{CartID: "cart_1"}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestUpdateAddressesUnknownCountryClearsRegion(t *testing.T) {
	cart := activeCart("cart_1")
	cart.RegionID = "reg_old"
	cart.TaxBreakdown = []domain.TaxLine{{Name: "Old Tax", Rate: 0.1, Amount: 100}}
	svc := newTestCartService(t, CartServiceDeps{
		Carts:      newMemoryCartRepository(cart),
		TaxRegions: &stubTaxRegionRepository{},
	})

	updated, err := svc.UpdateAddresses(context.Background(), UpdateAddressesCommand{
		CartID:          "cart_1",
		ShippingAddress: &Address{Line1: "1 Nowhere", CountryCode: "ZZ"},
	})
	if err != nil {
		t.Fatalf("UpdateAddresses: %v", err)
	}
	if updated.RegionID != "" {
		t.Fatalf("expected region cleared, got %q", updated.RegionID)
	}
	if updated.TaxBreakdown != nil {
		t.Fatalf("expected breakdown cleared, got %+v", updated.TaxBreakdown)
	}
}

func TestSetShippingMethod(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: newMemoryCartRepository(activeCart("cart_1"))})

	updated, err := svc.SetShippingMethod(context.Background(), SetShippingMethodCommand{
		CartID:           "cart_1",
		ShippingOptionID: "so_standard",
		Name:             "Standard",
		Price:            500,
	})
	if err != nil {
		t.Fatalf("SetShippingMethod: %v", err)
	}
	if updated.ShippingMethod == nil || updated.ShippingMethod.Price != 500 {
		t.Fatalf("unexpected shipping method %+v", updated.ShippingMethod)
	}
	if updated.Totals.ShippingTotal != 500 {
		t.Fatalf("expected shipping total 500, got %d", updated.Totals.ShippingTotal)
	}

	if _, err := svc.SetShippingMethod(context.Background(), SetShippingMethodCommand{CartID: "cart_1", ShippingOptionID: "so_standard", Price: -1}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput for negative price, got %v", err)
	}
}

func TestSetPaymentSession(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: newMemoryCartRepository(activeCart("cart_1"))})

	updated, err := svc.SetPaymentSession(context.Background(), SetPaymentSessionCommand{
		CartID:          "cart_1",
		ProviderID:      "stripe",
		PaymentIntentID: "pi_123",
	})
	if err != nil {
		t.Fatalf("SetPaymentSession: %v", err)
	}
	if updated.PaymentSession == nil || updated.PaymentSession.PaymentIntentID != "pi_123" {
		t.Fatalf("unexpected session %+v", updated.PaymentSession)
	}
	if updated.PaymentSession.Status != "pending" {
		t.Fatalf("expected pending session, got %s", updated.PaymentSession.Status)
	}

	if _, err := svc.SetPaymentSession(context.Background(), SetPaymentSessionCommand{CartID: "cart_1", ProviderID: "stripe"}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput without intent id, got %v", err)
	}
}

func TestValidateCartReportsMissingPieces(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: newMemoryCartRepository(activeCart("cart_1"))})

	validation, err := svc.ValidateCart(context.Background(), "cart_1")
	if err != nil {
		t.Fatalf("ValidateCart: %v", err)
	}
	if validation.IsValid {
		t.Fatal("empty cart should not be checkout ready")
	}
	if len(validation.Errors) == 0 {
		t.Fatal("expected validation errors")
	}
}

func TestValidateCartReady(t *testing.T) {
	cart := activeCart("cart_1")
	cart.Items = []domain.CartLineItem{{ID: "item_1", ProductID: "prod_1", Quantity: 1, UnitPrice: 1000}}
	cart.BillingAddress = &domain.Address{Line1: "1 Main St", CountryCode: "US"}
	cart.ShippingAddress = &domain.Address{Line1: "1 Main St", CountryCode: "US"}
	cart.ShippingMethod = &domain.ShippingMethod{ID: "ship_1", Price: 500}
	cart.PaymentSession = &domain.PaymentSession{ID: "pays_1", PaymentIntentID: "pi_1"}
	cart.RecalculateTotals()
	svc := newTestCartService(t, CartServiceDeps{Carts: newMemoryCartRepository(cart)})

	validation, err := svc.ValidateCart(context.Background(), "cart_1")
	if err != nil {
		t.Fatalf("ValidateCart: %v", err)
	}
	if !validation.IsValid {
		t.Fatalf("expected valid cart, errors: %v", validation.Errors)
	}
	if len(validation.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", validation.Warnings)
	}
}

func TestAbandonCart(t *testing.T) {
	repo := newMemoryCartRepository(activeCart("cart_1"))
	svc := newTestCartService(t, CartServiceDeps{Carts: repo})

	abandoned, err := svc.AbandonCart(context.Background(), "cart_1")
	if err != nil {
		t.Fatalf("AbandonCart: %v", err)
	}
	if abandoned.Status != domain.CartStatusAbandoned {
		t.Fatalf("expected abandoned, got %s", abandoned.Status)
	}

	// Terminal: a second abandon fails.
	if _, err := svc.AbandonCart(context.Background(), "cart_1"); !errors.Is(err, ErrCartNotActive) {
		t.Fatalf("expected ErrCartNotActive, got %v", err)
	}
}

func TestPersistConflictSurfacesAsCartConflict(t *testing.T) {
	repo := &stubCartRepository{
		findByIDFn: func(context.Context, string) (domain.Cart, error) {
			return activeCart("cart_1"), nil
		},
		updateFn: func(context.Context, domain.Cart, int64) (domain.Cart, error) {
			return domain.Cart{}, errStubConflict
		},
	}
	svc := newTestCartService(t, CartServiceDeps{Carts: repo})

	if _, err := svc.SetShippingMethod(context.Background(), SetShippingMethodCommand{CartID: "cart_1", ShippingOptionID: "so_1", Price: 100}); !errors.Is(err, ErrCartConflict) {
		t.Fatalf("expected ErrCartConflict, got %v", err)
	}
}

func TestCleanupExpiredCarts(t *testing.T) {
	expired := activeCart("cart_old")
	expired.ExpiresAt = fixedNow.Add(-time.Hour)
	fresh := activeCart("cart_new")

	repo := newMemoryCartRepository(expired, fresh)
	var published []string
	events := &stubEventPublisher{
		publishFn: func(_ context.Context, event string, payload map[string]any) error {
			published = append(published, event)
			return nil
		},
	}
	svc := newTestCartService(t, CartServiceDeps{Carts: repo, Events: events})

	count, err := svc.CleanupExpiredCarts(context.Background())
	if err != nil {
		t.Fatalf("CleanupExpiredCarts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one swept cart, got %d", count)
	}
	swept, err := repo.FindByID(context.Background(), "cart_old")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if swept.Status != domain.CartStatusExpired {
		t.Fatalf("expected expired status, got %s", swept.Status)
	}
	untouched, _ := repo.FindByID(context.Background(), "cart_new")
	if untouched.Status != domain.CartStatusActive {
		t.Fatalf("fresh cart should stay active, got %s", untouched.Status)
	}
	if len(published) != 1 || published[0] != "cart.expired" {
		t.Fatalf("expected one cart.expired event, got %v", published)
	}

	// Re-running finds nothing left to sweep.
	count, err = svc.CleanupExpiredCarts(context.Background())
	if err != nil {
		t.Fatalf("CleanupExpiredCarts: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no-op second sweep, got %d", count)
	}
}

func TestCleanupExpiredCartsSkipsConflicts(t *testing.T) {
	expired := activeCart("cart_old")
	expired.ExpiresAt = fixedNow.Add(-time.Hour)
	repo := &stubCartRepository{
		listExpiredFn: func(context.Context, repositories.ExpiredCartFilter) ([]domain.Cart, error) {
			return []domain.Cart{expired}, nil
		},
		updateFn: func(context.Context, domain.Cart, int64) (domain.Cart, error) {
			return domain.Cart{}, errStubConflict
		},
	}
	svc := newTestCartService(t, CartServiceDeps{Carts: repo})

	count, err := svc.CleanupExpiredCarts(context.Background())
	if err != nil {
		t.Fatalf("CleanupExpiredCarts: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected conflicting cart skipped, got %d", count)
	}
}
