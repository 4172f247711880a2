package domain

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testCart() *Cart {
	return NewCart("cart_01", "USD", testNow)
}

func TestNewCartDefaults(t *testing.T) {
	cart := testCart()

	if cart.Status != CartStatusActive {
		t.Fatalf("expected active status, got %s", cart.Status)
	}
	if got := cart.ExpiresAt; !got.Equal(testNow.Add(30 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", got)
	}
	if cart.Items == nil || cart.Discounts == nil {
		t.Fatal("expected initialised slices")
	}
}

func TestAddLineItemMergesVariantLines(t *testing.T) {
	cart := testCart()

	if err := cart.AddLineItem(CartLineItem{ID: "item_1", ProductID: "prod_1", VariantID: "var_1", Quantity: 2, UnitPrice: 1000}); err != nil {
		t.Fatalf("AddLineItem: %v", err)
	}
	if err := cart.AddLineItem(CartLineItem{ID: "item_2", ProductID: "prod_1", VariantID: "var_1", Quantity: 1, UnitPrice: 1100}); err != nil {
		t.Fatalf("AddLineItem: %v", err)
	}

	if len(cart.Items) != 1 {
		t.Fatalf("expected merged line, got %d lines", len(cart.Items))
	}
	line := cart.Items[0]
	if line.ID != "item_1" {
		t.Fatalf("expected original line id kept, got %s", line.ID)
	}
	if line.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", line.Quantity)
	}
	if line.UnitPrice != 1100 {
		t.Fatalf("expected refreshed unit price, got %d", line.UnitPrice)
	}
	if cart.Totals.Subtotal != 3300 {
		t.Fatalf("expected subtotal 3300, got %d", cart.Totals.Subtotal)
	}
}

func TestAddLineItemDifferentVariantsStaySeparate(t *testing.T) {
	cart := testCart()

	_ = cart.AddLineItem(CartLineItem{ID: "item_1", ProductID: "prod_1", VariantID: "var_1", Quantity: 1, UnitPrice: 1000})
	_ = cart.AddLineItem(CartLineItem{ID: "item_2", ProductID: "prod_1", VariantID: "var_2", Quantity: 1, UnitPrice: 1200})

	if len(cart.Items) != 2 {
		t.Fatalf("expected two lines, got %d", len(cart.Items))
	}
}

func TestAddLineItemRejectsNonPositiveQuantity(t *testing.T) {
	cart := testCart()

	err := cart.AddLineItem(CartLineItem{ID: "item_1", ProductID: "prod_1", Quantity: 0, UnitPrice: 500})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestUpdateLineItemUnknownID(t *testing.T) {
	cart := testCart()
	_ = cart.AddLineItem(CartLineItem{ID: "item_1", ProductID: "prod_1", Quantity: 1, UnitPrice: 500})

	if err := cart.UpdateLineItem("missing", 2, 500); !errors.Is(err, ErrLineItemNotFound) {
		t.Fatalf("expected ErrLineItemNotFound, got %v", err)
	}
}

func TestTerminalStatusesRejectMutations(t *testing.T) {
	for _, status := range []CartStatus{CartStatusCompleted, CartStatusAbandoned, CartStatusExpired} {
		cart := testCart()
		cart.Status = status

		if err := cart.AddLineItem(CartLineItem{ID: "i", ProductID: "p", Quantity: 1, UnitPrice: 100}); !errors.Is(err, ErrCartNotActive) {
			t.Fatalf("%s: AddLineItem expected ErrCartNotActive, got %v", status, err)
		}
		if err := cart.ApplyDiscount(AppliedDiscount{ID: "d"}); !errors.Is(err, ErrCartNotActive) {
			t.Fatalf("%s: ApplyDiscount expected ErrCartNotActive, got %v", status, err)
		}
		if err := cart.SetShippingMethod(ShippingMethod{ID: "s"}); !errors.Is(err, ErrCartNotActive) {
			t.Fatalf("%s: SetShippingMethod expected ErrCartNotActive, got %v", status, err)
		}
		if err := cart.MarkCompleted("ord_1", testNow); !errors.Is(err, ErrCartNotActive) {
			t.Fatalf("%s: MarkCompleted expected ErrCartNotActive, got %v", status, err)
		}
		if err := cart.MarkAbandoned(); !errors.Is(err, ErrCartNotActive) {
			t.Fatalf("%s: MarkAbandoned expected ErrCartNotActive, got %v", status, err)
		}
	}
}

func TestApplyDiscountReplacesSamePromotion(t *testing.T) {
	cart := testCart()
	_ = cart.AddLineItem(CartLineItem{ID: "item_1", ProductID: "prod_1", Quantity: 1, UnitPrice: 10000})

	first := AppliedDiscount{ID: "disc_1", PromotionID: "promo_1", Type: DiscountFixedAmount, Value: 500, Amount: 500}
	if err := cart.ApplyDiscount(first); err != nil {
		t.Fatalf("ApplyDiscount: %v", err)
	}
	second := AppliedDiscount{ID: "disc_2", PromotionID: "promo_1", Type: DiscountFixedAmount, Value: 700, Amount: 700}
	if err := cart.ApplyDiscount(second); err != nil {
		t.Fatalf("ApplyDiscount: %v", err)
	}

	if len(cart.Discounts) != 1 {
		t.Fatalf("expected one discount, got %d", len(cart.Discounts))
	}
	if cart.Discounts[0].ID != "disc_1" {
		t.Fatalf("expected original discount id kept, got %s", cart.Discounts[0].ID)
	}
	if cart.Discounts[0].Amount != 700 {
		t.Fatalf("expected refreshed amount 700, got %d", cart.Discounts[0].Amount)
	}
	if cart.Totals.DiscountTotal != 700 {
		t.Fatalf("expected discount total 700, got %d", cart.Totals.DiscountTotal)
	}
}

func TestRemoveDiscountUnknownID(t *testing.T) {
	cart := testCart()
	if err := cart.RemoveDiscount("missing"); !errors.Is(err, ErrDiscountNotFound) {
		t.Fatalf("expected ErrDiscountNotFound, got %v", err)
	}
}

func TestRecalculateTotalsInvariant(t *testing.T) {
	cart := testCart()
	_ = cart.AddLineItem(CartLineItem{ID: "item_1", ProductID: "prod_1", Quantity: 2, UnitPrice: 2500})
	_ = cart.SetShippingMethod(ShippingMethod{ID: "ship_1", Price: 800})
	_ = cart.ApplyDiscount(AppliedDiscount{ID: "disc_1", PromotionID: "promo_1", Type: DiscountFixedAmount, Amount: 1000})
	_ = cart.SetTaxBreakdown([]TaxLine{{Name: "VAT", Rate: 0.08, Amount: 400, Source: TaxSourceDefault}}, map[string]int64{"item_1": 400})

	totals := cart.Totals
	if totals.Subtotal != 5000 {
		t.Fatalf("unexpected subtotal %d", totals.Subtotal)
	}
	want := totals.Subtotal + totals.TaxTotal + totals.ShippingTotal - totals.DiscountTotal
	if totals.Total != want {
		t.Fatalf("total invariant violated: got %d want %d", totals.Total, want)
	}
}

func TestRecalculateTotalsClampsAtZero(t *testing.T) {
	cart := testCart()
	_ = cart.AddLineItem(CartLineItem{ID: "item_1", ProductID: "prod_1", Quantity: 1, UnitPrice: 500})
	_ = cart.ApplyDiscount(AppliedDiscount{ID: "disc_1", PromotionID: "promo_1", Type: DiscountFixedAmount, Amount: 900})

	if cart.Totals.Total != 0 {
		t.Fatalf("expected clamped total 0, got %d", cart.Totals.Total)
	}
}

func TestRecalculateTotalsIdempotent(t *testing.T) {
	cart := testCart()
	_ = cart.AddLineItem(CartLineItem{ID: "item_1", ProductID: "prod_1", Quantity: 3, UnitPrice: 1999})
	_ = cart.AddLineItem(CartLineItem{ID: "item_2", ProductID: "prod_2", Quantity: 1, UnitPrice: 450})
	_ = cart.SetShippingMethod(ShippingMethod{ID: "ship_1", Price: 700})
	_ = cart.ApplyDiscount(AppliedDiscount{ID: "disc_1", PromotionID: "promo_1", Type: DiscountPercentage, Value: 10, Amount: 645})

	first := cart.Totals
	firstItems := append([]CartLineItem(nil), cart.Items...)
	cart.RecalculateTotals()

	if cart.Totals != first {
		t.Fatalf("totals drifted: %+v vs %+v", cart.Totals, first)
	}
	for i := range cart.Items {
		if cart.Items[i] != firstItems[i] {
			t.Fatalf("item %d drifted: %+v vs %+v", i, cart.Items[i], firstItems[i])
		}
	}
}

func TestFreeShippingDiscountTracksShippingPrice(t *testing.T) {
	cart := testCart()
	_ = cart.AddLineItem(CartLineItem{ID: "item_1", ProductID: "prod_1", Quantity: 1, UnitPrice: 4000})
	_ = cart.SetShippingMethod(ShippingMethod{ID: "ship_1", Price: 500})
	_ = cart.ApplyDiscount(AppliedDiscount{ID: "disc_1", PromotionID: "promo_1", Type: DiscountFreeShipping, Amount: 500})

	if cart.Totals.ShippingTotal != 500 {
		t.Fatalf("shipping total should remain, got %d", cart.Totals.ShippingTotal)
	}
	if cart.Totals.DiscountTotal != 500 {
		t.Fatalf("expected discount total 500, got %d", cart.Totals.DiscountTotal)
	}
	if cart.Totals.Total != 4000 {
		t.Fatalf("expected total 4000, got %d", cart.Totals.Total)
	}

	// Switching to a pricier method refreshes the free shipping amount.
	_ = cart.SetShippingMethod(ShippingMethod{ID: "ship_2", Price: 900})
	if cart.Discounts[0].Amount != 900 {
		t.Fatalf("expected refreshed free shipping amount 900, got %d", cart.Discounts[0].Amount)
	}
	if cart.Totals.Total != 4000 {
		t.Fatalf("expected total unchanged at 4000, got %d", cart.Totals.Total)
	}

	// Free shipping never drives per-item discount allocation.
	if cart.Items[0].DiscountTotal != 0 {
		t.Fatalf("expected no item discount, got %d", cart.Items[0].DiscountTotal)
	}
}

func TestAllocateItemDiscountsLargestRemainder(t *testing.T) {
	cart := testCart()
	_ = cart.AddLineItem(CartLineItem{ID: "item_1", ProductID: "prod_1", Quantity: 1, UnitPrice: 3333})
	_ = cart.AddLineItem(CartLineItem{ID: "item_2", ProductID: "prod_2", Quantity: 1, UnitPrice: 3333})
	_ = cart.AddLineItem(CartLineItem{ID: "item_3", ProductID: "prod_3", Quantity: 1, UnitPrice: 3334})
	_ = cart.ApplyDiscount(AppliedDiscount{ID: "disc_1", PromotionID: "promo_1", Type: DiscountFixedAmount, Amount: 1000})

	var allocated int64
	for _, item := range cart.Items {
		allocated += item.DiscountTotal
	}
	if allocated != 1000 {
		t.Fatalf("expected allocations to sum to 1000, got %d", allocated)
	}
}

func TestIsExpired(t *testing.T) {
	cart := testCart()
	if cart.IsExpired(testNow) {
		t.Fatal("fresh cart should not be expired")
	}
	if !cart.IsExpired(cart.ExpiresAt.Add(time.Second)) {
		t.Fatal("cart past its deadline should be expired")
	}
}

func TestMarkCompletedRecordsOrder(t *testing.T) {
	cart := testCart()
	if err := cart.MarkCompleted("ord_9", testNow); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if cart.Status != CartStatusCompleted {
		t.Fatalf("expected completed status, got %s", cart.Status)
	}
	if cart.OrderID != "ord_9" {
		t.Fatalf("expected order id recorded, got %s", cart.OrderID)
	}
	if cart.CompletedAt == nil || !cart.CompletedAt.Equal(testNow) {
		t.Fatalf("expected completion time recorded, got %v", cart.CompletedAt)
	}
}

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{0, 0},
		{2.4, 2},
		{2.5, 3},
		{2.6, 3},
		{-2.5, -3},
		{-2.4, -2},
	}
	for _, tc := range cases {
		if got := RoundHalfUp(tc.in); got != tc.want {
			t.Fatalf("RoundHalfUp(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestPromotionIsActive(t *testing.T) {
	start := testNow.Add(-time.Hour)
	end := testNow.Add(time.Hour)
	promo := Promotion{Status: PromotionActive, StartsAt: &start, EndsAt: &end, UsageLimit: 2, UsageCount: 1}

	if !promo.IsActive(testNow) {
		t.Fatal("expected promotion active")
	}
	promo.UsageCount = 2
	if promo.IsActive(testNow) {
		t.Fatal("expected usage-limited promotion inactive")
	}
	promo.UsageCount = 0
	if promo.IsActive(end.Add(time.Minute)) {
		t.Fatal("expected ended promotion inactive")
	}
	promo.Status = PromotionDisabled
	if promo.IsActive(testNow) {
		t.Fatal("expected disabled promotion inactive")
	}
}

func TestPriceListIsActive(t *testing.T) {
	start := testNow.Add(-time.Hour)
	list := PriceList{Status: PriceListActive, StartsAt: &start}

	if !list.IsActive(testNow) {
		t.Fatal("expected list active")
	}
	list.Status = PriceListDraft
	if list.IsActive(testNow) {
		t.Fatal("expected draft list inactive")
	}
}
