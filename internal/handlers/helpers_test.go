package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/voxsar/commerce-api/internal/services"
)

type stubCartService struct {
	createCartFn        func(ctx context.Context, cmd services.CreateCartCommand) (services.Cart, error)
	getCartFn           func(ctx context.Context, cartID string) (services.Cart, error)
	addLineItemFn       func(ctx context.Context, cmd services.AddLineItemCommand) (services.Cart, error)
	updateLineItemFn    func(ctx context.Context, cmd services.UpdateLineItemCommand) (services.Cart, error)
	removeLineItemFn    func(ctx context.Context, cmd services.RemoveLineItemCommand) (services.Cart, error)
	applyDiscountFn     func(ctx context.Context, cmd services.ApplyDiscountCommand) (services.Cart, error)
	removeDiscountFn    func(ctx context.Context, cmd services.RemoveDiscountCommand) (services.Cart, error)
	updateAddressesFn   func(ctx context.Context, cmd services.UpdateAddressesCommand) (services.Cart, error)
	setShippingMethodFn func(ctx context.Context, cmd services.SetShippingMethodCommand) (services.Cart, error)
	setPaymentSessionFn func(ctx context.Context, cmd services.SetPaymentSessionCommand) (services.Cart, error)
	validateCartFn      func(ctx context.Context, cartID string) (services.CartValidation, error)
	abandonCartFn       func(ctx context.Context, cartID string) (services.Cart, error)
	cleanupExpiredFn    func(ctx context.Context) (int, error)
}

func (s *stubCartService) CreateCart(ctx context.Context, cmd services.CreateCartCommand) (services.Cart, error) {
	return s.createCartFn(ctx, cmd)
}

func (s *stubCartService) GetCart(ctx context.Context, cartID string) (services.Cart, error) {
	return s.getCartFn(ctx, cartID)
}

func (s *stubCartService) AddLineItem(ctx context.Context, cmd services.AddLineItemCommand) (services.Cart, error) {
	return s.addLineItemFn(ctx, cmd)
}

func (s *stubCartService) UpdateLineItem(ctx context.Context, cmd services.UpdateLineItemCommand) (services.Cart, error) {
	return s.updateLineItemFn(ctx, cmd)
}

func (s *stubCartService) RemoveLineItem(ctx context.Context, cmd services.RemoveLineItemCommand) (services.Cart, error) {
	return s.removeLineItemFn(ctx, cmd)
}

func (s *stubCartService) ApplyDiscount(ctx context.Context, cmd services.ApplyDiscountCommand) (services.Cart, error) {
	return s.applyDiscountFn(ctx, cmd)
}

func (s *stubCartService) RemoveDiscount(ctx context.Context, cmd services.RemoveDiscountCommand) (services.Cart, error) {
	return s.removeDiscountFn(ctx, cmd)
}

func (s *stubCartService) UpdateAddresses(ctx context.Context, cmd services.UpdateAddressesCommand) (services.Cart, error) {
	return s.updateAddressesFn(ctx, cmd)
}

func (s *stubCartService) SetShippingMethod(ctx context.Context, cmd services.SetShippingMethodCommand) (services.Cart, error) {
	return s.setShippingMethodFn(ctx, cmd)
}

func (s *stubCartService) SetPaymentSession(ctx context.Context, cmd services.SetPaymentSessionCommand) (services.Cart, error) {
	return s.setPaymentSessionFn(ctx, cmd)
}

func (s *stubCartService) ValidateCart(ctx context.Context, cartID string) (services.CartValidation, error) {
	return s.validateCartFn(ctx, cartID)
}

func (s *stubCartService) AbandonCart(ctx context.Context, cartID string) (services.Cart, error) {
	return s.abandonCartFn(ctx, cartID)
}

func (s *stubCartService) CleanupExpiredCarts(ctx context.Context) (int, error) {
	return s.cleanupExpiredFn(ctx)
}

type stubCheckoutService struct {
	createPaymentSessionFn func(ctx context.Context, cmd services.CreatePaymentSessionCommand) (services.Cart, error)
	checkoutFn             func(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error)
}

func (s *stubCheckoutService) CreatePaymentSession(ctx context.Context, cmd services.CreatePaymentSessionCommand) (services.Cart, error) {
	return s.createPaymentSessionFn(ctx, cmd)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error) {
	return s.checkoutFn(ctx, cmd)
}

type stubOrderService struct {
	getOrderFn   func(ctx context.Context, orderID string) (services.Order, error)
	listOrdersFn func(ctx context.Context, query services.OrderListQuery) ([]services.Order, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	return s.getOrderFn(ctx, orderID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.OrderListQuery) ([]services.Order, error) {
	return s.listOrdersFn(ctx, query)
}

func newCartTestRouter(carts services.CartService, checkout services.CheckoutService, mw ...func(http.Handler) http.Handler) chi.Router {
	return NewRouter(WithCartRoutes(NewCartHandlers(carts, checkout).Routes(mw...)))
}

func doRequest(t *testing.T, router chi.Router, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, rec.Body.String())
	}
	return payload
}
