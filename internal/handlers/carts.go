package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/voxsar/commerce-api/internal/platform/httpx"
	"github.com/voxsar/commerce-api/internal/services"
)

// CartHandlers exposes the cart lifecycle endpoints.
type CartHandlers struct {
	carts    services.CartService
	checkout services.CheckoutService
}

const maxCartBodySize = 16 * 1024

// NewCartHandlers constructs handlers over the cart and checkout services.
func NewCartHandlers(carts services.CartService, checkout services.CheckoutService) *CartHandlers {
	return &CartHandlers{
		carts:    carts,
		checkout: checkout,
	}
}

// Routes wires the /carts endpoints onto the provided router. The checkout
// middleware (request idempotency) applies to the checkout route only.
func (h *CartHandlers) Routes(checkoutMiddleware ...func(http.Handler) http.Handler) RouteRegistrar {
	return func(r chi.Router) {
		r.Post("/", h.createCart)
		r.Post("/cleanup/expired", h.cleanupExpired)
		r.Route("/{cartId}", func(cart chi.Router) {
			cart.Get("/", h.getCart)
			cart.Post("/line-items", h.addLineItem)
			cart.Patch("/line-items/{itemId}", h.updateLineItem)
			cart.Delete("/line-items/{itemId}", h.removeLineItem)
			cart.Post("/discounts", h.applyDiscount)
			cart.Delete("/discounts/{discountId}", h.removeDiscount)
			cart.Patch("/addresses", h.updateAddresses)
			cart.Post("/shipping-methods", h.setShippingMethod)
			cart.Post("/payment-sessions", h.createPaymentSession)
			cart.Get("/validate", h.validateCart)
			cart.Post("/abandon", h.abandonCart)
			cart.Group(func(g chi.Router) {
				for _, mw := range checkoutMiddleware {
					if mw != nil {
						g.Use(mw)
					}
				}
				g.Post("/checkout", h.checkoutCart)
			})
		})
	}
}

type createCartRequest struct {
	Currency       string `json:"currency"`
	CustomerID     string `json:"customer_id"`
	SalesChannelID string `json:"sales_channel_id"`
	RegionID       string `json:"region_id"`
}

func (h *CartHandlers) createCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	var req createCartRequest
	if !decodeRequest(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.CreateCart(ctx, services.CreateCartCommand{
		Currency:       req.Currency,
		CustomerID:     req.CustomerID,
		SalesChannelID: req.SalesChannelID,
		RegionID:       req.RegionID,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	cart, err := h.carts.GetCart(ctx, chi.URLParam(r, "cartId"))
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type addLineItemRequest struct {
	ProductID   string `json:"product_id"`
	VariantID   string `json:"variant_id"`
	Quantity    int64  `json:"quantity"`
	PriceListID string `json:"price_list_id"`
}

func (h *CartHandlers) addLineItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	var req addLineItemRequest
	if !decodeRequest(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.AddLineItem(ctx, services.AddLineItemCommand{
		CartID:      chi.URLParam(r, "cartId"),
		ProductID:   req.ProductID,
		VariantID:   req.VariantID,
		Quantity:    req.Quantity,
		PriceListID: req.PriceListID,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type updateLineItemRequest struct {
	Quantity int64 `json:"quantity"`
}

func (h *CartHandlers) updateLineItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	var req updateLineItemRequest
	if !decodeRequest(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.UpdateLineItem(ctx, services.UpdateLineItemCommand{
		CartID:   chi.URLParam(r, "cartId"),
		ItemID:   chi.URLParam(r, "itemId"),
		Quantity: req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) removeLineItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	cart, err := h.carts.RemoveLineItem(ctx, services.RemoveLineItemCommand{
		CartID: chi.URLParam(r, "cartId"),
		ItemID: chi.URLParam(r, "itemId"),
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type applyDiscountRequest struct {
	PromotionID string `json:"promotion_id"`
	Code        string `json:"code"`
}

func (h *CartHandlers) applyDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	var req applyDiscountRequest
	if !decodeRequest(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.ApplyDiscount(ctx, services.ApplyDiscountCommand{
		CartID:      chi.URLParam(r, "cartId"),
		PromotionID: req.PromotionID,
		Code:        req.Code,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) removeDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	cart, err := h.carts.RemoveDiscount(ctx, services.RemoveDiscountCommand{
		CartID:     chi.URLParam(r, "cartId"),
		DiscountID: chi.URLParam(r, "discountId"),
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type updateAddressesRequest struct {
	BillingAddress  *addressPayload `json:"billing_address"`
	ShippingAddress *addressPayload `json:"shipping_address"`
}

func (h *CartHandlers) updateAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	var req updateAddressesRequest
	if !decodeRequest(ctx, w, r, &req) {
		return
	}
	if req.BillingAddress == nil && req.ShippingAddress == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one address is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.UpdateAddresses(ctx, services.UpdateAddressesCommand{
		CartID:          chi.URLParam(r, "cartId"),
		BillingAddress:  req.BillingAddress.toAddress(),
		ShippingAddress: req.ShippingAddress.toAddress(),
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type setShippingMethodRequest struct {
	ShippingOptionID string `json:"shipping_option_id"`
	Name             string `json:"name"`
	Price            int64  `json:"price"`
}

func (h *CartHandlers) setShippingMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	var req setShippingMethodRequest
	if !decodeRequest(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.SetShippingMethod(ctx, services.SetShippingMethodCommand{
		CartID:           chi.URLParam(r, "cartId"),
		ShippingOptionID: req.ShippingOptionID,
		Name:             req.Name,
		Price:            req.Price,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type createPaymentSessionRequest struct {
	ProviderID      string `json:"provider_id"`
	PaymentIntentID string `json:"payment_intent_id"`
}

func (h *CartHandlers) createPaymentSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	var req createPaymentSessionRequest
	if !decodeRequest(ctx, w, r, &req) {
		return
	}

	cartID := chi.URLParam(r, "cartId")

	// An explicit intent id attaches a client-created intent; otherwise a
	// fresh intent is opened with the gateway.
	var (
		cart services.Cart
		err  error
	)
	if strings.TrimSpace(req.PaymentIntentID) != "" {
		cart, err = h.carts.SetPaymentSession(ctx, services.SetPaymentSessionCommand{
			CartID:          cartID,
			ProviderID:      req.ProviderID,
			PaymentIntentID: req.PaymentIntentID,
		})
	} else {
		if h.checkout == nil {
			writeServiceUnavailable(ctx, w)
			return
		}
		cart, err = h.checkout.CreatePaymentSession(ctx, services.CreatePaymentSessionCommand{
			CartID:     cartID,
			ProviderID: req.ProviderID,
		})
	}
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) validateCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	validation, err := h.carts.ValidateCart(ctx, chi.URLParam(r, "cartId"))
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	payload := validationPayload{
		IsValid:  validation.IsValid,
		Errors:   validation.Errors,
		Warnings: validation.Warnings,
	}
	if payload.Errors == nil {
		payload.Errors = []string{}
	}
	if payload.Warnings == nil {
		payload.Warnings = []string{}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CartHandlers) abandonCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	cart, err := h.carts.AbandonCart(ctx, chi.URLParam(r, "cartId"))
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) cleanupExpired(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	count, err := h.carts.CleanupExpiredCarts(ctx)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"expired": count})
}

type checkoutRequest struct {
	OrderNumber     string                    `json:"order_number"`
	Note            string                    `json:"note"`
	BillingAddress  *addressPayload           `json:"billing_address"`
	ShippingAddress *addressPayload           `json:"shipping_address"`
	ShippingMethod  *setShippingMethodRequest `json:"shipping_method"`
}

func (h *CartHandlers) checkoutCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	cmd := services.CheckoutCommand{CartID: chi.URLParam(r, "cartId")}
	if r.ContentLength != 0 {
		body, err := readLimitedBody(r, maxCartBodySize)
		if err != nil && !errors.Is(err, errEmptyBody) {
			writeBodyError(ctx, w, err)
			return
		}
		if err == nil {
			var req checkoutRequest
			if jsonErr := json.Unmarshal(body, &req); jsonErr != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
				return
			}
			cmd.OrderNumber = req.OrderNumber
			cmd.Note = req.Note
			cmd.BillingAddress = req.BillingAddress.toAddress()
			cmd.ShippingAddress = req.ShippingAddress.toAddress()
			if req.ShippingMethod != nil {
				cmd.ShippingMethod = &services.SetShippingMethodCommand{
					ShippingOptionID: req.ShippingMethod.ShippingOptionID,
					Name:             req.ShippingMethod.Name,
					Price:            req.ShippingMethod.Price,
				}
			}
		}
	}

	order, err := h.checkout.Checkout(ctx, cmd)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("line_item_not_found", "line item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartNotActive):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_active", "cart is no longer active", http.StatusConflict))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrPromotionInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_promotion", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

func (h *CartHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var validationErr *services.CheckoutValidationError
	switch {
	case errors.As(err, &validationErr):
		httpx.WriteError(ctx, w, httpx.
			NewError("cart_not_ready", "cart is not ready for checkout", http.StatusBadRequest).
			WithDetails(map[string]any{"validation_errors": validationErr.Errors}))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartNotActive):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_active", "cart is no longer active", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentIntentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_intent_not_found", "payment intent not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentNotSucceeded):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment was not successful", http.StatusBadRequest))
	case errors.Is(err, services.ErrGatewayTimeout):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_timeout", "payment gateway timed out; retry checkout", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
	default:
		h.writeCartError(ctx, w, err)
	}
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "service is unavailable", http.StatusServiceUnavailable))
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func decodeRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type validationPayload struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type cartPayload struct {
	ID              string                 `json:"id"`
	Status          string                 `json:"status"`
	Currency        string                 `json:"currency"`
	CustomerID      string                 `json:"customer_id,omitempty"`
	SalesChannelID  string                 `json:"sales_channel_id,omitempty"`
	RegionID        string                 `json:"region_id,omitempty"`
	Items           []cartItemPayload      `json:"items"`
	Discounts       []discountPayload      `json:"discounts"`
	ShippingMethod  *shippingMethodPayload `json:"shipping_method,omitempty"`
	PaymentSession  *paymentSessionPayload `json:"payment_session,omitempty"`
	BillingAddress  *addressPayload        `json:"billing_address,omitempty"`
	ShippingAddress *addressPayload        `json:"shipping_address,omitempty"`
	TaxBreakdown    []taxLinePayload       `json:"tax_breakdown"`
	Totals          totalsPayload          `json:"totals"`
	OrderID         string                 `json:"order_id,omitempty"`
	Version         int64                  `json:"version"`
	CreatedAt       string                 `json:"created_at,omitempty"`
	UpdatedAt       string                 `json:"updated_at,omitempty"`
	ExpiresAt       string                 `json:"expires_at,omitempty"`
	CompletedAt     string                 `json:"completed_at,omitempty"`
}

type cartItemPayload struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	VariantID     string          `json:"variant_id,omitempty"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     int64           `json:"unit_price"`
	Total         int64           `json:"total"`
	DiscountTotal int64           `json:"discount_total"`
	TaxTotal      int64           `json:"tax_total"`
	Snapshot      snapshotPayload `json:"product_snapshot"`
	AddedAt       string          `json:"added_at,omitempty"`
}

type paymentSessionPayload struct {
	ID              string `json:"id"`
	ProviderID      string `json:"provider_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at,omitempty"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:             cart.ID,
		Status:         string(cart.Status),
		Currency:       cart.Currency,
		CustomerID:     cart.CustomerID,
		SalesChannelID: cart.SalesChannelID,
		RegionID:       cart.RegionID,
		Items:          buildCartItems(cart.Items),
		Discounts:      buildDiscounts(cart.Discounts),
		ShippingMethod: buildShippingMethodPayload(cart.ShippingMethod),
		TaxBreakdown:   buildTaxLines(cart.TaxBreakdown),
		Totals: totalsPayload{
			Subtotal:      cart.Totals.Subtotal,
			TaxTotal:      cart.Totals.TaxTotal,
			ShippingTotal: cart.Totals.ShippingTotal,
			DiscountTotal: cart.Totals.DiscountTotal,
			Total:         cart.Totals.Total,
		},
		OrderID:     cart.OrderID,
		Version:     cart.Version,
		CreatedAt:   formatTime(cart.CreatedAt),
		UpdatedAt:   formatTime(cart.UpdatedAt),
		ExpiresAt:   formatTime(cart.ExpiresAt),
		CompletedAt: formatTimePtr(cart.CompletedAt),
	}
	if cart.PaymentSession != nil {
		payload.PaymentSession = &paymentSessionPayload{
			ID:              cart.PaymentSession.ID,
			ProviderID:      cart.PaymentSession.ProviderID,
			PaymentIntentID: cart.PaymentSession.PaymentIntentID,
			Status:          cart.PaymentSession.Status,
			CreatedAt:       formatTime(cart.PaymentSession.CreatedAt),
		}
	}
	if cart.BillingAddress != nil {
		addr := buildAddressPayload(*cart.BillingAddress)
		payload.BillingAddress = &addr
	}
	if cart.ShippingAddress != nil {
		addr := buildAddressPayload(*cart.ShippingAddress)
		payload.ShippingAddress = &addr
	}
	return payload
}

func buildCartItems(items []services.CartLineItem) []cartItemPayload {
	if len(items) == 0 {
		return []cartItemPayload{}
	}
	payload := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, cartItemPayload{
			ID:            item.ID,
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			Total:         item.Total,
			DiscountTotal: item.DiscountTotal,
			TaxTotal:      item.TaxTotal,
			Snapshot: snapshotPayload{
				Title:        item.Snapshot.Title,
				VariantTitle: item.Snapshot.VariantTitle,
				Thumbnail:    item.Snapshot.Thumbnail,
				SKU:          item.Snapshot.SKU,
				TaxCode:      item.Snapshot.TaxCode,
			},
			AddedAt: formatTime(item.AddedAt),
		})
	}
	return payload
}
