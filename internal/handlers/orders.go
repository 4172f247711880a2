package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/voxsar/commerce-api/internal/domain"
	"github.com/voxsar/commerce-api/internal/platform/httpx"
	"github.com/voxsar/commerce-api/internal/platform/pagination"
	"github.com/voxsar/commerce-api/internal/services"
)

const (
	defaultOrderPageSize = 50
	maxOrderPageSize     = 100
)

// OrderHandlers exposes read access to completed orders.
type OrderHandlers struct {
	orders services.OrderService
}

func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

func (h *OrderHandlers) Routes() RouteRegistrar {
	return func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Get("/{orderId}", h.getOrder)
	}
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.OrderListQuery{
		CustomerID: strings.TrimSpace(r.URL.Query().Get("customer_id")),
		Status:     domain.OrderStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Limit:      params.PageSize,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("created_after")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be RFC3339", http.StatusBadRequest))
			return
		}
		query.CreatedAfter = &ts
	}
	if len(params.Cursor.StartAfter) > 0 {
		startAfter, err := decodeOrderCursor(params.Cursor)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		query.StartAfter = startAfter
	}

	orders, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payload := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payload = append(payload, buildOrderPayload(order))
	}
	response := orderListResponse{Orders: payload, Count: len(payload)}
	if len(orders) == params.PageSize {
		last := orders[len(orders)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			h.writeOrderError(ctx, w, err)
			return
		}
		response.NextPageToken = token
	}
	writeJSONResponse(w, http.StatusOK, response)
}

// decodeOrderCursor converts a decoded page token into query cursor values.
// Tokens carry the last row's creation timestamp and document ID so the
// listing resumes deterministically under the createdAt,id sort.
func decodeOrderCursor(cursor pagination.Cursor) ([]any, error) {
	if len(cursor.StartAfter) != 2 {
		return nil, fmt.Errorf("%w: malformed cursor", pagination.ErrInvalidPageToken)
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: malformed cursor", pagination.ErrInvalidPageToken)
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", pagination.ErrInvalidPageToken)
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: malformed cursor", pagination.ErrInvalidPageToken)
	}
	return []any{ts, id}, nil
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order operation failed", http.StatusInternalServerError))
	}
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	Count         int            `json:"count"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderPayload struct {
	ID              string                 `json:"id"`
	Number          string                 `json:"number"`
	Status          string                 `json:"status"`
	CartID          string                 `json:"cart_id"`
	CustomerID      string                 `json:"customer_id,omitempty"`
	Currency        string                 `json:"currency"`
	Items           []orderItemPayload     `json:"items"`
	Discounts       []discountPayload      `json:"discounts"`
	ShippingMethod  *shippingMethodPayload `json:"shipping_method,omitempty"`
	BillingAddress  *addressPayload        `json:"billing_address,omitempty"`
	ShippingAddress *addressPayload        `json:"shipping_address,omitempty"`
	TaxBreakdown    []taxLinePayload       `json:"tax_breakdown"`
	Totals          totalsPayload          `json:"totals"`
	PaymentID       string                 `json:"payment_id,omitempty"`
	Note            string                 `json:"note,omitempty"`
	CreatedAt       string                 `json:"created_at,omitempty"`
	CompletedAt     string                 `json:"completed_at,omitempty"`
}

type orderItemPayload struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	VariantID     string          `json:"variant_id,omitempty"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     int64           `json:"unit_price"`
	Total         int64           `json:"total"`
	DiscountTotal int64           `json:"discount_total"`
	TaxTotal      int64           `json:"tax_total"`
	Snapshot      snapshotPayload `json:"product_snapshot"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:             order.ID,
		Number:         order.Number,
		Status:         string(order.Status),
		CartID:         order.CartID,
		CustomerID:     order.CustomerID,
		Currency:       order.Currency,
		Items:          buildOrderItems(order.Items),
		Discounts:      buildDiscounts(order.Discounts),
		ShippingMethod: buildShippingMethodPayload(order.ShippingMethod),
		TaxBreakdown:   buildTaxLines(order.TaxBreakdown),
		Totals: totalsPayload{
			Subtotal:      order.Totals.Subtotal,
			TaxTotal:      order.Totals.TaxTotal,
			ShippingTotal: order.Totals.ShippingTotal,
			DiscountTotal: order.Totals.DiscountTotal,
			Total:         order.Totals.Total,
		},
		PaymentID:   order.PaymentID,
		Note:        order.Note,
		CreatedAt:   formatTime(order.CreatedAt),
		CompletedAt: formatTimePtr(order.CompletedAt),
	}
	if order.BillingAddress != nil {
		addr := buildAddressPayload(*order.BillingAddress)
		payload.BillingAddress = &addr
	}
	if order.ShippingAddress != nil {
		addr := buildAddressPayload(*order.ShippingAddress)
		payload.ShippingAddress = &addr
	}
	return payload
}

func buildOrderItems(items []services.OrderLineItem) []orderItemPayload {
	if len(items) == 0 {
		return []orderItemPayload{}
	}
	payload := make([]orderItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, orderItemPayload{
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
		})
	}
	return payload
}
