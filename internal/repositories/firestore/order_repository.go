package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/voxsar/commerce-api/internal/domain"
	pfirestore "github.com/voxsar/commerce-api/internal/platform/firestore"
	"github.com/voxsar/commerce-api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists order snapshots within Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

// Insert creates the order document, failing when the id already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Create(ctx, orderID, encodeOrder(order))
	return err
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Set(ctx, orderID, encodeOrder(order))
	return err
}

// FindByID loads the order with the given identifier.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// FindByCartID returns the most recent order created from the given cart.
func (r *OrderRepository) FindByCartID(ctx context.Context, cartID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(cartID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: cart id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("cartId", "==", id).
			OrderBy("createdAt", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByCart",
			status.Errorf(codes.NotFound, "no order for cart %s", id))
	}
	return decodeOrder(docs[0].ID, docs[0].Data), nil
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if customerID := strings.TrimSpace(filter.CustomerID); customerID != "" {
			q = q.Where("customerId", "==", customerID)
		}
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		if filter.CreatedAfter != nil {
			q = q.Where("createdAt", ">", filter.CreatedAfter.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(filter.StartAfter) > 0 {
			q = q.StartAfter(filter.StartAfter...)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

type orderDocument struct {
	Number          string                  `firestore:"number,omitempty"`
	Status          string                  `firestore:"status"`
	CartID          string                  `firestore:"cartId"`
	CustomerID      string                  `firestore:"customerId,omitempty"`
	Currency        string                  `firestore:"currency"`
	Items           []orderItemDocument     `firestore:"items"`
	Discounts       []discountDocument      `firestore:"discounts,omitempty"`
	ShippingMethod  *shippingMethodDocument `firestore:"shippingMethod,omitempty"`
	BillingAddress  *addressDocument        `firestore:"billingAddress,omitempty"`
	ShippingAddress *addressDocument        `firestore:"shippingAddress,omitempty"`
	TaxBreakdown    []taxLineDocument       `firestore:"taxBreakdown,omitempty"`
	Totals          totalsDocument          `firestore:"totals"`
	PaymentID       string                  `firestore:"paymentId,omitempty"`
	Note            string                  `firestore:"note,omitempty"`
	CreatedAt       time.Time               `firestore:"createdAt"`
	CompletedAt     *time.Time              `firestore:"completedAt,omitempty"`
}

type orderItemDocument struct {
	ID            string           `firestore:"id"`
	ProductID     string           `firestore:"productId"`
	VariantID     string           `firestore:"variantId,omitempty"`
	Quantity      int64            `firestore:"quantity"`
	UnitPrice     int64            `firestore:"unitPrice"`
	Total         int64            `firestore:"total"`
	DiscountTotal int64            `firestore:"discountTotal"`
	TaxTotal      int64            `firestore:"taxTotal"`
	Snapshot      snapshotDocument `firestore:"productSnapshot"`
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		Number:          strings.TrimSpace(order.Number),
		Status:          string(order.Status),
		CartID:          strings.TrimSpace(order.CartID),
		CustomerID:      strings.TrimSpace(order.CustomerID),
		Currency:        strings.ToUpper(strings.TrimSpace(order.Currency)),
		Discounts:       encodeDiscounts(order.Discounts),
		ShippingMethod:  encodeShippingMethod(order.ShippingMethod),
		BillingAddress:  encodeAddress(order.BillingAddress),
		ShippingAddress: encodeAddress(order.ShippingAddress),
		TaxBreakdown:    encodeTaxLines(order.TaxBreakdown),
		Totals: totalsDocument{
			Subtotal:      order.Totals.Subtotal,
			TaxTotal:      order.Totals.TaxTotal,
			ShippingTotal: order.Totals.ShippingTotal,
			DiscountTotal: order.Totals.DiscountTotal,
			Total:         order.Totals.Total,
		},
		PaymentID: strings.TrimSpace(order.PaymentID),
		Note:      strings.TrimSpace(order.Note),
		CreatedAt: order.CreatedAt.UTC(),
	}
	if order.CompletedAt != nil {
		doc.CompletedAt = timePtr(*order.CompletedAt)
	}
	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ID:            item.ID,
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			Total:         item.Total,
			DiscountTotal: item.DiscountTotal,
			TaxTotal:      item.TaxTotal,
			Snapshot:      encodeSnapshot(item.Snapshot),
		})
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:              id,
		Number:          doc.Number,
		Status:          domain.OrderStatus(doc.Status),
		CartID:          doc.CartID,
		CustomerID:      doc.CustomerID,
		Currency:        doc.Currency,
		Items:           make([]domain.OrderLineItem, 0, len(doc.Items)),
		Discounts:       decodeDiscounts(doc.Discounts),
		ShippingMethod:  decodeShippingMethod(doc.ShippingMethod),
		BillingAddress:  decodeAddress(doc.BillingAddress),
		ShippingAddress: decodeAddress(doc.ShippingAddress),
		TaxBreakdown:    decodeTaxLines(doc.TaxBreakdown),
		Totals: domain.OrderTotals{
			Subtotal:      doc.Totals.Subtotal,
			TaxTotal:      doc.Totals.TaxTotal,
			ShippingTotal: doc.Totals.ShippingTotal,
			DiscountTotal: doc.Totals.DiscountTotal,
			Total:         doc.Totals.Total,
		},
		PaymentID:   doc.PaymentID,
		Note:        doc.Note,
		CreatedAt:   doc.CreatedAt,
		CompletedAt: doc.CompletedAt,
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderLineItem{
			ID:            item.ID,
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			Total:         item.Total,
			DiscountTotal: item.DiscountTotal,
			TaxTotal:      item.TaxTotal,
			Snapshot:      decodeSnapshot(item.Snapshot),
		})
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
