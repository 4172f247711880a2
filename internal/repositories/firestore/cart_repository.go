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

const cartCollection = "carts"

// CartRepository persists cart aggregates within Firestore. Updates are
// compare-and-swap on the stored version field, executed inside a
// transaction unless the caller already carries one.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the cart document, failing when the id already exists.
func (r *CartRepository) Insert(ctx context.Context, cart domain.Cart) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	cartID := strings.TrimSpace(cart.ID)
	if cartID == "" {
		return errors.New("cart repository: cart id is required")
	}
	_, err := r.base.Create(ctx, cartID, encodeCart(cart))
	return err
}

// Update persists the cart when the stored version matches expectedVersion.
// A mismatch surfaces as a conflict error and the write is discarded.
func (r *CartRepository) Update(ctx context.Context, cart domain.Cart, expectedVersion int64) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	cartID := strings.TrimSpace(cart.ID)
	if cartID == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	apply := func(ctx context.Context) error {
		current, err := r.base.Get(ctx, cartID)
		if err != nil {
			return err
		}
		if current.Data.Version != expectedVersion {
			return pfirestore.WrapError("carts.update",
				status.Errorf(codes.FailedPrecondition, "cart %s version %d does not match expected %d", cartID, current.Data.Version, expectedVersion))
		}
		_, err = r.base.Set(ctx, cartID, encodeCart(cart))
		return err
	}

	if _, ok := pfirestore.TransactionFrom(ctx); ok {
		if err := apply(ctx); err != nil {
			return domain.Cart{}, err
		}
		return cart, nil
	}

	err := r.provider.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		return apply(pfirestore.WithTransaction(txCtx, tx))
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// FindByID loads the cart with the given identifier.
func (r *CartRepository) FindByID(ctx context.Context, cartID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(cartID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCart(doc.ID, doc.Data), nil
}

// ListExpired returns active carts whose expiry deadline passed before the
// filter bound, ordered oldest first.
func (r *CartRepository) ListExpired(ctx context.Context, filter repositories.ExpiredCartFilter) ([]domain.Cart, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("cart repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.CartStatusActive)).
			Where("expiresAt", "<", filter.Before.UTC()).
			OrderBy("expiresAt", firestore.Asc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	carts := make([]domain.Cart, 0, len(docs))
	for _, doc := range docs {
		carts = append(carts, decodeCart(doc.ID, doc.Data))
	}
	return carts, nil
}

type cartDocument struct {
	Status          string                  `firestore:"status"`
	Currency        string                  `firestore:"currency"`
	CustomerID      string                  `firestore:"customerId,omitempty"`
	SalesChannelID  string                  `firestore:"salesChannelId,omitempty"`
	RegionID        string                  `firestore:"regionId,omitempty"`
	Items           []cartItemDocument      `firestore:"items,omitempty"`
	Discounts       []discountDocument      `firestore:"discounts,omitempty"`
	ShippingMethod  *shippingMethodDocument `firestore:"shippingMethod,omitempty"`
	PaymentSession  *paymentSessionDocument `firestore:"paymentSession,omitempty"`
	BillingAddress  *addressDocument        `firestore:"billingAddress,omitempty"`
	ShippingAddress *addressDocument        `firestore:"shippingAddress,omitempty"`
	TaxBreakdown    []taxLineDocument       `firestore:"taxBreakdown,omitempty"`
	Totals          totalsDocument          `firestore:"totals"`
	OrderID         string                  `firestore:"orderId,omitempty"`
	Version         int64                   `firestore:"version"`
	CreatedAt       time.Time               `firestore:"createdAt"`
	UpdatedAt       time.Time               `firestore:"updatedAt"`
	ExpiresAt       time.Time               `firestore:"expiresAt"`
	CompletedAt     *time.Time              `firestore:"completedAt,omitempty"`
}

type cartItemDocument struct {
	ID            string           `firestore:"id"`
	ProductID     string           `firestore:"productId"`
	VariantID     string           `firestore:"variantId,omitempty"`
	Quantity      int64            `firestore:"quantity"`
	UnitPrice     int64            `firestore:"unitPrice"`
	Total         int64            `firestore:"total"`
	DiscountTotal int64            `firestore:"discountTotal"`
	TaxTotal      int64            `firestore:"taxTotal"`
	Snapshot      snapshotDocument `firestore:"productSnapshot"`
	AddedAt       time.Time        `firestore:"addedAt"`
}

type paymentSessionDocument struct {
	ID              string    `firestore:"id"`
	ProviderID      string    `firestore:"providerId"`
	PaymentIntentID string    `firestore:"paymentIntentId"`
	Status          string    `firestore:"status"`
	CreatedAt       time.Time `firestore:"createdAt"`
}

func encodeCart(cart domain.Cart) cartDocument {
	doc := cartDocument{
		Status:          string(cart.Status),
		Currency:        strings.ToUpper(strings.TrimSpace(cart.Currency)),
		CustomerID:      strings.TrimSpace(cart.CustomerID),
		SalesChannelID:  strings.TrimSpace(cart.SalesChannelID),
		RegionID:        strings.TrimSpace(cart.RegionID),
		Discounts:       encodeDiscounts(cart.Discounts),
		ShippingMethod:  encodeShippingMethod(cart.ShippingMethod),
		BillingAddress:  encodeAddress(cart.BillingAddress),
		ShippingAddress: encodeAddress(cart.ShippingAddress),
		TaxBreakdown:    encodeTaxLines(cart.TaxBreakdown),
		Totals: totalsDocument{
			Subtotal:      cart.Totals.Subtotal,
			TaxTotal:      cart.Totals.TaxTotal,
			ShippingTotal: cart.Totals.ShippingTotal,
			DiscountTotal: cart.Totals.DiscountTotal,
			Total:         cart.Totals.Total,
		},
		OrderID:   strings.TrimSpace(cart.OrderID),
		Version:   cart.Version,
		CreatedAt: cart.CreatedAt.UTC(),
		UpdatedAt: cart.UpdatedAt.UTC(),
		ExpiresAt: cart.ExpiresAt.UTC(),
	}
	if cart.CompletedAt != nil {
		doc.CompletedAt = timePtr(*cart.CompletedAt)
	}
	if cart.PaymentSession != nil {
		doc.PaymentSession = &paymentSessionDocument{
			ID:              cart.PaymentSession.ID,
			ProviderID:      cart.PaymentSession.ProviderID,
			PaymentIntentID: cart.PaymentSession.PaymentIntentID,
			Status:          cart.PaymentSession.Status,
			CreatedAt:       cart.PaymentSession.CreatedAt.UTC(),
		}
	}
	if len(cart.Items) > 0 {
		doc.Items = make([]cartItemDocument, 0, len(cart.Items))
		for _, item := range cart.Items {
			doc.Items = append(doc.Items, cartItemDocument{
				ID:            item.ID,
				ProductID:     item.ProductID,
				VariantID:     item.VariantID,
				Quantity:      item.Quantity,
				UnitPrice:     item.UnitPrice,
				Total:         item.Total,
				DiscountTotal: item.DiscountTotal,
				TaxTotal:      item.TaxTotal,
				Snapshot:      encodeSnapshot(item.Snapshot),
				AddedAt:       item.AddedAt.UTC(),
			})
		}
	}
	return doc
}

func decodeCart(id string, doc cartDocument) domain.Cart {
	cart := domain.Cart{
		ID:              id,
		Status:          domain.CartStatus(doc.Status),
		Currency:        doc.Currency,
		CustomerID:      doc.CustomerID,
		SalesChannelID:  doc.SalesChannelID,
		RegionID:        doc.RegionID,
		Items:           make([]domain.CartLineItem, 0, len(doc.Items)),
		Discounts:       decodeDiscounts(doc.Discounts),
		ShippingMethod:  decodeShippingMethod(doc.ShippingMethod),
		BillingAddress:  decodeAddress(doc.BillingAddress),
		ShippingAddress: decodeAddress(doc.ShippingAddress),
		TaxBreakdown:    decodeTaxLines(doc.TaxBreakdown),
		Totals: domain.CartTotals{
			Subtotal:      doc.Totals.Subtotal,
			TaxTotal:      doc.Totals.TaxTotal,
			ShippingTotal: doc.Totals.ShippingTotal,
			DiscountTotal: doc.Totals.DiscountTotal,
			Total:         doc.Totals.Total,
		},
		OrderID:     doc.OrderID,
		Version:     doc.Version,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		ExpiresAt:   doc.ExpiresAt,
		CompletedAt: doc.CompletedAt,
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartLineItem{
			ID:            item.ID,
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			Total:         item.Total,
			DiscountTotal: item.DiscountTotal,
			TaxTotal:      item.TaxTotal,
			Snapshot:      decodeSnapshot(item.Snapshot),
			AddedAt:       item.AddedAt,
		})
	}
	if doc.PaymentSession != nil {
		cart.PaymentSession = &domain.PaymentSession{
			ID:              doc.PaymentSession.ID,
			ProviderID:      doc.PaymentSession.ProviderID,
			PaymentIntentID: doc.PaymentSession.PaymentIntentID,
			Status:          doc.PaymentSession.Status,
			CreatedAt:       doc.PaymentSession.CreatedAt,
		}
	}
	return cart
}

var _ repositories.CartRepository = (*CartRepository)(nil)
