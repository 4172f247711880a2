package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/voxsar/commerce-api/internal/domain"
	pfirestore "github.com/voxsar/commerce-api/internal/platform/firestore"
	"github.com/voxsar/commerce-api/internal/repositories"
)

const productCollection = "products"

// ProductRepository provides read-only catalog lookups.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{base: base}, nil
}

// FindByID loads the product with the given identifier.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:        doc.ID,
		Title:     doc.Data.Title,
		Thumbnail: doc.Data.Thumbnail,
		TaxCode:   doc.Data.TaxCode,
		BasePrice: doc.Data.BasePrice,
		Active:    doc.Data.Active,
	}
	for _, variant := range doc.Data.Variants {
		product.Variants = append(product.Variants, domain.ProductVariant{
			ID:        variant.ID,
			SKU:       variant.SKU,
			Title:     variant.Title,
			BasePrice: variant.BasePrice,
		})
	}
	return product, nil
}

type productDocument struct {
	Title     string                   `firestore:"title"`
	Thumbnail string                   `firestore:"thumbnail,omitempty"`
	TaxCode   string                   `firestore:"taxCode,omitempty"`
	BasePrice map[string]int64         `firestore:"basePrice,omitempty"`
	Variants  []productVariantDocument `firestore:"variants,omitempty"`
	Active    bool                     `firestore:"active"`
}

type productVariantDocument struct {
	ID        string           `firestore:"id"`
	SKU       string           `firestore:"sku,omitempty"`
	Title     string           `firestore:"title,omitempty"`
	BasePrice map[string]int64 `firestore:"basePrice,omitempty"`
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
