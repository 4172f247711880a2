package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/voxsar/commerce-api/internal/domain"
	pfirestore "github.com/voxsar/commerce-api/internal/platform/firestore"
	"github.com/voxsar/commerce-api/internal/repositories"
)

const priceListCollection = "price_lists"

// PriceListRepository provides read-only access to price list definitions.
type PriceListRepository struct {
	base *pfirestore.BaseRepository[priceListDocument]
}

// NewPriceListRepository constructs a Firestore-backed price list repository.
func NewPriceListRepository(provider *pfirestore.Provider) (*PriceListRepository, error) {
	if provider == nil {
		return nil, errors.New("price list repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[priceListDocument](provider, priceListCollection, nil, nil)
	return &PriceListRepository{base: base}, nil
}

// FindByID loads the price list with the given identifier.
func (r *PriceListRepository) FindByID(ctx context.Context, priceListID string) (domain.PriceList, error) {
	if r == nil || r.base == nil {
		return domain.PriceList{}, errors.New("price list repository not initialised")
	}
	id := strings.TrimSpace(priceListID)
	if id == "" {
		return domain.PriceList{}, errors.New("price list repository: price list id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.PriceList{}, err
	}
	return decodePriceList(doc.ID, doc.Data), nil
}

// ListActive returns lists whose status is active. Schedule windows are
// evaluated in memory because Firestore cannot express the nil-bound range
// query in a single filter.
func (r *PriceListRepository) ListActive(ctx context.Context, now time.Time) ([]domain.PriceList, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("price list repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.PriceListActive))
	})
	if err != nil {
		return nil, err
	}

	lists := make([]domain.PriceList, 0, len(docs))
	for _, doc := range docs {
		list := decodePriceList(doc.ID, doc.Data)
		if list.IsActive(now) {
			lists = append(lists, list)
		}
	}
	return lists, nil
}

type priceListDocument struct {
	Name     string                   `firestore:"name"`
	Status   string                   `firestore:"status"`
	Entries  []priceListEntryDocument `firestore:"entries,omitempty"`
	StartsAt *time.Time               `firestore:"startsAt,omitempty"`
	EndsAt   *time.Time               `firestore:"endsAt,omitempty"`
}

type priceListEntryDocument struct {
	ProductID   string `firestore:"productId"`
	VariantID   string `firestore:"variantId,omitempty"`
	Currency    string `firestore:"currency"`
	Amount      int64  `firestore:"amount"`
	MinQuantity int64  `firestore:"minQuantity,omitempty"`
	MaxQuantity int64  `firestore:"maxQuantity,omitempty"`
}

func decodePriceList(id string, doc priceListDocument) domain.PriceList {
	list := domain.PriceList{
		ID:       id,
		Name:     doc.Name,
		Status:   domain.PriceListStatus(doc.Status),
		StartsAt: doc.StartsAt,
		EndsAt:   doc.EndsAt,
	}
	for _, entry := range doc.Entries {
		list.Entries = append(list.Entries, domain.PriceListEntry{
			ProductID:   entry.ProductID,
			VariantID:   entry.VariantID,
			Currency:    strings.ToUpper(strings.TrimSpace(entry.Currency)),
			Amount:      entry.Amount,
			MinQuantity: entry.MinQuantity,
			MaxQuantity: entry.MaxQuantity,
		})
	}
	return list
}

var _ repositories.PriceListRepository = (*PriceListRepository)(nil)
