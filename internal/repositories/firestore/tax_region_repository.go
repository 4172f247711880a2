package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/voxsar/commerce-api/internal/domain"
	pfirestore "github.com/voxsar/commerce-api/internal/platform/firestore"
	"github.com/voxsar/commerce-api/internal/repositories"
)

const taxRegionCollection = "tax_regions"

// TaxRegionRepository resolves tax regions for address countries.
type TaxRegionRepository struct {
	base *pfirestore.BaseRepository[taxRegionDocument]
}

// NewTaxRegionRepository constructs a Firestore-backed tax region repository.
func NewTaxRegionRepository(provider *pfirestore.Provider) (*TaxRegionRepository, error) {
	if provider == nil {
		return nil, errors.New("tax region repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[taxRegionDocument](provider, taxRegionCollection, nil, nil)
	return &TaxRegionRepository{base: base}, nil
}

// FindByID loads the region with the given identifier.
func (r *TaxRegionRepository) FindByID(ctx context.Context, regionID string) (domain.TaxRegion, error) {
	if r == nil || r.base == nil {
		return domain.TaxRegion{}, errors.New("tax region repository not initialised")
	}
	id := strings.TrimSpace(regionID)
	if id == "" {
		return domain.TaxRegion{}, errors.New("tax region repository: region id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.TaxRegion{}, err
	}
	return decodeTaxRegion(doc.ID, doc.Data), nil
}

// FindByCountry resolves the most specific region for the address: a
// subdivision match first, then the country-level region.
func (r *TaxRegionRepository) FindByCountry(ctx context.Context, countryCode, subdivision string) (domain.TaxRegion, error) {
	if r == nil || r.base == nil {
		return domain.TaxRegion{}, errors.New("tax region repository not initialised")
	}
	country := strings.ToUpper(strings.TrimSpace(countryCode))
	if country == "" {
		return domain.TaxRegion{}, errors.New("tax region repository: country code is required")
	}

	if sub := strings.ToUpper(strings.TrimSpace(subdivision)); sub != "" {
		region, err := r.queryOne(ctx, country, sub)
		if err == nil {
			return region, nil
		}
		if !isNotFound(err) {
			return domain.TaxRegion{}, err
		}
	}
	return r.queryOne(ctx, country, "")
}

func (r *TaxRegionRepository) queryOne(ctx context.Context, country, subdivision string) (domain.TaxRegion, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("countryCode", "==", country)
		if subdivision != "" {
			q = q.Where("subdivision", "==", subdivision)
		} else {
			q = q.Where("subdivision", "==", "")
		}
		return q.Limit(1)
	})
	if err != nil {
		return domain.TaxRegion{}, err
	}
	if len(docs) == 0 {
		return domain.TaxRegion{}, pfirestore.WrapError("tax_regions.findByCountry",
			status.Errorf(codes.NotFound, "no tax region for %s/%s", country, subdivision))
	}
	return decodeTaxRegion(docs[0].ID, docs[0].Data), nil
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

type taxRegionDocument struct {
	CountryCode     string                `firestore:"countryCode"`
	Subdivision     string                `firestore:"subdivision"`
	ParentID        string                `firestore:"parentId,omitempty"`
	DefaultRate     *float64              `firestore:"defaultRate,omitempty"`
	DefaultRateName string                `firestore:"defaultRateName,omitempty"`
	Overrides       []taxOverrideDocument `firestore:"overrides,omitempty"`
}

type taxOverrideDocument struct {
	Name       string   `firestore:"name"`
	Rate       float64  `firestore:"rate"`
	Combinable bool     `firestore:"combinable"`
	ProductIDs []string `firestore:"productIds,omitempty"`
	TaxCodes   []string `firestore:"taxCodes,omitempty"`
}

func decodeTaxRegion(id string, doc taxRegionDocument) domain.TaxRegion {
	region := domain.TaxRegion{
		ID:              id,
		CountryCode:     doc.CountryCode,
		Subdivision:     doc.Subdivision,
		ParentID:        doc.ParentID,
		DefaultRate:     doc.DefaultRate,
		DefaultRateName: doc.DefaultRateName,
	}
	for _, override := range doc.Overrides {
		region.Overrides = append(region.Overrides, domain.TaxRateOverride{
			Name:       override.Name,
			Rate:       override.Rate,
			Combinable: override.Combinable,
			ProductIDs: override.ProductIDs,
			TaxCodes:   override.TaxCodes,
		})
	}
	return region
}

var _ repositories.TaxRegionRepository = (*TaxRegionRepository)(nil)
