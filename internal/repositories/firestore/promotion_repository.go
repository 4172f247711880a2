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

const promotionCollection = "promotions"

// PromotionRepository reads promotion definitions and maintains usage counters.
type PromotionRepository struct {
	base *pfirestore.BaseRepository[promotionDocument]
}

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[promotionDocument](provider, promotionCollection, nil, nil)
	return &PromotionRepository{base: base}, nil
}

// FindByID loads the promotion with the given identifier.
func (r *PromotionRepository) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	if r == nil || r.base == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	id := strings.TrimSpace(promotionID)
	if id == "" {
		return domain.Promotion{}, errors.New("promotion repository: promotion id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Promotion{}, err
	}
	return decodePromotion(doc.ID, doc.Data), nil
}

// FindByCode resolves a promotion by its redemption code. Codes are stored
// upper-cased.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	if r == nil || r.base == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return domain.Promotion{}, errors.New("promotion repository: code is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Promotion{}, err
	}
	if len(docs) == 0 {
		return domain.Promotion{}, pfirestore.WrapError("promotions.findByCode",
			status.Errorf(codes.NotFound, "no promotion with code %s", normalized))
	}
	return decodePromotion(docs[0].ID, docs[0].Data), nil
}

// IncrementUsage bumps the redemption counter for the promotion.
func (r *PromotionRepository) IncrementUsage(ctx context.Context, promotionID string) error {
	if r == nil || r.base == nil {
		return errors.New("promotion repository not initialised")
	}
	id := strings.TrimSpace(promotionID)
	if id == "" {
		return errors.New("promotion repository: promotion id is required")
	}

	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "usageCount", Value: firestore.Increment(1)},
	})
	return err
}

type promotionDocument struct {
	Code       string     `firestore:"code,omitempty"`
	Status     string     `firestore:"status"`
	Type       string     `firestore:"type"`
	Value      int64      `firestore:"value"`
	UsageLimit int64      `firestore:"usageLimit,omitempty"`
	UsageCount int64      `firestore:"usageCount"`
	StartsAt   *time.Time `firestore:"startsAt,omitempty"`
	EndsAt     *time.Time `firestore:"endsAt,omitempty"`
}

func decodePromotion(id string, doc promotionDocument) domain.Promotion {
	return domain.Promotion{
		ID:         id,
		Code:       doc.Code,
		Status:     domain.PromotionStatus(doc.Status),
		Type:       domain.DiscountType(doc.Type),
		Value:      doc.Value,
		UsageLimit: doc.UsageLimit,
		UsageCount: doc.UsageCount,
		StartsAt:   doc.StartsAt,
		EndsAt:     doc.EndsAt,
	}
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)
