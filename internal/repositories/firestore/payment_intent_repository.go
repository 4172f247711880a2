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

const paymentIntentCollection = "payment_intents"

// PaymentIntentRepository tracks the local view of gateway payment intents.
type PaymentIntentRepository struct {
	base *pfirestore.BaseRepository[paymentIntentDocument]
}

// NewPaymentIntentRepository constructs a Firestore-backed intent repository.
func NewPaymentIntentRepository(provider *pfirestore.Provider) (*PaymentIntentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment intent repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentIntentDocument](provider, paymentIntentCollection, nil, nil)
	return &PaymentIntentRepository{base: base}, nil
}

// Upsert writes the intent document, creating or replacing it.
func (r *PaymentIntentRepository) Upsert(ctx context.Context, intent domain.PaymentIntent) error {
	if r == nil || r.base == nil {
		return errors.New("payment intent repository not initialised")
	}
	intentID := strings.TrimSpace(intent.ID)
	if intentID == "" {
		return errors.New("payment intent repository: intent id is required")
	}
	_, err := r.base.Set(ctx, intentID, encodePaymentIntent(intent))
	return err
}

// FindByID loads the intent with the given identifier.
func (r *PaymentIntentRepository) FindByID(ctx context.Context, intentID string) (domain.PaymentIntent, error) {
	if r == nil || r.base == nil {
		return domain.PaymentIntent{}, errors.New("payment intent repository not initialised")
	}
	id := strings.TrimSpace(intentID)
	if id == "" {
		return domain.PaymentIntent{}, errors.New("payment intent repository: intent id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	return decodePaymentIntent(doc.ID, doc.Data), nil
}

// UpdateStatus records a status transition and returns the updated intent.
func (r *PaymentIntentRepository) UpdateStatus(ctx context.Context, intentID string, status domain.PaymentIntentStatus, updatedAt time.Time) (domain.PaymentIntent, error) {
	if r == nil || r.base == nil {
		return domain.PaymentIntent{}, errors.New("payment intent repository not initialised")
	}
	id := strings.TrimSpace(intentID)
	if id == "" {
		return domain.PaymentIntent{}, errors.New("payment intent repository: intent id is required")
	}

	updates := []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	}
	if _, err := r.base.Update(ctx, id, updates); err != nil {
		return domain.PaymentIntent{}, err
	}
	return r.FindByID(ctx, id)
}

type paymentIntentDocument struct {
	ProviderID   string    `firestore:"providerId"`
	ProviderRef  string    `firestore:"providerRef,omitempty"`
	Status       string    `firestore:"status"`
	Amount       int64     `firestore:"amount"`
	Currency     string    `firestore:"currency"`
	ClientSecret string    `firestore:"clientSecret,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func encodePaymentIntent(intent domain.PaymentIntent) paymentIntentDocument {
	return paymentIntentDocument{
		ProviderID:   strings.TrimSpace(intent.ProviderID),
		ProviderRef:  strings.TrimSpace(intent.ProviderRef),
		Status:       string(intent.Status),
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(strings.TrimSpace(intent.Currency)),
		ClientSecret: intent.ClientSecret,
		CreatedAt:    intent.CreatedAt.UTC(),
		UpdatedAt:    intent.UpdatedAt.UTC(),
	}
}

func decodePaymentIntent(id string, doc paymentIntentDocument) domain.PaymentIntent {
	return domain.PaymentIntent{
		ID:           id,
		ProviderID:   doc.ProviderID,
		ProviderRef:  doc.ProviderRef,
		Status:       domain.PaymentIntentStatus(doc.Status),
		Amount:       doc.Amount,
		Currency:     doc.Currency,
		ClientSecret: doc.ClientSecret,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

var _ repositories.PaymentIntentRepository = (*PaymentIntentRepository)(nil)
