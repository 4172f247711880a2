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

const paymentCollection = "payments"

// PaymentRepository stores payment records linked to orders.
type PaymentRepository struct {
	base *pfirestore.BaseRepository[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection, nil, nil)
	return &PaymentRepository{base: base}, nil
}

// Insert creates the payment document, failing when the id already exists.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return errors.New("payment repository: payment id is required")
	}
	_, err := r.base.Create(ctx, paymentID, encodePayment(payment))
	return err
}

// Update overwrites the payment document.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return errors.New("payment repository: payment id is required")
	}
	_, err := r.base.Set(ctx, paymentID, encodePayment(payment))
	return err
}

// FindByID loads the payment with the given identifier.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return decodePayment(doc.ID, doc.Data), nil
}

// ListByOrder returns the payments recorded against an order.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, errors.New("payment repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", id).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	payments := make([]domain.Payment, 0, len(docs))
	for _, doc := range docs {
		payments = append(payments, decodePayment(doc.ID, doc.Data))
	}
	return payments, nil
}

type paymentDocument struct {
	OrderID         string     `firestore:"orderId"`
	CartID          string     `firestore:"cartId,omitempty"`
	ProviderID      string     `firestore:"providerId"`
	PaymentIntentID string     `firestore:"paymentIntentId"`
	Status          string     `firestore:"status"`
	Amount          int64      `firestore:"amount"`
	Currency        string     `firestore:"currency"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	CapturedAt      *time.Time `firestore:"capturedAt,omitempty"`
}

func encodePayment(payment domain.Payment) paymentDocument {
	doc := paymentDocument{
		OrderID:         strings.TrimSpace(payment.OrderID),
		CartID:          strings.TrimSpace(payment.CartID),
		ProviderID:      strings.TrimSpace(payment.ProviderID),
		PaymentIntentID: strings.TrimSpace(payment.PaymentIntentID),
		Status:          string(payment.Status),
		Amount:          payment.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(payment.Currency)),
		CreatedAt:       payment.CreatedAt.UTC(),
	}
	if payment.CapturedAt != nil {
		doc.CapturedAt = timePtr(*payment.CapturedAt)
	}
	return doc
}

func decodePayment(id string, doc paymentDocument) domain.Payment {
	return domain.Payment{
		ID:              id,
		OrderID:         doc.OrderID,
		CartID:          doc.CartID,
		ProviderID:      doc.ProviderID,
		PaymentIntentID: doc.PaymentIntentID,
		Status:          domain.PaymentStatus(doc.Status),
		Amount:          doc.Amount,
		Currency:        doc.Currency,
		CreatedAt:       doc.CreatedAt,
		CapturedAt:      doc.CapturedAt,
	}
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)
