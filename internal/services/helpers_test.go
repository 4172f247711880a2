package services

import (
	"context"
	"fmt"
	"time"

	domain "github.com/voxsar/commerce-api/internal/domain"
	"github.com/voxsar/commerce-api/internal/repositories"
)

var fixedNow = time.Date(2026, 4, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func sequenceIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

// stubRepoError satisfies repositories.RepositoryError for tests.
type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return e.msg }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

var (
	errStubNotFound    = stubRepoError{msg: "not found", notFound: true}
	errStubConflict    = stubRepoError{msg: "version conflict", conflict: true}
	errStubUnavailable = stubRepoError{msg: "backend down", unavailable: true}
)

type stubCartRepository struct {
	insertFn      func(ctx context.Context, cart domain.Cart) error
	updateFn      func(ctx context.Context, cart domain.Cart, expectedVersion int64) (domain.Cart, error)
	findByIDFn    func(ctx context.Context, cartID string) (domain.Cart, error)
	listExpiredFn func(ctx context.Context, filter repositories.ExpiredCartFilter) ([]domain.Cart, error)
}

func (s *stubCartRepository) Insert(ctx context.Context, cart domain.Cart) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, cart)
}

func (s *stubCartRepository) Update(ctx context.Context, cart domain.Cart, expectedVersion int64) (domain.Cart, error) {
	if s.updateFn == nil {
		return cart, nil
	}
	return s.updateFn(ctx, cart, expectedVersion)
}

func (s *stubCartRepository) FindByID(ctx context.Context, cartID string) (domain.Cart, error) {
	if s.findByIDFn == nil {
		return domain.Cart{}, errStubNotFound
	}
	return s.findByIDFn(ctx, cartID)
}

func (s *stubCartRepository) ListExpired(ctx context.Context, filter repositories.ExpiredCartFilter) ([]domain.Cart, error) {
	if s.listExpiredFn == nil {
		return nil, nil
	}
	return s.listExpiredFn(ctx, filter)
}

type stubOrderRepository struct {
	insertFn       func(ctx context.Context, order domain.Order) error
	updateFn       func(ctx context.Context, order domain.Order) error
	findByIDFn     func(ctx context.Context, orderID string) (domain.Order, error)
	findByCartIDFn func(ctx context.Context, cartID string) (domain.Order, error)
	listFn         func(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, order)
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, order)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn == nil {
		return domain.Order{}, errStubNotFound
	}
	return s.findByIDFn(ctx, orderID)
}

func (s *stubOrderRepository) FindByCartID(ctx context.Context, cartID string) (domain.Order, error) {
	if s.findByCartIDFn == nil {
		return domain.Order{}, errStubNotFound
	}
	return s.findByCartIDFn(ctx, cartID)
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, filter)
}

type stubPaymentRepository struct {
	insertFn      func(ctx context.Context, payment domain.Payment) error
	updateFn      func(ctx context.Context, payment domain.Payment) error
	findByIDFn    func(ctx context.Context, paymentID string) (domain.Payment, error)
	listByOrderFn func(ctx context.Context, orderID string) ([]domain.Payment, error)
}

func (s *stubPaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, payment)
}

func (s *stubPaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, payment)
}

func (s *stubPaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if s.findByIDFn == nil {
		return domain.Payment{}, errStubNotFound
	}
	return s.findByIDFn(ctx, paymentID)
}

func (s *stubPaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if s.listByOrderFn == nil {
		return nil, nil
	}
	return s.listByOrderFn(ctx, orderID)
}

type stubPaymentIntentRepository struct {
	upsertFn       func(ctx context.Context, intent domain.PaymentIntent) error
	findByIDFn     func(ctx context.Context, intentID string) (domain.PaymentIntent, error)
	updateStatusFn func(ctx context.Context, intentID string, status domain.PaymentIntentStatus, updatedAt time.Time) (domain.PaymentIntent, error)
}

func (s *stubPaymentIntentRepository) Upsert(ctx context.Context, intent domain.PaymentIntent) error {
	if s.upsertFn == nil {
		return nil
	}
	return s.upsertFn(ctx, intent)
}

func (s *stubPaymentIntentRepository) FindByID(ctx context.Context, intentID string) (domain.PaymentIntent, error) {
	if s.findByIDFn == nil {
		return domain.PaymentIntent{}, errStubNotFound
	}
	return s.findByIDFn(ctx, intentID)
}

func (s *stubPaymentIntentRepository) UpdateStatus(ctx context.Context, intentID string, status domain.PaymentIntentStatus, updatedAt time.Time) (domain.PaymentIntent, error) {
	if s.updateStatusFn == nil {
		return domain.PaymentIntent{ID: intentID, Status: status, UpdatedAt: updatedAt}, nil
	}
	return s.updateStatusFn(ctx, intentID, status, updatedAt)
}

type stubProductRepository struct {
	findByIDFn func(ctx context.Context, productID string) (domain.Product, error)
}

func (s *stubProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findByIDFn == nil {
		return domain.Product{}, errStubNotFound
	}
	return s.findByIDFn(ctx, productID)
}

type stubPriceListRepository struct {
	findByIDFn   func(ctx context.Context, priceListID string) (domain.PriceList, error)
	listActiveFn func(ctx context.Context, now time.Time) ([]domain.PriceList, error)
}

func (s *stubPriceListRepository) FindByID(ctx context.Context, priceListID string) (domain.PriceList, error) {
	if s.findByIDFn == nil {
		return domain.PriceList{}, errStubNotFound
	}
	return s.findByIDFn(ctx, priceListID)
}

func (s *stubPriceListRepository) ListActive(ctx context.Context, now time.Time) ([]domain.PriceList, error) {
	if s.listActiveFn == nil {
		return nil, nil
	}
	return s.listActiveFn(ctx, now)
}

type stubTaxRegionRepository struct {
	findByIDFn      func(ctx context.Context, regionID string) (domain.TaxRegion, error)
	findByCountryFn func(ctx context.Context, countryCode, subdivision string) (domain.TaxRegion, error)
}

func (s *stubTaxRegionRepository) FindByID(ctx context.Context, regionID string) (domain.TaxRegion, error) {
	if s.findByIDFn == nil {
		return domain.TaxRegion{}, errStubNotFound
	}
	return s.findByIDFn(ctx, regionID)
}

func (s *stubTaxRegionRepository) FindByCountry(ctx context.Context, countryCode, subdivision string) (domain.TaxRegion, error) {
	if s.findByCountryFn == nil {
		return domain.TaxRegion{}, errStubNotFound
	}
	return s.findByCountryFn(ctx, countryCode, subdivision)
}

type stubPromotionRepository struct {
	findByIDFn       func(ctx context.Context, promotionID string) (domain.Promotion, error)
	findByCodeFn     func(ctx context.Context, code string) (domain.Promotion, error)
	incrementUsageFn func(ctx context.Context, promotionID string) error
}

func (s *stubPromotionRepository) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	if s.findByIDFn == nil {
		return domain.Promotion{}, errStubNotFound
	}
	return s.findByIDFn(ctx, promotionID)
}

func (s *stubPromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	if s.findByCodeFn == nil {
		return domain.Promotion{}, errStubNotFound
	}
	return s.findByCodeFn(ctx, code)
}

func (s *stubPromotionRepository) IncrementUsage(ctx context.Context, promotionID string) error {
	if s.incrementUsageFn == nil {
		return nil
	}
	return s.incrementUsageFn(ctx, promotionID)
}

type stubGateway struct {
	createFn  func(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentConfirmation, error)
	confirmFn func(ctx context.Context, cmd ConfirmPaymentCommand) (PaymentConfirmation, error)
}

func (s *stubGateway) CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentConfirmation, error) {
	if s.createFn == nil {
		return PaymentConfirmation{}, nil
	}
	return s.createFn(ctx, cmd)
}

func (s *stubGateway) ConfirmPaymentIntent(ctx context.Context, cmd ConfirmPaymentCommand) (PaymentConfirmation, error) {
	if s.confirmFn == nil {
		return PaymentConfirmation{}, nil
	}
	return s.confirmFn(ctx, cmd)
}

type stubEventPublisher struct {
	publishFn func(ctx context.Context, event string, payload map[string]any) error
}

func (s *stubEventPublisher) Publish(ctx context.Context, event string, payload map[string]any) error {
	if s.publishFn == nil {
		return nil
	}
	return s.publishFn(ctx, event, payload)
}

// memoryCartRepository backs multi-step service tests with real CAS behaviour.
type memoryCartRepository struct {
	carts map[string]domain.Cart
}

func newMemoryCartRepository(carts ...domain.Cart) *memoryCartRepository {
	repo := &memoryCartRepository{carts: make(map[string]domain.Cart)}
	for _, cart := range carts {
		repo.carts[cart.ID] = cart
	}
	return repo
}

func (r *memoryCartRepository) Insert(_ context.Context, cart domain.Cart) error {
	if _, ok := r.carts[cart.ID]; ok {
		return errStubConflict
	}
	r.carts[cart.ID] = cart
	return nil
}

func (r *memoryCartRepository) Update(_ context.Context, cart domain.Cart, expectedVersion int64) (domain.Cart, error) {
	current, ok := r.carts[cart.ID]
	if !ok {
		return domain.Cart{}, errStubNotFound
	}
	if current.Version != expectedVersion {
		return domain.Cart{}, errStubConflict
	}
	r.carts[cart.ID] = cart
	return cart, nil
}

func (r *memoryCartRepository) FindByID(_ context.Context, cartID string) (domain.Cart, error) {
	cart, ok := r.carts[cartID]
	if !ok {
		return domain.Cart{}, errStubNotFound
	}
	return cart, nil
}

func (r *memoryCartRepository) ListExpired(_ context.Context, filter repositories.ExpiredCartFilter) ([]domain.Cart, error) {
	var out []domain.Cart
	for _, cart := range r.carts {
		if cart.Status == domain.CartStatusActive && cart.IsExpired(filter.Before) {
			out = append(out, cart)
		}
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
