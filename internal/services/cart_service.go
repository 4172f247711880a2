package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/voxsar/commerce-api/internal/domain"
	"github.com/voxsar/commerce-api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: cart repository is required")
	errCartProductsRequired   = errors.New("cart service: product repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrCartNotActive indicates the cart has reached a terminal status.
var ErrCartNotActive = errors.New("cart service: cart not active")

// ErrCartItemNotFound indicates the referenced line item does not exist.
var ErrCartItemNotFound = errors.New("cart service: line item not found")

// ErrProductNotFound indicates the referenced product or variant does not exist.
var ErrProductNotFound = errors.New("cart service: product not found")

// ErrPromotionInvalid indicates the promotion is missing or not applicable.
var ErrPromotionInvalid = errors.New("cart service: invalid promotion")

const defaultSweepBatch = 200

// CartServiceDeps wires persistence, resolvers and lifecycle hooks for cart operations.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Promotions  repositories.PromotionRepository
	TaxRegions  repositories.TaxRegionRepository
	Pricer      PriceResolver
	Taxes       TaxCalculator
	Discounts   PromotionResolver
	Events      EventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	CartTTL     time.Duration
	SweepBatch  int
	Logger      func(context.Context, string, map[string]any)
}

type cartService struct {
	carts      repositories.CartRepository
	products   repositories.ProductRepository
	promotions repositories.PromotionRepository
	taxRegions repositories.TaxRegionRepository
	pricer     PriceResolver
	taxes      TaxCalculator
	discounts  PromotionResolver
	events     EventPublisher
	newID      func() string
	now        func() time.Time
	cartTTL    time.Duration
	sweepBatch int
	logger     func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	ttl := deps.CartTTL
	if ttl <= 0 {
		ttl = domain.DefaultCartTTL
	}
	batch := deps.SweepBatch
	if batch <= 0 {
		batch = defaultSweepBatch
	}

	return &cartService{
		carts:      deps.Carts,
		products:   deps.Products,
		promotions: deps.Promotions,
		taxRegions: deps.TaxRegions,
		pricer:     deps.Pricer,
		taxes:      deps.Taxes,
		discounts:  deps.Discounts,
		events:     deps.Events,
		newID:      idGen,
		now:        func() time.Time { return deps.Clock().UTC() },
		cartTTL:    ttl,
		sweepBatch: batch,
		logger:     logger,
	}, nil
}

// CreateCart creates an ACTIVE cart with the configured expiry window.
func (s *cartService) CreateCart(ctx context.Context, cmd CreateCartCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if err := validateCurrencyCode(currency); err != nil {
		return Cart{}, err
	}

	now := s.now()
	cart := domain.NewCart("cart_"+s.newID(), currency, now)
	cart.ExpiresAt = now.Add(s.cartTTL)
	cart.CustomerID = strings.TrimSpace(cmd.CustomerID)
	cart.SalesChannelID = strings.TrimSpace(cmd.SalesChannelID)
	cart.RegionID = strings.TrimSpace(cmd.RegionID)
	cart.Version = 1
	cart.RecalculateTotals()

	if err := s.carts.Insert(ctx, *cart); err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return *cart, nil
}

// GetCart loads a cart by id.
func (s *cartService) GetCart(ctx context.Context, cartID string) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	return s.loadCart(ctx, cartID)
}

// AddLineItem resolves the catalog product and price, merges the line into
// the cart, recomputes taxes and persists.
func (s *cartService) AddLineItem(ctx context.Context, cmd AddLineItemCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}

	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, cmd.CartID)
	if err != nil {
		return Cart{}, err
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return Cart{}, s.translateRepoError(err)
	}

	variantID := strings.TrimSpace(cmd.VariantID)
	snapshot := ProductSnapshot{
		Title:     product.Title,
		Thumbnail: product.Thumbnail,
		TaxCode:   product.TaxCode,
	}
	if variantID != "" {
		variant := product.Variant(variantID)
		if variant == nil {
			return Cart{}, fmt.Errorf("%w: variant %s", ErrProductNotFound, variantID)
		}
		snapshot.VariantTitle = variant.Title
		snapshot.SKU = variant.SKU
	}

	unitPrice := int64(0)
	if s.pricer != nil {
		unitPrice, err = s.pricer.ResolvePrice(ctx, ResolvePriceCommand{
			Product:     product,
			VariantID:   variantID,
			Currency:    cart.Currency,
			Quantity:    cmd.Quantity,
			PriceListID: strings.TrimSpace(cmd.PriceListID),
		})
		if err != nil {
			if errors.Is(err, ErrPriceNotFound) || errors.Is(err, ErrPriceInvalidInput) {
				return Cart{}, fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
			}
			return Cart{}, ErrCartUnavailable
		}
	}

	item := CartLineItem{
		ID:        "item_" + s.newID(),
		ProductID: productID,
		VariantID: variantID,
		Quantity:  cmd.Quantity,
		UnitPrice: unitPrice,
		Snapshot:  snapshot,
		AddedAt:   s.now(),
	}
	if err := cart.AddLineItem(item); err != nil {
		return Cart{}, s.translateDomainError(err)
	}

	return s.recalcAndPersist(ctx, cart)
}

// UpdateLineItem changes a line's quantity. Zero routes to removal.
func (s *cartService) UpdateLineItem(ctx context.Context, cmd UpdateLineItemCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	if cmd.Quantity < 0 {
		return Cart{}, fmt.Errorf("%w: quantity must not be negative", ErrCartInvalidInput)
	}
	if cmd.Quantity == 0 {
		return s.RemoveLineItem(ctx, RemoveLineItemCommand{CartID: cmd.CartID, ItemID: cmd.ItemID})
	}

	cart, err := s.loadCart(ctx, cmd.CartID)
	if err != nil {
		return Cart{}, err
	}

	idx := cart.FindItem(strings.TrimSpace(cmd.ItemID))
	if idx < 0 {
		return Cart{}, ErrCartItemNotFound
	}
	if err := cart.UpdateLineItem(cart.Items[idx].ID, cmd.Quantity, cart.Items[idx].UnitPrice); err != nil {
		return Cart{}, s.translateDomainError(err)
	}

	return s.recalcAndPersist(ctx, cart)
}

// RemoveLineItem deletes a line from the cart.
func (s *cartService) RemoveLineItem(ctx context.Context, cmd RemoveLineItemCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}

	cart, err := s.loadCart(ctx, cmd.CartID)
	if err != nil {
		return Cart{}, err
	}
	if err := cart.RemoveLineItem(strings.TrimSpace(cmd.ItemID)); err != nil {
		return Cart{}, s.translateDomainError(err)
	}

	return s.recalcAndPersist(ctx, cart)
}

// ApplyDiscount loads the promotion by id or code, values it against the
// cart, and records the applied discount. Re-applying the same promotion
// replaces the prior entry.
func (s *cartService) ApplyDiscount(ctx context.Context, cmd ApplyDiscountCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	if s.promotions == nil || s.discounts == nil {
		return Cart{}, ErrCartUnavailable
	}

	promotionID := strings.TrimSpace(cmd.PromotionID)
	code := strings.TrimSpace(cmd.Code)
	if promotionID == "" && code == "" {
		return Cart{}, fmt.Errorf("%w: promotion_id or code is required", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, cmd.CartID)
	if err != nil {
		return Cart{}, err
	}

	var promotion Promotion
	if promotionID != "" {
		promotion, err = s.promotions.FindByID(ctx, promotionID)
	} else {
		promotion, err = s.promotions.FindByCode(ctx, code)
	}
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrPromotionInvalid
		}
		return Cart{}, s.translateRepoError(err)
	}

	discount, err := s.discounts.Resolve(promotion, cart, s.now())
	if err != nil {
		if errors.Is(err, ErrPromotionNotActive) || errors.Is(err, ErrPromotionUnsupported) {
			return Cart{}, fmt.Errorf("%w: %v", ErrPromotionInvalid, err)
		}
		return Cart{}, ErrCartUnavailable
	}
	discount.ID = "disc_" + s.newID()

	if err := cart.ApplyDiscount(discount); err != nil {
		return Cart{}, s.translateDomainError(err)
	}

	return s.recalcAndPersist(ctx, cart)
}

// RemoveDiscount removes an applied discount.
func (s *cartService) RemoveDiscount(ctx context.Context, cmd RemoveDiscountCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}

	cart, err := s.loadCart(ctx, cmd.CartID)
	if err != nil {
		return Cart{}, err
	}
	if err := cart.RemoveDiscount(strings.TrimSpace(cmd.DiscountID)); err != nil {
		return Cart{}, s.translateDomainError(err)
	}

	return s.recalcAndPersist(ctx, cart)
}

// UpdateAddresses patches addresses and, when the shipping country changes,
// re-resolves the tax region before recomputing the breakdown.
func (s *cartService) UpdateAddresses(ctx context.Context, cmd UpdateAddressesCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	if cmd.BillingAddress == nil && cmd.ShippingAddress == nil {
		return Cart{}, fmt.Errorf("%w: at least one address is required", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, cmd.CartID)
	if err != nil {
		return Cart{}, err
	}
	if err := cart.SetAddresses(cmd.BillingAddress, cmd.ShippingAddress); err != nil {
		return Cart{}, s.translateDomainError(err)
	}

	if cmd.ShippingAddress != nil {
		country := strings.ToUpper(strings.TrimSpace(cmd.ShippingAddress.CountryCode))
		if country != "" && s.taxRegions != nil {
			subdivision := strings.TrimSpace(cmd.ShippingAddress.Subdivision)
			region, err := s.taxRegions.FindByCountry(ctx, country, subdivision)
			if err != nil {
				if !isRepoNotFound(err) {
					return Cart{}, s.translateRepoError(err)
				}
				cart.RegionID = ""
				cart.TaxBreakdown = nil
				for i := range cart.Items {
					cart.Items[i].TaxTotal = 0
				}
			} else {
				cart.RegionID = region.ID
			}
		}
	}

	return s.recalcAndPersist(ctx, cart)
}

// SetShippingMethod selects the shipping option for the cart.
func (s *cartService) SetShippingMethod(ctx context.Context, cmd SetShippingMethodCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	if strings.TrimSpace(cmd.ShippingOptionID) == "" {
		return Cart{}, fmt.Errorf("%w: shipping_option_id is required", ErrCartInvalidInput)
	}
	if cmd.Price < 0 {
		return Cart{}, fmt.Errorf("%w: shipping price must not be negative", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, cmd.CartID)
	if err != nil {
		return Cart{}, err
	}
	method := ShippingMethod{
		ID:               "ship_" + s.newID(),
		ShippingOptionID: strings.TrimSpace(cmd.ShippingOptionID),
		Name:             strings.TrimSpace(cmd.Name),
		Price:            cmd.Price,
	}
	if err := cart.SetShippingMethod(method); err != nil {
		return Cart{}, s.translateDomainError(err)
	}

	return s.recalcAndPersist(ctx, cart)
}

// SetPaymentSession attaches a gateway payment session reference.
func (s *cartService) SetPaymentSession(ctx context.Context, cmd SetPaymentSessionCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	providerID := strings.TrimSpace(cmd.ProviderID)
	intentID := strings.TrimSpace(cmd.PaymentIntentID)
	if providerID == "" || intentID == "" {
		return Cart{}, fmt.Errorf("%w: provider_id and payment_intent_id are required", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, cmd.CartID)
	if err != nil {
		return Cart{}, err
	}
	session := PaymentSession{
		ID:              "pays_" + s.newID(),
		ProviderID:      providerID,
		PaymentIntentID: intentID,
		Status:          "pending",
		CreatedAt:       s.now(),
	}
	if err := cart.SetPaymentSession(session); err != nil {
		return Cart{}, s.translateDomainError(err)
	}

	return s.persist(ctx, cart)
}

// ValidateCart reports checkout readiness without mutating anything.
func (s *cartService) ValidateCart(ctx context.Context, cartID string) (CartValidation, error) {
	if s == nil || s.carts == nil {
		return CartValidation{}, ErrCartUnavailable
	}
	cart, err := s.loadCart(ctx, cartID)
	if err != nil {
		return CartValidation{}, err
	}
	validation := validateCheckoutReadiness(cart)
	if cart.IsExpired(s.now()) {
		validation.Warnings = append(validation.Warnings, "Cart has passed its expiry deadline")
	}
	return validation, nil
}

// AbandonCart transitions the cart into its terminal ABANDONED state.
func (s *cartService) AbandonCart(ctx context.Context, cartID string) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	cart, err := s.loadCart(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	if err := cart.MarkAbandoned(); err != nil {
		return Cart{}, s.translateDomainError(err)
	}
	return s.persist(ctx, cart)
}

// CleanupExpiredCarts sweeps ACTIVE carts past their deadline into EXPIRED.
// Safe to run concurrently: version conflicts and already-expired carts are
// skipped, so re-running is a no-op.
func (s *cartService) CleanupExpiredCarts(ctx context.Context) (int, error) {
	if s == nil || s.carts == nil {
		return 0, ErrCartUnavailable
	}

	now := s.now()
	carts, err := s.carts.ListExpired(ctx, repositories.ExpiredCartFilter{Before: now, Limit: s.sweepBatch})
	if err != nil {
		return 0, s.translateRepoError(err)
	}

	count := 0
	for i := range carts {
		cart := carts[i]
		if err := cart.MarkExpired(); err != nil {
			continue
		}
		expected := cart.Version
		cart.UpdatedAt = now
		cart.Version = expected + 1
		if _, err := s.carts.Update(ctx, cart, expected); err != nil {
			if isRepoConflict(err) {
				continue
			}
			return count, s.translateRepoError(err)
		}
		count++
		s.publish(ctx, "cart.expired", map[string]any{"cartID": cart.ID})
	}
	return count, nil
}

func validateCheckoutReadiness(cart Cart) CartValidation {
	var validation CartValidation
	if cart.Status != domain.CartStatusActive {
		validation.Errors = append(validation.Errors, "Cart is not active")
	}
	if len(cart.Items) == 0 {
		validation.Errors = append(validation.Errors, "Cart has no line items")
	}
	if strings.TrimSpace(cart.Currency) == "" {
		validation.Errors = append(validation.Errors, "Currency is required")
	}
	if cart.BillingAddress == nil {
		validation.Errors = append(validation.Errors, "Billing address is required")
	}
	if cart.ShippingAddress == nil {
		validation.Errors = append(validation.Errors, "Shipping address is required")
	}
	if cart.ShippingMethod == nil {
		validation.Warnings = append(validation.Warnings, "No shipping method selected")
	}
	if cart.PaymentSession == nil {
		validation.Warnings = append(validation.Warnings, "No payment session attached")
	}
	validation.IsValid = len(validation.Errors) == 0
	return validation
}

func (s *cartService) loadCart(ctx context.Context, cartID string) (Cart, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return Cart{}, ErrCartInvalidInput
	}
	cart, err := s.carts.FindByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartNotFound
		}
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

// recalcAndPersist refreshes the tax breakdown for the cart region and
// writes the cart back with a compare-and-swap on the loaded version.
func (s *cartService) recalcAndPersist(ctx context.Context, cart Cart) (Cart, error) {
	if err := s.refreshTaxes(ctx, &cart); err != nil {
		return Cart{}, err
	}
	return s.persist(ctx, cart)
}

func (s *cartService) refreshTaxes(ctx context.Context, cart *Cart) error {
	if cart.RegionID == "" || s.taxes == nil || s.taxRegions == nil {
		cart.RecalculateTotals()
		return nil
	}
	region, err := s.taxRegions.FindByID(ctx, cart.RegionID)
	if err != nil {
		if isRepoNotFound(err) {
			cart.RegionID = ""
			cart.TaxBreakdown = nil
			for i := range cart.Items {
				cart.Items[i].TaxTotal = 0
			}
			cart.RecalculateTotals()
			return nil
		}
		return s.translateRepoError(err)
	}
	result, err := s.taxes.Calculate(ctx, region, cart.Items)
	if err != nil {
		s.logger(ctx, "cart.tax_calculation_failed", map[string]any{
			"cartID": cart.ID,
			"error":  err.Error(),
		})
		return ErrCartUnavailable
	}
	if err := cart.SetTaxBreakdown(result.Lines, result.PerItem); err != nil {
		return s.translateDomainError(err)
	}
	return nil
}

func (s *cartService) persist(ctx context.Context, cart Cart) (Cart, error) {
	expected := cart.Version
	cart.UpdatedAt = s.now()
	cart.Version = expected + 1
	saved, err := s.carts.Update(ctx, cart, expected)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *cartService) publish(ctx context.Context, event string, payload map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event, payload); err != nil {
		s.logger(ctx, "cart.event_publish_failed", map[string]any{
			"event": event,
			"error": err.Error(),
		})
	}
}

func (s *cartService) translateDomainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrCartNotActive):
		return ErrCartNotActive
	case errors.Is(err, domain.ErrLineItemNotFound):
		return ErrCartItemNotFound
	case errors.Is(err, domain.ErrDiscountNotFound):
		return fmt.Errorf("%w: discount not found", ErrCartInvalidInput)
	case errors.Is(err, domain.ErrInvalidQuantity):
		return fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}
	return ErrCartUnavailable
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
		return ErrCartUnavailable
	}
	return ErrCartUnavailable
}

func validateCurrencyCode(code string) error {
	if len(code) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrCartInvalidInput)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrCartInvalidInput)
		}
	}
	return nil
}
