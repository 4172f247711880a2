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
	errCheckoutCartsRequired   = errors.New("checkout service: cart repository is required")
	errCheckoutOrdersRequired  = errors.New("checkout service: order repository is required")
	errCheckoutGatewayRequired = errors.New("checkout service: payment gateway is required")
	errCheckoutClockRequired   = errors.New("checkout service: clock is required")
)

// ErrCheckoutInvalidInput indicates the caller supplied invalid input.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutUnavailable indicates a backend dependency failed.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

// ErrCheckoutConflict indicates the cart changed underneath the checkout.
var ErrCheckoutConflict = errors.New("checkout service: conflict")

// ErrPaymentIntentNotFound indicates the referenced payment intent does not exist.
var ErrPaymentIntentNotFound = errors.New("checkout service: payment intent not found")

// ErrPaymentNotSucceeded indicates the gateway declined or deferred the payment.
var ErrPaymentNotSucceeded = errors.New("checkout service: payment not succeeded")

// ErrGatewayTimeout indicates the confirm call exceeded its deadline. The
// local pending shell is kept for reconciliation; retrying checkout is safe.
var ErrGatewayTimeout = errors.New("checkout service: gateway timeout")

// CheckoutValidationError carries field-level readiness failures. No side
// effects have occurred when it is returned.
type CheckoutValidationError struct {
	Errors []string
}

// Error implements the error interface.
func (e *CheckoutValidationError) Error() string {
	return fmt.Sprintf("checkout service: cart not ready [%s]", strings.Join(e.Errors, "; "))
}

// PaymentGateway is the external payment contract the checkout depends on.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentConfirmation, error)
	ConfirmPaymentIntent(ctx context.Context, cmd ConfirmPaymentCommand) (PaymentConfirmation, error)
}

// CreatePaymentIntentCommand opens a gateway-side intent for the cart total.
type CreatePaymentIntentCommand struct {
	ProviderID     string
	Amount         int64
	Currency       string
	CustomerID     string
	IdempotencyKey string
}

// ConfirmPaymentCommand identifies the gateway-side intent to confirm.
type ConfirmPaymentCommand struct {
	ProviderID      string
	PaymentIntentID string
	Amount          int64
	Currency        string
}

// PaymentConfirmation is the normalized gateway response for intent operations.
type PaymentConfirmation struct {
	IntentID     string
	ProviderRef  string
	Status       domain.PaymentIntentStatus
	ClientSecret string
}

const defaultGatewayTimeout = 20 * time.Second

// CheckoutServiceDeps wires persistence, the gateway and lifecycle hooks.
type CheckoutServiceDeps struct {
	Carts          repositories.CartRepository
	Orders         repositories.OrderRepository
	Payments       repositories.PaymentRepository
	PaymentIntents repositories.PaymentIntentRepository
	Promotions     repositories.PromotionRepository
	UnitOfWork     repositories.UnitOfWork
	Gateway        PaymentGateway
	Events         EventPublisher
	Clock          func() time.Time
	IDGenerator    func() string
	GatewayTimeout time.Duration
	Logger         func(context.Context, string, map[string]any)
}

type checkoutService struct {
	carts          repositories.CartRepository
	orders         repositories.OrderRepository
	payments       repositories.PaymentRepository
	intents        repositories.PaymentIntentRepository
	promotions     repositories.PromotionRepository
	uow            repositories.UnitOfWork
	gateway        PaymentGateway
	events         EventPublisher
	now            func() time.Time
	newID          func() string
	gatewayTimeout time.Duration
	logger         func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errCheckoutCartsRequired
	}
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}
	if deps.Gateway == nil {
		return nil, errCheckoutGatewayRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	timeout := deps.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}

	return &checkoutService{
		carts:          deps.Carts,
		orders:         deps.Orders,
		payments:       deps.Payments,
		intents:        deps.PaymentIntents,
		promotions:     deps.Promotions,
		uow:            deps.UnitOfWork,
		gateway:        deps.Gateway,
		events:         deps.Events,
		now:            func() time.Time { return deps.Clock().UTC() },
		newID:          idGen,
		gatewayTimeout: timeout,
		logger:         logger,
	}, nil
}

// CreatePaymentSession opens a gateway payment intent for the current cart
// total and attaches the resulting session to the cart. Re-running replaces
// the previous session; the gateway idempotency key is derived from the cart
// id and version so retries of the same cart state do not open new intents.
func (s *checkoutService) CreatePaymentSession(ctx context.Context, cmd CreatePaymentSessionCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCheckoutUnavailable
	}

	cartID := strings.TrimSpace(cmd.CartID)
	if cartID == "" {
		return Cart{}, ErrCheckoutInvalidInput
	}

	cart, err := s.loadCart(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	if cart.Status != domain.CartStatusActive {
		return Cart{}, ErrCartNotActive
	}
	if len(cart.Items) == 0 {
		return Cart{}, fmt.Errorf("%w: cart has no items", ErrCheckoutInvalidInput)
	}

	confirmation, err := s.gateway.CreatePaymentIntent(ctx, CreatePaymentIntentCommand{
		ProviderID:     strings.TrimSpace(cmd.ProviderID),
		Amount:         cart.Totals.Total,
		Currency:       cart.Currency,
		CustomerID:     cart.CustomerID,
		IdempotencyKey: fmt.Sprintf("%s-v%d", cart.ID, cart.Version),
	})
	if err != nil {
		s.logger(ctx, "checkout.intent_create_failed", map[string]any{
			"cartID": cart.ID,
			"error":  err.Error(),
		})
		return Cart{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	now := s.now()
	if s.intents != nil {
		err = s.intents.Upsert(ctx, PaymentIntent{
			ID:           confirmation.IntentID,
			ProviderID:   strings.TrimSpace(cmd.ProviderID),
			ProviderRef:  confirmation.ProviderRef,
			Status:       confirmation.Status,
			Amount:       cart.Totals.Total,
			Currency:     cart.Currency,
			ClientSecret: confirmation.ClientSecret,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return Cart{}, s.translateRepoError(err)
		}
	}

	session := PaymentSession{
		ID:              "pays_" + s.newID(),
		ProviderID:      strings.TrimSpace(cmd.ProviderID),
		PaymentIntentID: confirmation.IntentID,
		Status:          "pending",
		CreatedAt:       now,
	}
	if err := cart.SetPaymentSession(session); err != nil {
		return Cart{}, s.translateDomainError(err)
	}

	expected := cart.Version
	cart.UpdatedAt = now
	cart.Version = expected + 1
	saved, err := s.carts.Update(ctx, cart, expected)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

// Checkout converts a checkout-ready cart into an immutable order. The order
// exists if and only if the payment confirmed successful: a pending shell is
// persisted before the gateway call and finalized or voided afterwards, so a
// crash between confirmation and finalization is detected and resumed on the
// next attempt instead of re-charging.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error) {
	if s == nil || s.carts == nil {
		return Order{}, ErrCheckoutUnavailable
	}

	cartID := strings.TrimSpace(cmd.CartID)
	if cartID == "" {
		return Order{}, ErrCheckoutInvalidInput
	}

	cart, err := s.loadCart(ctx, cartID)
	if err != nil {
		return Order{}, err
	}

	// A completed cart means a prior attempt finished; return its order.
	if cart.Status == domain.CartStatusCompleted && cart.OrderID != "" {
		return s.findOrder(ctx, cart.OrderID)
	}

	cart, err = s.applyOverrides(ctx, cart, cmd)
	if err != nil {
		return Order{}, err
	}

	validation := validateCheckoutReadiness(cart)
	if cart.PaymentSession == nil {
		validation.Errors = append(validation.Errors, "Payment session is required")
		validation.IsValid = false
	}
	if !validation.IsValid {
		return Order{}, &CheckoutValidationError{Errors: validation.Errors}
	}

	intent, err := s.intents.FindByID(ctx, cart.PaymentSession.PaymentIntentID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrPaymentIntentNotFound
		}
		return Order{}, s.translateRepoError(err)
	}

	// The intent was opened for a specific cart state. A cart mutated since
	// then would charge one amount and record another; the client must
	// recreate the payment session before retrying.
	if intent.Amount != cart.Totals.Total || !strings.EqualFold(intent.Currency, cart.Currency) {
		return Order{}, fmt.Errorf("%w: payment intent amount %d %s does not match cart total %d %s; recreate the payment session",
			ErrCheckoutInvalidInput, intent.Amount, intent.Currency, cart.Totals.Total, cart.Currency)
	}

	order, payment, err := s.ensurePendingShell(ctx, cart, cmd)
	if err != nil {
		return Order{}, err
	}
	if order.Status == domain.OrderStatusCompleted {
		return order, nil
	}

	// Resume path: a previously confirmed intent is never re-confirmed.
	if intent.Status != domain.IntentSucceeded {
		confirmation, err := s.confirm(ctx, cart, intent)
		if err != nil {
			return Order{}, err
		}
		intent.Status = confirmation.Status
		if confirmation.ProviderRef != "" {
			intent.ProviderRef = confirmation.ProviderRef
		}
		if _, err := s.intents.UpdateStatus(ctx, intent.ID, intent.Status, s.now()); err != nil {
			s.logger(ctx, "checkout.intent_update_failed", map[string]any{
				"intentID": intent.ID,
				"error":    err.Error(),
			})
		}
		if intent.Status != domain.IntentSucceeded {
			if err := s.voidShell(ctx, order, payment); err != nil {
				return Order{}, err
			}
			return Order{}, fmt.Errorf("%w: intent status %s", ErrPaymentNotSucceeded, intent.Status)
		}
	}

	return s.finalize(ctx, cart, order, payment)
}

func (s *checkoutService) applyOverrides(ctx context.Context, cart Cart, cmd CheckoutCommand) (Cart, error) {
	changed := false
	if cmd.BillingAddress != nil || cmd.ShippingAddress != nil {
		if err := cart.SetAddresses(cmd.BillingAddress, cmd.ShippingAddress); err != nil {
			return Cart{}, s.translateDomainError(err)
		}
		changed = true
	}
	if cmd.ShippingMethod != nil {
		method := ShippingMethod{
			ID:               "ship_" + s.newID(),
			ShippingOptionID: strings.TrimSpace(cmd.ShippingMethod.ShippingOptionID),
			Name:             strings.TrimSpace(cmd.ShippingMethod.Name),
			Price:            cmd.ShippingMethod.Price,
		}
		if err := cart.SetShippingMethod(method); err != nil {
			return Cart{}, s.translateDomainError(err)
		}
		changed = true
	}
	if !changed {
		return cart, nil
	}

	expected := cart.Version
	cart.UpdatedAt = s.now()
	cart.Version = expected + 1
	saved, err := s.carts.Update(ctx, cart, expected)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

// ensurePendingShell persists the pending order and payment records, reusing
// an existing shell left behind by an interrupted attempt. A pending shell
// whose snapshot no longer matches the cart is voided and rebuilt so the
// finalized order always carries the totals that were confirmed.
func (s *checkoutService) ensurePendingShell(ctx context.Context, cart Cart, cmd CheckoutCommand) (Order, Payment, error) {
	existing, err := s.orders.FindByCartID(ctx, cart.ID)
	if err == nil {
		switch existing.Status {
		case domain.OrderStatusCompleted:
			return existing, Payment{}, nil
		case domain.OrderStatusPending:
			payment, perr := s.findShellPayment(ctx, existing)
			if perr != nil {
				return Order{}, Payment{}, perr
			}
			if shellMatchesCart(existing, cart) {
				return existing, payment, nil
			}
			s.logger(ctx, "checkout.stale_shell_replaced", map[string]any{
				"orderID": existing.ID,
				"cartID":  cart.ID,
			})
			if verr := s.voidShell(ctx, existing, payment); verr != nil {
				return Order{}, Payment{}, verr
			}
		}
		// A canceled shell is replaced by a fresh one.
	} else if !isRepoNotFound(err) {
		return Order{}, Payment{}, s.translateRepoError(err)
	}

	now := s.now()
	order := buildOrderSnapshot(cart, cmd, "ord_"+s.newID(), now)
	if order.Number == "" {
		order.Number = "ORD-" + s.newID()
	}
	payment := Payment{
		ID:              "pay_" + s.newID(),
		OrderID:         order.ID,
		CartID:          cart.ID,
		ProviderID:      cart.PaymentSession.ProviderID,
		PaymentIntentID: cart.PaymentSession.PaymentIntentID,
		Status:          domain.PaymentStatusPending,
		Amount:          cart.Totals.Total,
		Currency:        cart.Currency,
		CreatedAt:       now,
	}
	order.PaymentID = payment.ID

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return err
		}
		if s.payments != nil {
			return s.payments.Insert(txCtx, payment)
		}
		return nil
	})
	if err != nil {
		return Order{}, Payment{}, s.translateRepoError(err)
	}
	return order, payment, nil
}

// shellMatchesCart reports whether a pending order shell still reflects the
// cart it was snapshotted from.
func shellMatchesCart(order Order, cart Cart) bool {
	if !strings.EqualFold(order.Currency, cart.Currency) {
		return false
	}
	if order.Totals != (OrderTotals{
		Subtotal:      cart.Totals.Subtotal,
		TaxTotal:      cart.Totals.TaxTotal,
		ShippingTotal: cart.Totals.ShippingTotal,
		DiscountTotal: cart.Totals.DiscountTotal,
		Total:         cart.Totals.Total,
	}) {
		return false
	}
	if len(order.Items) != len(cart.Items) {
		return false
	}
	for i, item := range cart.Items {
		shell := order.Items[i]
		if shell.ID != item.ID || shell.Quantity != item.Quantity ||
			shell.UnitPrice != item.UnitPrice || shell.Total != item.Total {
			return false
		}
	}
	return true
}

func (s *checkoutService) findShellPayment(ctx context.Context, order Order) (Payment, error) {
	if s.payments == nil || order.PaymentID == "" {
		return Payment{}, nil
	}
	payment, err := s.payments.FindByID(ctx, order.PaymentID)
	if err != nil {
		if isRepoNotFound(err) {
			return Payment{}, nil
		}
		return Payment{}, s.translateRepoError(err)
	}
	return payment, nil
}

// confirm issues the single non-idempotent external call, bounded by the
// configured timeout so callers can distinguish a timeout from a decline.
func (s *checkoutService) confirm(ctx context.Context, cart Cart, intent PaymentIntent) (PaymentConfirmation, error) {
	confirmCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	confirmation, err := s.gateway.ConfirmPaymentIntent(confirmCtx, ConfirmPaymentCommand{
		ProviderID:      cart.PaymentSession.ProviderID,
		PaymentIntentID: intent.ID,
		Amount:          cart.Totals.Total,
		Currency:        cart.Currency,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger(ctx, "checkout.gateway_timeout", map[string]any{
				"cartID":   cart.ID,
				"intentID": intent.ID,
			})
			return PaymentConfirmation{}, ErrGatewayTimeout
		}
		s.logger(ctx, "checkout.gateway_confirm_failed", map[string]any{
			"cartID": cart.ID,
			"error":  err.Error(),
		})
		return PaymentConfirmation{}, fmt.Errorf("%w: %v", ErrPaymentNotSucceeded, err)
	}
	return confirmation, nil
}

// voidShell cancels the pending order and payment after a declined
// confirmation. The cart stays ACTIVE.
func (s *checkoutService) voidShell(ctx context.Context, order Order, payment Payment) error {
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order.Status = domain.OrderStatusCanceled
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		if s.payments != nil && payment.ID != "" {
			payment.Status = domain.PaymentStatusFailed
			return s.payments.Update(txCtx, payment)
		}
		return nil
	})
	if err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

/// finalize commits the terminal state: order completed, cart COMPLETED with
// the order back-reference, payment captured. Promotion usage counters are
// incremented once the order is committed.
func (s *checkoutService) finalize(ctx context.Context, cart Cart, order Order, payment Payment) (Order, error) {
	now := s.now()

	if err := cart.MarkCompleted(order.ID, now); err != nil {
		return Order{}, s.translateDomainError(err)
	}
	order.Status = domain.OrderStatusCompleted
	order.CompletedAt = &now

	// The cart update reads before writing; it must come first so the
	// transaction performs all reads ahead of the order and payment writes.
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		expected := cart.Version
		cart.UpdatedAt = now
		cart.Version = expected + 1
		if _, err := s.carts.Update(txCtx, cart, expected); err != nil {
			return err
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		if s.payments != nil && payment.ID != "" {
			payment.Status = domain.PaymentStatusCaptured
			payment.CapturedAt = &now
			return s.payments.Update(txCtx, payment)
		}
		return nil
	})
	if err != nil {
		if isRepoConflict(err) {
			return Order{}, ErrCheckoutConflict
		}
		return Order{}, s.translateRepoError(err)
	}

	if s.promotions != nil {
		for _, discount := range cart.Discounts {
			if err := s.promotions.IncrementUsage(ctx, discount.PromotionID); err != nil {
				s.logger(ctx, "checkout.promotion_usage_failed", map[string]any{
					"promotionID": discount.PromotionID,
					"error":       err.Error(),
				})
			}
		}
	}

	if s.events != nil {
		if err := s.events.Publish(ctx, "order.created", map[string]any{
			"orderID": order.ID,
			"cartID":  cart.ID,
			"total":   order.Totals.Total,
		}); err != nil {
			s.logger(ctx, "checkout.event_publish_failed", map[string]any{
				"orderID": order.ID,
				"error":   err.Error(),
			})
		}
	}

	return order, nil
}

func (s *checkoutService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.uow == nil {
		return fn(ctx)
	}
	return s.uow.RunInTx(ctx, fn)
}

func (s *checkoutService) loadCart(ctx context.Context, cartID string) (Cart, error) {
	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartNotFound
		}
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

func (s *checkoutService) findOrder(ctx context.Context, orderID string) (Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

func (s *checkoutService) translateDomainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrCartNotActive):
		return ErrCartNotActive
	}
	return fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
}

func (s *checkoutService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCheckoutConflict
		case repoErr.IsUnavailable():
			return ErrCheckoutUnavailable
		}
	}
	return ErrCheckoutUnavailable
}

// buildOrderSnapshot copies the cart's priced state into an immutable order.
func buildOrderSnapshot(cart Cart, cmd CheckoutCommand, orderID string, now time.Time) Order {
	items := make([]OrderLineItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, OrderLineItem{
			ID:            item.ID,
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			Total:         item.Total,
			DiscountTotal: item.DiscountTotal,
			TaxTotal:      item.TaxTotal,
			Snapshot:      item.Snapshot,
		})
	}

	discounts := make([]AppliedDiscount, len(cart.Discounts))
	copy(discounts, cart.Discounts)

	breakdown := make([]TaxLine, len(cart.TaxBreakdown))
	copy(breakdown, cart.TaxBreakdown)

	order := Order{
		ID:           orderID,
		Number:       strings.TrimSpace(cmd.OrderNumber),
		Status:       domain.OrderStatusPending,
		CartID:       cart.ID,
		CustomerID:   cart.CustomerID,
		Currency:     cart.Currency,
		Items:        items,
		Discounts:    discounts,
		TaxBreakdown: breakdown,
		Totals: OrderTotals{
			Subtotal:      cart.Totals.Subtotal,
			TaxTotal:      cart.Totals.TaxTotal,
			ShippingTotal: cart.Totals.ShippingTotal,
			DiscountTotal: cart.Totals.DiscountTotal,
			Total:         cart.Totals.Total,
		},
		Note:      strings.TrimSpace(cmd.Note),
		CreatedAt: now,
	}
	if cart.ShippingMethod != nil {
		method := *cart.ShippingMethod
		order.ShippingMethod = &method
	}
	if cart.BillingAddress != nil {
		addr := *cart.BillingAddress
		order.BillingAddress = &addr
	}
	if cart.ShippingAddress != nil {
		addr := *cart.ShippingAddress
		order.ShippingAddress = &addr
	}
	return order
}
