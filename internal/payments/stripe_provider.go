package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/voxsar/commerce-api/internal/platform/textutil"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clients   *stripeClients
}

// StripeProvider implements the Provider interface using Stripe Payment Intents.
type StripeProvider struct {
	api     stripeClients
	account string
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
		}
	}

	if clients.intents == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		logger:  logger,
	}, nil
}

// CreateIntent opens a Stripe Payment Intent for the given amount.
func (p *StripeProvider) CreateIntent(ctx context.Context, req CreateIntentRequest) (IntentDetails, error) {
	if p == nil {
		return IntentDetails{}, errors.New("stripe: provider is nil")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if metadata := textutil.NormalizeStringMap(req.Metadata); metadata != nil {
		params.Metadata = metadata
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return IntentDetails{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"currency":      intent.Currency,
	})
	return stripeIntentDetails(intent), nil
}

// Confirm confirms a Stripe Payment Intent.
func (p *StripeProvider) Confirm(ctx context.Context, req ConfirmRequest) (IntentDetails, error) {
	if p == nil {
		return IntentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if method := strings.TrimSpace(req.PaymentMethodID); method != "" {
		params.PaymentMethod = stripe.String(method)
	}
	if metadata := textutil.NormalizeStringMap(req.Metadata); metadata != nil {
		params.Metadata = metadata
	}
	intent, err := p.api.intents.Confirm(req.IntentID, params)
	if err != nil {
		return IntentDetails{}, fmt.Errorf("stripe: confirm payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.confirmed", map[string]any{
		"paymentIntent": intent.ID,
		"status":        intent.Status,
	})
	return stripeIntentDetails(intent), nil
}

// Cancel voids a Stripe Payment Intent.
func (p *StripeProvider) Cancel(ctx context.Context, req CancelRequest) (IntentDetails, error) {
	if p == nil {
		return IntentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if reason := mapStripeCancelReason(req.Reason); reason != "" {
		params.CancellationReason = stripe.String(reason)
	}
	intent, err := p.api.intents.Cancel(req.IntentID, params)
	if err != nil {
		return IntentDetails{}, fmt.Errorf("stripe: cancel payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.canceled", map[string]any{
		"paymentIntent": intent.ID,
	})
	return stripeIntentDetails(intent), nil
}

// LookupIntent retrieves a Stripe Payment Intent.
func (p *StripeProvider) LookupIntent(ctx context.Context, req LookupRequest) (IntentDetails, error) {
	if p == nil {
		return IntentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.api.intents.Get(req.IntentID, params)
	if err != nil {
		return IntentDetails{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	return stripeIntentDetails(intent), nil
}

func stripeIntentDetails(intent *stripe.PaymentIntent) IntentDetails {
	if intent == nil {
		return IntentDetails{}
	}

	status := StatusProcessing
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = StatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		status = StatusRequiresAction
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		status = StatusProcessing
	}

	var capturedAt *time.Time
	if charge := intent.LatestCharge; charge != nil && (charge.Paid || charge.Captured) {
		t := time.Unix(charge.Created, 0).UTC()
		capturedAt = &t
	}

	currency := strings.ToUpper(string(intent.Currency))
	if currency == "" && intent.LatestCharge != nil {
		currency = strings.ToUpper(string(intent.LatestCharge.Currency))
	}

	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	} else {
		raw["payment_intent"] = intent
	}

	return IntentDetails{
		Provider:     "stripe",
		IntentID:     intent.ID,
		Status:       status,
		Amount:       intent.Amount,
		Currency:     currency,
		ClientSecret: intent.ClientSecret,
		CapturedAt:   capturedAt,
		Raw:          raw,
	}
}

func mapStripeCancelReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.PaymentIntentCancellationReasonDuplicate):
		return string(stripe.PaymentIntentCancellationReasonDuplicate)
	case string(stripe.PaymentIntentCancellationReasonFraudulent):
		return string(stripe.PaymentIntentCancellationReasonFraudulent)
	case string(stripe.PaymentIntentCancellationReasonRequestedByCustomer):
		return string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)
	case string(stripe.PaymentIntentCancellationReasonAbandoned):
		return string(stripe.PaymentIntentCancellationReasonAbandoned)
	default:
		return ""
	}
}
