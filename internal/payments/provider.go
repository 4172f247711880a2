package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment intent states shared across providers.
type Status string

const (
	// StatusRequiresAction indicates the customer must complete an action
	// (3DS challenge, redirect) before the intent can succeed.
	StatusRequiresAction Status = "requires_action"
	// StatusProcessing indicates the PSP is still confirming the intent.
	StatusProcessing Status = "processing"
	// StatusSucceeded indicates the PSP reports the funds as secured.
	StatusSucceeded Status = "succeeded"
	// StatusCanceled indicates the intent was voided and cannot succeed.
	StatusCanceled Status = "canceled"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// CreateIntentRequest captures the payload required to open a payment intent.
type CreateIntentRequest struct {
	Amount         int64
	Currency       string
	CustomerID     string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// ConfirmRequest contains the data required to confirm an intent.
type ConfirmRequest struct {
	IntentID        string
	PaymentMethodID string
	IdempotencyKey  string
	Metadata        map[string]string
}

// CancelRequest voids an intent that has not succeeded.
type CancelRequest struct {
	IntentID       string
	Reason         string
	IdempotencyKey string
}

// LookupRequest fetches provider specific intent state for reconciliation.
type LookupRequest struct {
	IntentID string
}

// IntentDetails normalises PSP specific fields for storage.
type IntentDetails struct {
	Provider     string
	IntentID     string
	Status       Status
	Amount       int64
	Currency     string
	ClientSecret string
	CapturedAt   *time.Time
	Raw          map[string]any
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (IntentDetails, error)
	Confirm(ctx context.Context, req ConfirmRequest) (IntentDetails, error)
	Cancel(ctx context.Context, req CancelRequest) (IntentDetails, error)
	LookupIntent(ctx context.Context, req LookupRequest) (IntentDetails, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
	Metadata          map[string]string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateIntent delegates to the resolved provider.
func (m *Manager) CreateIntent(ctx context.Context, paymentCtx PaymentContext, req CreateIntentRequest) (IntentDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return IntentDetails{}, err
	}
	details, err := provider.CreateIntent(ctx, req)
	if err != nil {
		return IntentDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// Confirm delegates to the resolved provider.
func (m *Manager) Confirm(ctx context.Context, paymentCtx PaymentContext, req ConfirmRequest) (IntentDetails, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return IntentDetails{}, err
	}
	return provider.Confirm(ctx, req)
}

// Cancel delegates to the resolved provider.
func (m *Manager) Cancel(ctx context.Context, paymentCtx PaymentContext, req CancelRequest) (IntentDetails, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return IntentDetails{}, err
	}
	return provider.Cancel(ctx, req)
}

// LookupIntent delegates to the resolved provider.
func (m *Manager) LookupIntent(ctx context.Context, paymentCtx PaymentContext, req LookupRequest) (IntentDetails, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return IntentDetails{}, err
	}
	return provider.LookupIntent(ctx, req)
}
