package di

import (
	"context"
	"strings"

	"github.com/voxsar/commerce-api/internal/domain"
	"github.com/voxsar/commerce-api/internal/payments"
	"github.com/voxsar/commerce-api/internal/services"
)

// gatewayAdapter bridges the provider-routing payment manager to the
// checkout service's gateway contract.
type gatewayAdapter struct {
	manager         *payments.Manager
	defaultProvider string
}

func newGatewayAdapter(manager *payments.Manager, defaultProvider string) services.PaymentGateway {
	return &gatewayAdapter{
		manager:         manager,
		defaultProvider: strings.TrimSpace(defaultProvider),
	}
}

func (a *gatewayAdapter) CreatePaymentIntent(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentConfirmation, error) {
	details, err := a.manager.CreateIntent(ctx, a.paymentContext(cmd.ProviderID, cmd.Currency), payments.CreateIntentRequest{
		Amount:         cmd.Amount,
		Currency:       cmd.Currency,
		CustomerID:     cmd.CustomerID,
		IdempotencyKey: cmd.IdempotencyKey,
	})
	if err != nil {
		return services.PaymentConfirmation{}, err
	}
	return confirmationFromDetails(details), nil
}

func (a *gatewayAdapter) ConfirmPaymentIntent(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.PaymentConfirmation, error) {
	details, err := a.manager.Confirm(ctx, a.paymentContext(cmd.ProviderID, cmd.Currency), payments.ConfirmRequest{
		IntentID: cmd.PaymentIntentID,
	})
	if err != nil {
		return services.PaymentConfirmation{}, err
	}
	return confirmationFromDetails(details), nil
}

func (a *gatewayAdapter) paymentContext(providerID, currency string) payments.PaymentContext {
	provider := strings.TrimSpace(providerID)
	if provider == "" {
		provider = a.defaultProvider
	}
	return payments.PaymentContext{
		PreferredProvider: provider,
		Currency:          currency,
	}
}

func confirmationFromDetails(details payments.IntentDetails) services.PaymentConfirmation {
	return services.PaymentConfirmation{
		IntentID:     details.IntentID,
		ProviderRef:  details.Provider,
		Status:       intentStatusFromGateway(details.Status),
		ClientSecret: details.ClientSecret,
	}
}

func intentStatusFromGateway(status payments.Status) domain.PaymentIntentStatus {
	switch status {
	case payments.StatusSucceeded:
		return domain.IntentSucceeded
	case payments.StatusCanceled:
		return domain.IntentCanceled
	case payments.StatusProcessing:
		return domain.IntentProcessing
	default:
		return domain.IntentRequiresAction
	}
}
