package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/voxsar/commerce-api/internal/repositories"
)

var errOrderRepositoryRequired = errors.New("order service: repository is required")

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the requested order does not exist.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderUnavailable indicates a backend dependency failed.
var ErrOrderUnavailable = errors.New("order service: unavailable")

const defaultOrderPageSize = 50

// OrderServiceDeps bundles the dependencies required by the order read side.
type OrderServiceDeps struct {
	Orders repositories.OrderRepository
}

type orderService struct {
	orders repositories.OrderRepository
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderRepositoryRequired
	}
	return &orderService{orders: deps.Orders}, nil
}

// GetOrder returns the order with the given identifier.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

// ListOrders returns orders matching the query, newest first.
func (s *orderService) ListOrders(ctx context.Context, query OrderListQuery) ([]Order, error) {
	if s == nil || s.orders == nil {
		return nil, ErrOrderUnavailable
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultOrderPageSize
	}
	filter := repositories.OrderListFilter{
		CustomerID:   strings.TrimSpace(query.CustomerID),
		Status:       query.Status,
		CreatedAfter: query.CreatedAfter,
		StartAfter:   query.StartAfter,
		Limit:        limit,
	}

	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return orders, nil
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsUnavailable():
			return ErrOrderUnavailable
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}
