package interfaces

import (
	"context"

	"github.com/shoply/tracking/internal/domain"
)

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, status domain.OrderStatus, changedBy string) error
	GetStatusHistory(ctx context.Context, orderID string) ([]*domain.StatusLog, error)
}

type CourierRepository interface {
	Create(ctx context.Context, courier *domain.Courier) error
	FindByName(ctx context.Context, name string) (*domain.Courier, error)
	Update(ctx context.Context, courier *domain.Courier) error
	UpdateHeartbeat(ctx context.Context, name string) error
	ListAll(ctx context.Context) ([]*domain.Courier, error)
	IncrementOrdersProcessed(ctx context.Context, name string) error
}
