package interfaces

import (
	"context"
	"time"

	"github.com/shoply/tracking/internal/domain"
)

// ObserverFunc receives every status pushed to a subscribed order.
type ObserverFunc func(status domain.OrderStatus)

// OrderTracker is the live subscription coordinator: it caches the current
// status per tracked order and fans every change out to registered observers.
type OrderTracker interface {
	Subscribe(ctx context.Context, orderID, observerID string, fn ObserverFunc)
	Unsubscribe(orderID, observerID string)
	UpdateOrderStatus(ctx context.Context, status domain.OrderStatus, changedBy string) error
	GetOrderStatus(orderID string) (domain.OrderStatus, bool)
}

// OrderService owns status mutation requests coming from the storefront:
// it checks transition legality against the persisted order before handing
// the change to the tracker.
type OrderService interface {
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	GetStatusHistory(ctx context.Context, orderID string) ([]*domain.StatusLog, error)
}

type UpdateStatusCommand struct {
	OrderID           string
	NewStatus         domain.Status
	ChangedBy         string
	Location          *domain.Location
	EstimatedDelivery *time.Time
}

type FulfillmentService interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	ProcessOrder(ctx context.Context, msg OrderMessage) error
}
