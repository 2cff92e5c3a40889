package interfaces

import (
	"context"
	"time"

	"github.com/shoply/tracking/internal/domain"
)

// OrderMessage is published when the storefront places an order and consumed
// by fulfillment workers.
type OrderMessage struct {
	OrderID         string             `json:"order_id"`
	CustomerName    string             `json:"customer_name"`
	ShippingAddress string             `json:"shipping_address"`
	Items           []domain.OrderItem `json:"items"`
	Amount          float64            `json:"amount"`
}

// StatusUpdateMessage is published on every status change and consumed by the
// tracking service, which mirrors it into the live subscription fan-out.
type StatusUpdateMessage struct {
	OrderID           string           `json:"order_id"`
	OldStatus         domain.Status    `json:"old_status"`
	NewStatus         domain.Status    `json:"new_status"`
	ChangedBy         string           `json:"changed_by"`
	Timestamp         time.Time        `json:"timestamp"`
	Location          *domain.Location `json:"location,omitempty"`
	EstimatedDelivery *time.Time       `json:"estimated_delivery,omitempty"`
}

type MessagePublisher interface {
	PublishOrder(ctx context.Context, msg OrderMessage) error
	PublishStatusUpdate(ctx context.Context, msg StatusUpdateMessage) error
}

type MessageConsumer interface {
	ConsumeOrders(ctx context.Context, handler OrderMessageHandler) error
	ConsumeStatusUpdates(ctx context.Context, handler StatusUpdateHandler) error
}

type (
	OrderMessageHandler func(ctx context.Context, body []byte) error
	StatusUpdateHandler func(ctx context.Context, body []byte) error
)
