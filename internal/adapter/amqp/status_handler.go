package amqp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shoply/tracking/internal/adapter/logger"
	"github.com/shoply/tracking/internal/domain"
	"github.com/shoply/tracking/internal/interfaces"
)

// StatusHandler applies status-update messages from the fulfillment workers
// to the tracker, which persists them and fans them out to subscribers.
type StatusHandler struct {
	tracker interfaces.OrderTracker
	logger  logger.Logger
}

func NewStatusHandler(tracker interfaces.OrderTracker, lgr logger.Logger) *StatusHandler {
	return &StatusHandler{
		tracker: tracker,
		logger:  lgr,
	}
}

func (h *StatusHandler) HandleStatusUpdate(ctx context.Context, body []byte) error {
	var msg interfaces.StatusUpdateMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse status update", "", nil, err)
		return err
	}

	if msg.OrderID == "" || !msg.NewStatus.IsValid() {
		err := fmt.Errorf("status update missing order id or status")
		h.logger.Error("message_rejected", "Rejected malformed status update", msg.OrderID, nil, err)
		return err
	}

	status := domain.OrderStatus{
		OrderID:           msg.OrderID,
		Status:            msg.NewStatus,
		Location:          msg.Location,
		LastUpdated:       msg.Timestamp,
		EstimatedDelivery: msg.EstimatedDelivery,
	}

	return h.tracker.UpdateOrderStatus(ctx, status, msg.ChangedBy)
}
