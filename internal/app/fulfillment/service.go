package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/shoply/tracking/internal/adapter/logger"
	"github.com/shoply/tracking/internal/domain"
	"github.com/shoply/tracking/internal/interfaces"
)

// warehouseLocation is attached to the shipped status until couriers report
// real positions.
var warehouseLocation = domain.Location{Lat: 43.238949, Lng: 76.889709}

// Service is a fulfillment worker: it consumes placed orders and walks each
// one through the forward status path, publishing a status-update message per
// change. It never writes order status to the database itself; the tracking
// service applies the published updates.
type Service struct {
	orderRepo         interfaces.OrderRepository
	courierRepo       interfaces.CourierRepository
	publisher         interfaces.MessagePublisher
	logger            logger.Logger
	courierName       string
	heartbeatInterval time.Duration
	handlingDelay     time.Duration
}

func NewService(
	orderRepo interfaces.OrderRepository,
	courierRepo interfaces.CourierRepository,
	publisher interfaces.MessagePublisher,
	lgr logger.Logger,
	courierName string,
	heartbeatInterval int,
	handlingDelay time.Duration,
) *Service {
	return &Service{
		orderRepo:         orderRepo,
		courierRepo:       courierRepo,
		publisher:         publisher,
		logger:            lgr,
		courierName:       courierName,
		heartbeatInterval: time.Duration(heartbeatInterval) * time.Second,
		handlingDelay:     handlingDelay,
	}
}

func (s *Service) Start(ctx context.Context) error {
	courier, err := s.courierRepo.FindByName(ctx, s.courierName)
	if err == nil {
		if courier.Status == domain.CourierStatusOnline {
			return fmt.Errorf("courier with name %s is already online", s.courierName)
		}
		courier.Status = domain.CourierStatusOnline
		courier.LastSeen = time.Now()
		if err := s.courierRepo.Update(ctx, courier); err != nil {
			return err
		}
	} else {
		courier, err = domain.NewCourier(s.courierName)
		if err != nil {
			return err
		}
		if err := s.courierRepo.Create(ctx, courier); err != nil {
			return err
		}
	}

	s.logger.Info("courier_registered", fmt.Sprintf("Courier %s registered", s.courierName), "", nil)

	go s.heartbeatLoop(ctx)

	return nil
}

func (s *Service) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.courierRepo.UpdateHeartbeat(ctx, s.courierName); err != nil {
				s.logger.Error("heartbeat_failed", "Failed to update heartbeat", "", nil, err)
			}
		}
	}
}

func (s *Service) Shutdown(ctx context.Context) error {
	courier, err := s.courierRepo.FindByName(ctx, s.courierName)
	if err != nil {
		return err
	}
	courier.SetOffline()
	return s.courierRepo.Update(ctx, courier)
}

// ProcessOrder drives a placed order pending -> processing -> shipped ->
// delivered with a simulated handling delay between steps.
func (s *Service) ProcessOrder(ctx context.Context, msg interfaces.OrderMessage) error {
	order, err := s.orderRepo.FindByID(ctx, msg.OrderID)
	if err != nil {
		return err
	}

	// Idempotency: a redelivered message for an order already in flight is
	// acked without reprocessing.
	if order.Status != domain.StatusPending {
		return nil
	}

	s.logger.Debug("fulfillment_started", fmt.Sprintf("Processing order %s", msg.OrderID), msg.OrderID, nil)

	steps := []domain.Status{domain.StatusProcessing, domain.StatusShipped, domain.StatusDelivered}
	current := order.Status

	for _, next := range steps {
		if !domain.ValidTransition(current, next) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, current, next)
		}

		if err := s.publishTransition(ctx, order, current, next); err != nil {
			return err
		}
		current = next

		if next == domain.StatusDelivered {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.handlingDelay):
		}
	}

	if err := s.courierRepo.IncrementOrdersProcessed(ctx, s.courierName); err != nil {
		s.logger.Error("db_error", "Failed to increment courier stats", "", nil, err)
	}

	s.logger.Debug("fulfillment_completed", fmt.Sprintf("Order %s delivered", msg.OrderID), msg.OrderID, nil)
	return nil
}

func (s *Service) publishTransition(ctx context.Context, order *domain.Order, from, to domain.Status) error {
	update := interfaces.StatusUpdateMessage{
		OrderID:   order.ID,
		OldStatus: from,
		NewStatus: to,
		ChangedBy: s.courierName,
		Timestamp: time.Now().UTC(),
	}

	switch to {
	case domain.StatusProcessing:
		estimated := time.Now().Add(2 * s.handlingDelay)
		update.EstimatedDelivery = &estimated
	case domain.StatusShipped:
		loc := warehouseLocation
		update.Location = &loc
	}

	if err := s.publisher.PublishStatusUpdate(ctx, update); err != nil {
		return fmt.Errorf("failed to publish status update: %w", err)
	}

	s.logger.Debug("status_update_published", "Published status change", order.ID, map[string]interface{}{
		"from": string(from),
		"to":   string(to),
	})

	return nil
}
