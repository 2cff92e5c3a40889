package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shoply/tracking/internal/adapter/logger"
	"github.com/shoply/tracking/internal/domain"
	"github.com/shoply/tracking/internal/interfaces"
)

// Service handles status mutation requests from the storefront. It checks
// transition legality against the persisted order and then hands the change
// to the tracker, which is the single writer of order status.
type Service struct {
	repo    interfaces.OrderRepository
	tracker interfaces.OrderTracker
	logger  logger.Logger
}

func NewService(repo interfaces.OrderRepository, tracker interfaces.OrderTracker, lgr logger.Logger) *Service {
	return &Service{
		repo:    repo,
		tracker: tracker,
		logger:  lgr,
	}
}

func (s *Service) UpdateStatus(ctx context.Context, cmd interfaces.UpdateStatusCommand) (*domain.Order, error) {
	if !cmd.NewStatus.IsValid() {
		return nil, fmt.Errorf("unknown status %q", cmd.NewStatus)
	}

	order, err := s.repo.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	if !domain.ValidTransition(order.Status, cmd.NewStatus) {
		s.logger.Debug("transition_rejected", "Illegal status transition rejected", cmd.OrderID, map[string]interface{}{
			"from": string(order.Status),
			"to":   string(cmd.NewStatus),
		})
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, order.Status, cmd.NewStatus)
	}

	status := domain.OrderStatus{
		OrderID:           cmd.OrderID,
		Status:            cmd.NewStatus,
		Location:          cmd.Location,
		LastUpdated:       time.Now().UTC(),
		EstimatedDelivery: cmd.EstimatedDelivery,
	}
	if status.EstimatedDelivery == nil {
		status.EstimatedDelivery = order.EstimatedDeliveryDate
	}

	if err := s.tracker.UpdateOrderStatus(ctx, status, cmd.ChangedBy); err != nil {
		s.logger.Error("status_update_failed", "Failed to update order status", cmd.OrderID, nil, err)
		return nil, err
	}

	order.Status = cmd.NewStatus
	order.UpdatedAt = status.LastUpdated
	order.EstimatedDeliveryDate = status.EstimatedDelivery
	if cmd.ChangedBy != "" {
		order.ProcessedBy = &cmd.ChangedBy
	}

	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.repo.FindByID(ctx, orderID)
}

func (s *Service) GetStatusHistory(ctx context.Context, orderID string) ([]*domain.StatusLog, error) {
	if _, err := s.repo.FindByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.GetStatusHistory(ctx, orderID)
}
