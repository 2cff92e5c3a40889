package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shoply/tracking/internal/adapter/logger"
	"github.com/shoply/tracking/internal/domain"
	"github.com/shoply/tracking/internal/interfaces"
)

const (
	defaultSeedTimeout     = 5 * time.Second
	defaultCleanupInterval = 30 * time.Minute
)

// TransitionValidator decides whether a status change may be applied given
// the last cached status. Injected so integration tests can confirm illegal
// transitions never reach the fan-out path.
type TransitionValidator func(current, next domain.Status) bool

// ErrorFunc receives failures that are reported out-of-band instead of being
// returned to a caller, such as a failed seed load during subscription.
type ErrorFunc func(orderID string, err error)

type Option func(*Service)

// WithValidator makes UpdateOrderStatus re-check transition legality against
// the cached status before persisting and fanning out.
func WithValidator(v TransitionValidator) Option {
	return func(s *Service) { s.validate = v }
}

func WithSeedTimeout(d time.Duration) Option {
	return func(s *Service) { s.seedTimeout = d }
}

func WithCleanupInterval(d time.Duration) Option {
	return func(s *Service) { s.cleanupInterval = d }
}

func WithErrorHandler(fn ErrorFunc) Option {
	return func(s *Service) { s.onError = fn }
}

// Service is the coordination point between persisted order state, live
// subscriptions and fan-out notification. It is constructed explicitly and
// passed to whatever hosts the tracking endpoints; no global instance.
type Service struct {
	store           *Store
	orderRepo       interfaces.OrderRepository
	logger          logger.Logger
	validate        TransitionValidator
	onError         ErrorFunc
	seedTimeout     time.Duration
	cleanupInterval time.Duration
	done            chan struct{}
}

func NewService(orderRepo interfaces.OrderRepository, lgr logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:           NewStore(),
		orderRepo:       orderRepo,
		logger:          lgr,
		seedTimeout:     defaultSeedTimeout,
		cleanupInterval: defaultCleanupInterval,
		done:            make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Subscribe registers an observer for the order. The first observer triggers
// a seed load from the order record under a bounded timeout; a failed or
// missing seed is reported through the error handler and the subscription
// still proceeds with no cached data. The current status, when known, is
// delivered to the new observer immediately.
func (s *Service) Subscribe(ctx context.Context, orderID, observerID string, fn interfaces.ObserverFunc) {
	first := s.store.Register(orderID, observerID, fn)

	if first {
		s.seed(ctx, orderID)
	}

	if status, ok := s.store.Get(orderID); ok {
		fn(status)
	}

	s.logger.Debug("observer_subscribed", "Observer subscribed to order", orderID, map[string]interface{}{
		"observer_id": observerID,
		"observers":   s.store.ObserverCount(orderID),
	})
}

// Unsubscribe removes the observer; the last one out evicts the order's
// interest set and cached status.
func (s *Service) Unsubscribe(orderID, observerID string) {
	s.store.Unregister(orderID, observerID)

	s.logger.Debug("observer_unsubscribed", "Observer unsubscribed from order", orderID, map[string]interface{}{
		"observer_id": observerID,
	})
}

// UpdateOrderStatus persists the new status, updates the cache and invokes
// every registered observer before returning. Persistence failure aborts the
// whole operation: the cache is untouched and nothing is fanned out.
func (s *Service) UpdateOrderStatus(ctx context.Context, status domain.OrderStatus, changedBy string) error {
	if s.validate != nil {
		if current, ok := s.store.Get(status.OrderID); ok {
			if !s.validate(current.Status, status.Status) {
				return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, current.Status, status.Status)
			}
		}
	}

	if err := s.orderRepo.UpdateStatus(ctx, status, changedBy); err != nil {
		s.reportError(status.OrderID, err)
		return fmt.Errorf("failed to persist status: %w", err)
	}

	s.store.Set(status.OrderID, status)

	for _, fn := range s.store.Observers(status.OrderID) {
		fn(status)
	}

	s.logger.Debug("status_published", "Status fanned out to observers", status.OrderID, map[string]interface{}{
		"status":    string(status.Status),
		"observers": s.store.ObserverCount(status.OrderID),
	})

	return nil
}

// GetOrderStatus is a synchronous cache read with no fallback to the
// database. Absence is a valid outcome, not a failure.
func (s *Service) GetOrderStatus(orderID string) (domain.OrderStatus, bool) {
	return s.store.Get(orderID)
}

// Close stops the periodic cleanup sweep.
func (s *Service) Close() {
	close(s.done)
}

func (s *Service) seed(ctx context.Context, orderID string) {
	seedCtx, cancel := context.WithTimeout(ctx, s.seedTimeout)
	defer cancel()

	order, err := s.orderRepo.FindByID(seedCtx, orderID)
	if err != nil {
		// A missing record is normal: later updates populate the cache.
		if errors.Is(err, domain.ErrOrderNotFound) {
			return
		}
		s.logger.Error("seed_failed", "Failed to seed order status", orderID, nil, err)
		s.reportError(orderID, err)
		return
	}

	s.store.Set(orderID, order.TrackingStatus())
}

func (s *Service) reportError(orderID string, err error) {
	if s.onError != nil {
		s.onError(orderID, err)
	}
}

func (s *Service) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.store.Sweep()
		}
	}
}
