package tracking

import (
	"sync"

	"github.com/shoply/tracking/internal/domain"
	"github.com/shoply/tracking/internal/interfaces"
)

// Store holds the last-known status per tracked order together with the set
// of observers interested in it. Observers are typed callback handles keyed
// by observer id, not shared event names. Operations never fail; growth is
// bounded by eviction on last unsubscribe and the periodic sweep.
type Store struct {
	mu        sync.RWMutex
	statuses  map[string]domain.OrderStatus
	observers map[string]map[string]interfaces.ObserverFunc
}

func NewStore() *Store {
	return &Store{
		statuses:  make(map[string]domain.OrderStatus),
		observers: make(map[string]map[string]interfaces.ObserverFunc),
	}
}

// Get is a pure lookup with no side effects.
func (s *Store) Get(orderID string) (domain.OrderStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[orderID]
	return status, ok
}

// Set replaces the stored record unconditionally; last write wins.
func (s *Store) Set(orderID string, status domain.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[orderID] = status
}

// Register adds an observer to the order's interest set and reports whether
// it was the first one, which triggers the seed load in the owning service.
func (s *Store) Register(orderID, observerID string, fn interfaces.ObserverFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.observers[orderID]
	if !ok {
		set = make(map[string]interfaces.ObserverFunc)
		s.observers[orderID] = set
	}
	set[observerID] = fn
	return !ok
}

// Unregister removes an observer; when the interest set empties, both the
// set and the cached status are evicted so idle orders hold no memory.
func (s *Store) Unregister(orderID, observerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.observers[orderID]
	if !ok {
		return
	}
	delete(set, observerID)
	if len(set) == 0 {
		delete(s.observers, orderID)
		delete(s.statuses, orderID)
	}
}

// Observers returns a snapshot of the order's callback handles. Iteration
// order across observers is undefined.
func (s *Store) Observers(orderID string) []interfaces.ObserverFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.observers[orderID]
	if len(set) == 0 {
		return nil
	}
	fns := make([]interfaces.ObserverFunc, 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	return fns
}

// ObserverCount reports the size of the order's interest set.
func (s *Store) ObserverCount(orderID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observers[orderID])
}

// Sweep reclaims entries whose interest set is empty. Unregister already
// evicts eagerly; the sweep is a safety net for connections that died
// without an explicit unsubscribe.
func (s *Store) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for orderID, set := range s.observers {
		if len(set) == 0 {
			delete(s.observers, orderID)
			delete(s.statuses, orderID)
		}
	}
	for orderID := range s.statuses {
		if _, ok := s.observers[orderID]; !ok {
			delete(s.statuses, orderID)
		}
	}
}
