package domain

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further transitions out of the status exist.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// IsValid reports whether the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// validTransitions is the fixed forward-only transition table. Every
// non-terminal status also permits a side-exit to cancelled.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// ValidTransition reports whether an order may move from current to next.
// Self-transitions and any transition out of a terminal status are rejected.
func ValidTransition(current, next Status) bool {
	for _, s := range validTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// Location is a courier position attached to a status while the order is in
// transit. Absence is valid.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// OrderStatus is the value record pushed to tracking subscribers. Field names
// follow the wire contract of the tracking connection, not the database.
type OrderStatus struct {
	OrderID           string     `json:"orderId"`
	Status            Status     `json:"status"`
	Location          *Location  `json:"location,omitempty"`
	LastUpdated       time.Time  `json:"lastUpdated"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

// StatusLog represents a log entry for order status changes
type StatusLog struct {
	ID        int
	OrderID   string
	Status    Status
	ChangedBy string
	ChangedAt time.Time
	Notes     *string
}
