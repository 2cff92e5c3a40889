package domain

import (
	"errors"
	"time"
)

// Courier represents a fulfillment worker entity
type Courier struct {
	ID              int
	Name            string
	Status          CourierStatus
	LastSeen        time.Time
	OrdersProcessed int
	CreatedAt       time.Time
}

type CourierStatus string

const (
	CourierStatusOnline  CourierStatus = "online"
	CourierStatusOffline CourierStatus = "offline"
)

// NewCourier creates a new courier
func NewCourier(name string) (*Courier, error) {
	if name == "" {
		return nil, errors.New("courier name is required")
	}

	return &Courier{
		Name:      name,
		Status:    CourierStatusOnline,
		LastSeen:  time.Now(),
		CreatedAt: time.Now(),
	}, nil
}

// UpdateHeartbeat updates the courier's last seen timestamp
func (c *Courier) UpdateHeartbeat() {
	c.LastSeen = time.Now()
	c.Status = CourierStatusOnline
}

// SetOffline marks the courier as offline
func (c *Courier) SetOffline() {
	c.Status = CourierStatusOffline
}

// IsOnline checks if the courier is considered online based on last heartbeat
func (c *Courier) IsOnline(heartbeatTimeout time.Duration) bool {
	if c.Status == CourierStatusOffline {
		return false
	}
	return time.Since(c.LastSeen) <= heartbeatTimeout
}
