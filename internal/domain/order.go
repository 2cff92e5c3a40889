package domain

import (
	"errors"
	"time"
)

// Order represents a storefront order entity
type Order struct {
	ID                    string
	CustomerName          string
	ShippingAddress       string
	Items                 []OrderItem
	Amount                float64
	Status                Status
	ProcessedBy           *string
	EstimatedDeliveryDate *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	CompletedAt           *time.Time
}

// OrderItem represents an item in an order
type OrderItem struct {
	ID       int
	OrderID  string
	Name     string
	Quantity int
	Price    float64
}

// NewOrder creates a new order with business rules applied
func NewOrder(id, customerName, shippingAddress string, items []OrderItem) (*Order, error) {
	order := &Order{
		ID:              id,
		CustomerName:    customerName,
		ShippingAddress: shippingAddress,
		Items:           items,
		Status:          StatusPending,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	if err := order.Validate(); err != nil {
		return nil, err
	}

	order.CalculateAmount()

	return order, nil
}

// Validate applies business validation rules
func (o *Order) Validate() error {
	if o.ID == "" {
		return errors.New("order id is required")
	}

	if len(o.CustomerName) < 1 || len(o.CustomerName) > 100 {
		return errors.New("customer name must be 1-100 characters")
	}

	if len(o.ShippingAddress) < 10 {
		return errors.New("shipping address required (min 10 characters)")
	}

	if len(o.Items) < 1 || len(o.Items) > 20 {
		return errors.New("order must have 1-20 items")
	}

	for _, item := range o.Items {
		if len(item.Name) < 1 || len(item.Name) > 100 {
			return errors.New("item name must be 1-100 characters")
		}
		if item.Quantity < 1 || item.Quantity > 10 {
			return errors.New("item quantity must be 1-10")
		}
		if item.Price < 0.01 || item.Price > 9999.99 {
			return errors.New("item price must be 0.01-9999.99")
		}
	}

	return nil
}

// CalculateAmount calculates the total amount of the order
func (o *Order) CalculateAmount() {
	total := 0.0
	for _, item := range o.Items {
		total += item.Price * float64(item.Quantity)
	}
	o.Amount = total
}

// TransitionTo transitions the order to a new status
func (o *Order) TransitionTo(newStatus Status, processedBy string) error {
	if !ValidTransition(o.Status, newStatus) {
		return ErrInvalidStatusTransition
	}

	o.Status = newStatus
	o.UpdatedAt = time.Now()

	if processedBy != "" {
		o.ProcessedBy = &processedBy
	}

	if newStatus.IsTerminal() {
		now := time.Now()
		o.CompletedAt = &now
	}

	return nil
}

// TrackingStatus builds the value record pushed to tracking subscribers
// from the persisted order state.
func (o *Order) TrackingStatus() OrderStatus {
	return OrderStatus{
		OrderID:           o.ID,
		Status:            o.Status,
		LastUpdated:       o.UpdatedAt,
		EstimatedDelivery: o.EstimatedDeliveryDate,
	}
}

var (
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrOrderNotFound           = errors.New("order not found")
)
