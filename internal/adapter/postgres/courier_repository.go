package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shoply/tracking/internal/domain"
	"github.com/shoply/tracking/internal/interfaces"
)

type courierRepository struct {
	db DB
}

func NewCourierRepository(db DB) interfaces.CourierRepository {
	return &courierRepository{db: db}
}

func (r *courierRepository) Create(ctx context.Context, courier *domain.Courier) error {
	query := `
		INSERT INTO couriers (name, status, last_seen, orders_processed, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		courier.Name, courier.Status, courier.LastSeen, courier.OrdersProcessed, courier.CreatedAt,
	).Scan(&courier.ID)
	if err != nil {
		return fmt.Errorf("failed to create courier: %w", err)
	}
	return nil
}

func (r *courierRepository) FindByName(ctx context.Context, name string) (*domain.Courier, error) {
	query := `
		SELECT id, name, status, last_seen, orders_processed, created_at
		FROM couriers
		WHERE name = $1
	`

	var courier domain.Courier
	err := r.db.QueryRow(ctx, query, name).Scan(
		&courier.ID, &courier.Name, &courier.Status,
		&courier.LastSeen, &courier.OrdersProcessed, &courier.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("courier not found: %w", err)
	}

	return &courier, nil
}

func (r *courierRepository) Update(ctx context.Context, courier *domain.Courier) error {
	query := `
		UPDATE couriers
		SET status = $1, last_seen = $2, orders_processed = $3
		WHERE id = $4
	`
	_, err := r.db.Exec(ctx, query,
		courier.Status, courier.LastSeen, courier.OrdersProcessed, courier.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update courier: %w", err)
	}
	return nil
}

func (r *courierRepository) UpdateHeartbeat(ctx context.Context, name string) error {
	query := `
		UPDATE couriers
		SET last_seen = $1, status = $2
		WHERE name = $3
	`
	_, err := r.db.Exec(ctx, query, time.Now(), domain.CourierStatusOnline, name)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	return nil
}

func (r *courierRepository) ListAll(ctx context.Context) ([]*domain.Courier, error) {
	query := `
		SELECT id, name, status, last_seen, orders_processed, created_at
		FROM couriers
		ORDER BY name
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list couriers: %w", err)
	}
	defer rows.Close()

	var couriers []*domain.Courier
	for rows.Next() {
		var courier domain.Courier
		if err := rows.Scan(
			&courier.ID, &courier.Name, &courier.Status,
			&courier.LastSeen, &courier.OrdersProcessed, &courier.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan courier: %w", err)
		}
		couriers = append(couriers, &courier)
	}

	return couriers, nil
}

func (r *courierRepository) IncrementOrdersProcessed(ctx context.Context, name string) error {
	query := `
		UPDATE couriers
		SET orders_processed = orders_processed + 1
		WHERE name = $1
	`
	_, err := r.db.Exec(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to increment orders processed: %w", err)
	}
	return nil
}
