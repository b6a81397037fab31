package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pitchbot/internal/models"
)

// GetPrice returns the active price for a service type.
func (s *Store) GetPrice(ctx context.Context, serviceType string) (int64, error) {
	var amount int64
	err := s.db.QueryRowContext(ctx,
		`SELECT amount FROM prices WHERE service_type = ? AND is_active = 1`, serviceType,
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no active price for service type %q", serviceType)
	}
	if err != nil {
		return 0, fmt.Errorf("get price for %q: %w", serviceType, err)
	}
	return amount, nil
}

// ListPrices returns every price row, active or not.
func (s *Store) ListPrices(ctx context.Context) ([]models.Price, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT service_type, amount, description, is_active, updated_by, updated_at
		 FROM prices ORDER BY service_type`)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	defer rows.Close()

	var prices []models.Price
	for rows.Next() {
		var (
			p         models.Price
			active    int
			updatedAt string
		)
		if err := rows.Scan(&p.ServiceType, &p.Amount, &p.Description, &active, &p.UpdatedBy, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		p.IsActive = active != 0
		p.UpdatedAt = parseTime(updatedAt)
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// SetPrice updates an existing price row. Returns false for an unknown
// service type so the admin UI can report it.
func (s *Store) SetPrice(ctx context.Context, serviceType string, amount int64, updatedBy int64) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("price must be non-negative, got %d", amount)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE prices SET amount = ?, updated_by = ?, updated_at = ? WHERE service_type = ?`,
		amount, updatedBy, formatTime(time.Now()), serviceType)
	if err != nil {
		return false, fmt.Errorf("set price for %q: %w", serviceType, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set price rows affected: %w", err)
	}
	return rows > 0, nil
}
