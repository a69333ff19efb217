package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vasiliy-maslov/fuel-delivery/internal/db"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Driver, error)
	// GetForUpdate locks the driver row for the current transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Driver, error)
	ListByStatus(ctx context.Context, status Status) ([]Driver, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) error
}

type postgresRepository struct {
	pool db.DBTX
}

func NewRepository(pool db.DBTX) Repository {
	return &postgresRepository{pool: pool}
}

const driverColumns = `id, name, phone_number, status, created_at, updated_at`

func (r *postgresRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM fuel_service.drivers WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var d Driver
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, id).
		Scan(&d.ID, &d.Name, &d.PhoneNumber, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDriverNotFound
		}
		return nil, fmt.Errorf("repository: failed to select driver %s: %w", id, err)
	}
	return &d, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Driver, error) {
	return r.get(ctx, id, false)
}

func (r *postgresRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Driver, error) {
	return r.get(ctx, id, true)
}

func (r *postgresRepository) ListByStatus(ctx context.Context, status Status) ([]Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM fuel_service.drivers WHERE status = $1 ORDER BY updated_at`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query drivers with status %s: %w", status, err)
	}
	defer rows.Close()

	drivers := make([]Driver, 0)
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.PhoneNumber, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan driver: %w", err)
		}
		drivers = append(drivers, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating drivers: %w", err)
	}
	return drivers, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) error {
	query := `UPDATE fuel_service.drivers SET status = $1, updated_at = $2 WHERE id = $3`

	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, query, string(status), at, id)
	if err != nil {
		return fmt.Errorf("repository: failed to update driver status %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDriverNotFound
	}
	return nil
}
