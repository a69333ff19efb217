package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
	"github.com/vasiliy-maslov/fuel-delivery/internal/db"
	"github.com/vasiliy-maslov/fuel-delivery/internal/driver"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetForUpdate locks the order row for the current transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	// Update persists status, driver and payment fields. It fails with
	// ErrConcurrentUpdate when o.Version is stale and bumps it otherwise.
	Update(ctx context.Context, o *Order) error
	AddStatusChange(ctx context.Context, c StatusChange) error
	History(ctx context.Context, orderID uuid.UUID) ([]StatusChange, error)
	ActiveDelivery(ctx context.Context, driverID uuid.UUID) (*driver.Delivery, error)
	List(ctx context.Context, scope Scope, f Filter, since time.Time) ([]Order, int, error)
}

type postgresRepository struct {
	pool db.DBTX
	sqlx *sqlx.DB
}

func NewRepository(pool db.DBTX, sqlxDB *sqlx.DB) Repository {
	return &postgresRepository{pool: pool, sqlx: sqlxDB}
}

const orderColumns = `id, vendor_id, customer_id, driver_id, status, subtotal, delivery_fee, total_amount,
	delivery_address, phone_number, special_instructions, payment_method, payment_status, version,
	created_at, updated_at`

const itemColumns = `id, order_id, position, product_id, product_name, unit, unit_price, quantity, subtotal`

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func scanOrder(row pgx.Row, o *Order) error {
	var driverID uuid.NullUUID
	err := row.Scan(
		&o.ID,
		&o.VendorID,
		&o.CustomerID,
		&driverID,
		&o.Status,
		&o.Subtotal,
		&o.DeliveryFee,
		&o.TotalAmount,
		&o.DeliveryAddress,
		&o.PhoneNumber,
		&o.SpecialInstructions,
		&o.PaymentMethod,
		&o.PaymentStatus,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	o.DriverID = nil
	if driverID.Valid {
		id := driverID.UUID
		o.DriverID = &id
	}
	return nil
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	conn := db.Conn(ctx, r.pool)

	queryOrder := `
		INSERT INTO fuel_service.orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := conn.Exec(ctx, queryOrder,
		o.ID,
		o.VendorID,
		o.CustomerID,
		nullUUID(o.DriverID),
		string(o.Status),
		o.Subtotal,
		o.DeliveryFee,
		o.TotalAmount,
		o.DeliveryAddress,
		o.PhoneNumber,
		o.SpecialInstructions,
		string(o.PaymentMethod),
		string(o.PaymentStatus),
		o.Version,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO fuel_service.order_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, it := range o.Items {
		_, err = conn.Exec(ctx, queryItem,
			it.ID,
			it.OrderID,
			it.Position,
			it.ProductID,
			it.ProductName,
			it.Unit,
			it.UnitPrice,
			it.Quantity,
			it.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}
	return nil
}

func (r *postgresRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*Order, error) {
	conn := db.Conn(ctx, r.pool)

	query := `SELECT ` + orderColumns + ` FROM fuel_service.orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var o Order
	if err := scanOrder(conn.QueryRow(ctx, query, id), &o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	queryItems := `SELECT ` + itemColumns + ` FROM fuel_service.order_items WHERE order_id = $1 ORDER BY position`
	rows, err := conn.Query(ctx, queryItems, id)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order id %s: %w", id, err)
	}
	defer rows.Close()

	o.Items = make([]Item, 0)
	for rows.Next() {
		var it Item
		err := rows.Scan(&it.ID, &it.OrderID, &it.Position, &it.ProductID, &it.ProductName,
			&it.Unit, &it.UnitPrice, &it.Quantity, &it.Subtotal)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order id %s: %w", id, err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order id %s: %w", id, err)
	}

	return &o, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.get(ctx, id, false)
}

func (r *postgresRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.get(ctx, id, true)
}

func (r *postgresRepository) Update(ctx context.Context, o *Order) error {
	query := `
		UPDATE fuel_service.orders
		SET status = $1, driver_id = $2, payment_status = $3, updated_at = $4, version = version + 1
		WHERE id = $5 AND version = $6
	`
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		string(o.Status),
		nullUUID(o.DriverID),
		string(o.PaymentStatus),
		o.UpdatedAt,
		o.ID,
		o.Version,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order %s: %w", o.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}
	o.Version++
	return nil
}

func (r *postgresRepository) AddStatusChange(ctx context.Context, c StatusChange) error {
	query := `
		INSERT INTO fuel_service.order_status_log (order_id, from_status, to_status, changed_by, actor_role, notes, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		c.OrderID, string(c.FromStatus), string(c.ToStatus), c.ChangedBy, c.ActorRole, c.Notes, c.ChangedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert status change for order %s: %w", c.OrderID, err)
	}
	return nil
}

func (r *postgresRepository) History(ctx context.Context, orderID uuid.UUID) ([]StatusChange, error) {
	query := `
		SELECT order_id, from_status, to_status, changed_by, actor_role, notes, changed_at
		FROM fuel_service.order_status_log
		WHERE order_id = $1
		ORDER BY changed_at, id
	`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query history for order %s: %w", orderID, err)
	}
	defer rows.Close()

	history := make([]StatusChange, 0)
	for rows.Next() {
		var c StatusChange
		if err := rows.Scan(&c.OrderID, &c.FromStatus, &c.ToStatus, &c.ChangedBy, &c.ActorRole, &c.Notes, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan status change: %w", err)
		}
		history = append(history, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating history for order %s: %w", orderID, err)
	}
	return history, nil
}

// ActiveDelivery returns nil when the driver carries no open order.
func (r *postgresRepository) ActiveDelivery(ctx context.Context, driverID uuid.UUID) (*driver.Delivery, error) {
	query := `
		SELECT id, vendor_id, customer_id
		FROM fuel_service.orders
		WHERE driver_id = $1 AND status IN ('preparing', 'out_for_delivery')
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var d driver.Delivery
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, driverID).Scan(&d.OrderID, &d.VendorID, &d.CustomerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: failed to find active delivery for driver %s: %w", driverID, err)
	}
	return &d, nil
}
