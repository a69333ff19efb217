package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/fuel-delivery/internal/db"
)

type Repository interface {
	GetVendor(ctx context.Context, id uuid.UUID) (*Vendor, error)
	ListVendors(ctx context.Context, verifiedOnly bool) ([]Vendor, error)
	ListProducts(ctx context.Context, vendorID uuid.UUID) ([]Product, error)
	// GetProducts returns the vendor's products keyed by id. Missing ids are
	// simply absent from the map. forUpdate locks the rows for the current
	// transaction.
	GetProducts(ctx context.Context, vendorID uuid.UUID, ids []uuid.UUID, forUpdate bool) (map[uuid.UUID]Product, error)
	ReserveStock(ctx context.Context, productID uuid.UUID, quantity int) error
	ReleaseStock(ctx context.Context, productID uuid.UUID, quantity int) error
}

type postgresRepository struct {
	pool db.DBTX
}

func NewRepository(pool db.DBTX) Repository {
	return &postgresRepository{pool: pool}
}

const vendorColumns = `id, name, verification_status, delivery_fee, minimum_order, created_at, updated_at`

func scanVendor(row pgx.Row, v *Vendor) error {
	return row.Scan(&v.ID, &v.Name, &v.VerificationStatus, &v.DeliveryFee, &v.MinimumOrder, &v.CreatedAt, &v.UpdatedAt)
}

func (r *postgresRepository) GetVendor(ctx context.Context, id uuid.UUID) (*Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM fuel_service.vendors WHERE id = $1`

	var v Vendor
	if err := scanVendor(db.Conn(ctx, r.pool).QueryRow(ctx, query, id), &v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVendorNotFound
		}
		return nil, fmt.Errorf("repository: failed to select vendor %s: %w", id, err)
	}
	return &v, nil
}

func (r *postgresRepository) ListVendors(ctx context.Context, verifiedOnly bool) ([]Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM fuel_service.vendors`
	args := []any{}
	if verifiedOnly {
		query += ` WHERE verification_status = $1`
		args = append(args, string(VerificationVerified))
	}
	query += ` ORDER BY name`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query vendors: %w", err)
	}
	defer rows.Close()

	vendors := make([]Vendor, 0)
	for rows.Next() {
		var v Vendor
		if err := scanVendor(rows, &v); err != nil {
			return nil, fmt.Errorf("repository: failed to scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating vendors: %w", err)
	}
	return vendors, nil
}

const productColumns = `id, vendor_id, name, unit, price_per_unit, min_order_quantity, available_quantity, active`

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.VendorID, &p.Name, &p.Unit, &p.PricePerUnit,
			&p.MinOrderQuantity, &p.AvailableQuantity, &p.Active); err != nil {
			return nil, fmt.Errorf("repository: failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating products: %w", err)
	}
	return products, nil
}

func (r *postgresRepository) ListProducts(ctx context.Context, vendorID uuid.UUID) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM fuel_service.products WHERE vendor_id = $1 ORDER BY name`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, vendorID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query products for vendor %s: %w", vendorID, err)
	}
	return collectProducts(rows)
}

func (r *postgresRepository) GetProducts(ctx context.Context, vendorID uuid.UUID, ids []uuid.UUID, forUpdate bool) (map[uuid.UUID]Product, error) {
	query := `SELECT ` + productColumns + ` FROM fuel_service.products WHERE vendor_id = $1 AND id = ANY($2) ORDER BY id`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, vendorID, ids)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query products for vendor %s: %w", vendorID, err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

func (r *postgresRepository) ReserveStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `
		UPDATE fuel_service.products
		SET available_quantity = available_quantity - $2, updated_at = now()
		WHERE id = $1 AND available_quantity >= $2
	`
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, query, productID, quantity)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return ErrInsufficientStock
		}
		return fmt.Errorf("repository: failed to reserve stock for product %s: %w", productID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		log.Warn().Stringer("product_id", productID).Int("quantity", quantity).Msg("repository: not enough stock to reserve")
		return ErrInsufficientStock
	}
	return nil
}

func (r *postgresRepository) ReleaseStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `
		UPDATE fuel_service.products
		SET available_quantity = available_quantity + $2, updated_at = now()
		WHERE id = $1
	`
	cmdTag, err := db.Conn(ctx, r.pool).Exec(ctx, query, productID, quantity)
	if err != nil {
		return fmt.Errorf("repository: failed to release stock for product %s: %w", productID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}
