package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const listColumns = `o.id, o.vendor_id, o.customer_id, o.driver_id, o.status, o.subtotal, o.delivery_fee,
	o.total_amount, o.delivery_address, o.phone_number, o.special_instructions, o.payment_method,
	o.payment_status, o.version, o.created_at, o.updated_at`

// List returns one page of orders matching scope and f, newest first, and
// the total number of matches.
func (r *postgresRepository) List(ctx context.Context, scope Scope, f Filter, since time.Time) ([]Order, int, error) {
	where := []string{"TRUE"}
	args := []any{}

	if scope.CustomerID != uuid.Nil {
		where = append(where, "o.customer_id = ?")
		args = append(args, scope.CustomerID)
	}
	if scope.VendorID != uuid.Nil {
		where = append(where, "o.vendor_id = ?")
		args = append(args, scope.VendorID)
	}
	if scope.DriverID != uuid.Nil {
		where = append(where, "o.driver_id = ?")
		args = append(args, scope.DriverID)
	}
	if f.Status != "" && f.Status != "all" {
		where = append(where, "o.status = ?")
		args = append(args, f.Status)
	}
	if !since.IsZero() {
		where = append(where, "o.created_at >= ?")
		args = append(args, since)
	}
	if f.Search != "" {
		pattern := "%" + likeEscaper.Replace(f.Search) + "%"
		where = append(where, "(o.id::text ILIKE ? OR c.full_name ILIKE ? OR o.phone_number ILIKE ? OR c.phone_number ILIKE ?)")
		args = append(args, pattern, pattern, pattern, pattern)
	}

	from := `
		FROM fuel_service.orders o
		LEFT JOIN fuel_service.customers c ON c.id = o.customer_id
		WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := r.sqlx.GetContext(ctx, &total, r.sqlx.Rebind(`SELECT count(*)`+from), args...); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count orders: %w", err)
	}

	orders := make([]Order, 0)
	if total == 0 {
		return orders, 0, nil
	}

	query := r.sqlx.Rebind(`SELECT ` + listColumns + from + ` ORDER BY o.created_at DESC, o.id LIMIT ? OFFSET ?`)
	if err := r.sqlx.SelectContext(ctx, &orders, query, append(args, f.Limit, f.Offset())...); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to list orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, total, nil
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *postgresRepository) attachItems(ctx context.Context, orders []Order) error {
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}

	query, args, err := sqlx.In(`SELECT `+itemColumns+` FROM fuel_service.order_items WHERE order_id IN (?) ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("repository: failed to build order items query: %w", err)
	}

	var items []Item
	if err := r.sqlx.SelectContext(ctx, &items, r.sqlx.Rebind(query), args...); err != nil {
		return fmt.Errorf("repository: failed to load order items: %w", err)
	}

	byOrder := make(map[uuid.UUID][]Item, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []Item{}
		}
	}
	return nil
}
