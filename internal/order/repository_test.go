package order_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/fuel-delivery/internal/config"
	"github.com/vasiliy-maslov/fuel-delivery/internal/db"
	"github.com/vasiliy-maslov/fuel-delivery/internal/order"
)

// pg is set only when DB_HOST points at a disposable database.
var pg *db.Postgres

func TestMain(m *testing.M) {
	if os.Getenv("DB_HOST") != "" {
		if os.Getenv("JWT_SECRET") == "" {
			os.Setenv("JWT_SECRET", "integration")
		}
		cfg, err := config.Load("")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load test database config")
		}
		cfg.Postgres.MigrationsPath = "../../migrations"
		if err := db.ApplyMigrations(cfg.Postgres); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate test database")
		}
		pg, err = db.New(context.Background(), cfg.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to test database")
		}
	}

	exitCode := m.Run()

	if pg != nil {
		pg.Close()
	}
	os.Exit(exitCode)
}

func requireDB(t *testing.T) {
	t.Helper()
	if pg == nil {
		t.Skip("DB_HOST not set, skipping postgres repository test")
	}
}

type seededCatalog struct {
	vendorID   uuid.UUID
	productID  uuid.UUID
	customerID uuid.UUID
	driverID   uuid.UUID
}

func seedCatalog(t *testing.T, ctx context.Context) seededCatalog {
	t.Helper()
	s := seededCatalog{
		vendorID:   uuid.Must(uuid.NewV4()),
		productID:  uuid.Must(uuid.NewV4()),
		customerID: uuid.Must(uuid.NewV4()),
		driverID:   uuid.Must(uuid.NewV4()),
	}
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO fuel_service.vendors (id, name, verification_status, delivery_fee, minimum_order) VALUES ($1, 'Ikeja Depot', 'verified', 1000, 5000)`, []any{s.vendorID}},
		{`INSERT INTO fuel_service.products (id, vendor_id, name, price_per_unit, available_quantity) VALUES ($1, $2, 'Diesel', 500, 100)`, []any{s.productID, s.vendorID}},
		{`INSERT INTO fuel_service.customers (id, full_name, phone_number) VALUES ($1, 'Amaka Obi', '+2348031234567')`, []any{s.customerID}},
		{`INSERT INTO fuel_service.drivers (id, name, status) VALUES ($1, 'Tunde', 'available')`, []any{s.driverID}},
	}
	for _, st := range stmts {
		_, err := pg.Pool.Exec(ctx, st.sql, st.args...)
		require.NoError(t, err)
	}
	return s
}

func newOrder(s seededCatalog, createdAt time.Time) *order.Order {
	id := uuid.Must(uuid.NewV4())
	return &order.Order{
		ID:         id,
		VendorID:   s.vendorID,
		CustomerID: s.customerID,
		Status:     order.StatusPending,
		Items: []order.Item{{
			ID:          uuid.Must(uuid.NewV4()),
			OrderID:     id,
			Position:    1,
			ProductID:   s.productID,
			ProductName: "Diesel",
			Unit:        "litre",
			UnitPrice:   decimal.NewFromInt(500),
			Quantity:    20,
			Subtotal:    decimal.NewFromInt(10000),
		}},
		Subtotal:        decimal.NewFromInt(10000),
		DeliveryFee:     decimal.NewFromInt(1000),
		TotalAmount:     decimal.NewFromInt(11000),
		DeliveryAddress: "3 Allen Avenue",
		PhoneNumber:     "+2348031234567",
		PaymentMethod:   order.PaymentCash,
		PaymentStatus:   order.PaymentPending,
		Version:         1,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

func TestPostgresOrderRepository_CreateAndGet(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	s := seedCatalog(t, ctx)
	repo := order.NewRepository(pg.Pool, pg.SQLX)

	o := newOrder(s, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Nil(t, got.DriverID)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(11000)))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Diesel", got.Items[0].ProductName)

	_, err = repo.GetByID(ctx, uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestPostgresOrderRepository_UpdateVersionCheck(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	s := seedCatalog(t, ctx)
	repo := order.NewRepository(pg.Pool, pg.SQLX)

	o := newOrder(s, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, o))

	stale := *o
	o.Status = order.StatusConfirmed
	o.DriverID = &s.driverID
	require.NoError(t, repo.Update(ctx, o))
	assert.Equal(t, 2, o.Version)

	stale.Status = order.StatusCancelled
	assert.ErrorIs(t, repo.Update(ctx, &stale), order.ErrConcurrentUpdate)

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)
	require.NotNil(t, got.DriverID)
	assert.Equal(t, s.driverID, *got.DriverID)
}

func TestPostgresOrderRepository_List(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	s := seedCatalog(t, ctx)
	repo := order.NewRepository(pg.Pool, pg.SQLX)

	now := time.Now().UTC()
	recent := newOrder(s, now)
	old := newOrder(s, now.AddDate(0, -2, 0))
	require.NoError(t, repo.Create(ctx, recent))
	require.NoError(t, repo.Create(ctx, old))

	base, err := order.Filter{}.Normalize()
	require.NoError(t, err)

	orders, total, err := repo.List(ctx, order.Scope{VendorID: s.vendorID}, base, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, orders, 2)
	assert.Equal(t, recent.ID, orders[0].ID, "newest first")
	assert.Len(t, orders[0].Items, 1)

	_, total, err = repo.List(ctx, order.Scope{VendorID: s.vendorID}, base, order.DateRangeMonth.Since(now))
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	byName := base
	byName.Search = "amaka"
	_, total, err = repo.List(ctx, order.Scope{VendorID: s.vendorID}, byName, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	byID := base
	byID.Search = recent.ID.String()[:8]
	orders, total, err = repo.List(ctx, order.Scope{VendorID: s.vendorID}, byID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, recent.ID, orders[0].ID)

	delivered := base
	delivered.Status = string(order.StatusDelivered)
	_, total, err = repo.List(ctx, order.Scope{VendorID: s.vendorID}, delivered, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}
