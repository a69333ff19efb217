package order_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/fuel-delivery/internal/catalog"
	"github.com/vasiliy-maslov/fuel-delivery/internal/driver"
	"github.com/vasiliy-maslov/fuel-delivery/internal/notify"
	"github.com/vasiliy-maslov/fuel-delivery/internal/order"
)

// passThroughTx runs fn directly. Failing operations in these tests return
// before any write, so there is nothing to roll back.
type passThroughTx struct{}

func (passThroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memoryOrders struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]order.Order
	history []order.StatusChange
}

func newMemoryOrders() *memoryOrders {
	return &memoryOrders{orders: make(map[uuid.UUID]order.Order)}
}

func cloneOrder(o order.Order) *order.Order {
	cp := o
	cp.Items = append([]order.Item(nil), o.Items...)
	if o.DriverID != nil {
		id := *o.DriverID
		cp.DriverID = &id
	}
	return &cp
}

func (m *memoryOrders) put(o order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = *cloneOrder(o)
}

func (m *memoryOrders) stored(id uuid.UUID) *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil
	}
	return cloneOrder(o)
}

func (m *memoryOrders) Create(_ context.Context, o *order.Order) error {
	m.put(*o)
	return nil
}

func (m *memoryOrders) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	if o := m.stored(id); o != nil {
		return o, nil
	}
	return nil, order.ErrOrderNotFound
}

func (m *memoryOrders) GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.GetByID(ctx, id)
}

func (m *memoryOrders) Update(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok || cur.Version != o.Version {
		return order.ErrConcurrentUpdate
	}
	o.Version++
	m.orders[o.ID] = *cloneOrder(*o)
	return nil
}

func (m *memoryOrders) AddStatusChange(_ context.Context, c order.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, c)
	return nil
}

func (m *memoryOrders) History(_ context.Context, orderID uuid.UUID) ([]order.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]order.StatusChange, 0)
	for _, c := range m.history {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryOrders) ActiveDelivery(_ context.Context, driverID uuid.UUID) (*driver.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.HasDriver(driverID) && (o.Status == order.StatusPreparing || o.Status == order.StatusOutForDelivery) {
			return &driver.Delivery{OrderID: o.ID, VendorID: o.VendorID, CustomerID: o.CustomerID}, nil
		}
	}
	return nil, nil
}

func (m *memoryOrders) List(_ context.Context, scope order.Scope, f order.Filter, since time.Time) ([]order.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]order.Order, 0)
	for _, o := range m.orders {
		switch {
		case scope.CustomerID != uuid.Nil && o.CustomerID != scope.CustomerID,
			scope.VendorID != uuid.Nil && o.VendorID != scope.VendorID,
			scope.DriverID != uuid.Nil && !o.HasDriver(scope.DriverID),
			f.Status != "all" && string(o.Status) != f.Status,
			!since.IsZero() && o.CreatedAt.Before(since):
			continue
		}
		matched = append(matched, *cloneOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

type memoryCatalog struct {
	mu       sync.Mutex
	vendors  map[uuid.UUID]catalog.Vendor
	products map[uuid.UUID]catalog.Product
	released []uuid.UUID
}

func newMemoryCatalog(v catalog.Vendor, products ...catalog.Product) *memoryCatalog {
	c := &memoryCatalog{
		vendors:  map[uuid.UUID]catalog.Vendor{v.ID: v},
		products: make(map[uuid.UUID]catalog.Product),
	}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *memoryCatalog) add(p catalog.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *memoryCatalog) releaseOrder() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uuid.UUID(nil), c.released...)
}

func (c *memoryCatalog) available(id uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.products[id].AvailableQuantity
}

func (c *memoryCatalog) GetVendor(_ context.Context, id uuid.UUID) (*catalog.Vendor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vendors[id]
	if !ok {
		return nil, catalog.ErrVendorNotFound
	}
	return &v, nil
}

func (c *memoryCatalog) ListVendors(_ context.Context, verifiedOnly bool) ([]catalog.Vendor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]catalog.Vendor, 0)
	for _, v := range c.vendors {
		if !verifiedOnly || v.IsVerified() {
			out = append(out, v)
		}
	}
	return out, nil
}

func (c *memoryCatalog) ListProducts(_ context.Context, vendorID uuid.UUID) ([]catalog.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]catalog.Product, 0)
	for _, p := range c.products {
		if p.VendorID == vendorID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *memoryCatalog) GetProducts(_ context.Context, vendorID uuid.UUID, ids []uuid.UUID, _ bool) (map[uuid.UUID]catalog.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uuid.UUID]catalog.Product)
	for _, id := range ids {
		if p, ok := c.products[id]; ok && p.VendorID == vendorID {
			out[id] = p
		}
	}
	return out, nil
}

func (c *memoryCatalog) ReserveStock(_ context.Context, productID uuid.UUID, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[productID]
	if !ok {
		return catalog.ErrProductNotFound
	}
	if p.AvailableQuantity < quantity {
		return catalog.ErrInsufficientStock
	}
	p.AvailableQuantity -= quantity
	c.products[productID] = p
	return nil
}

func (c *memoryCatalog) ReleaseStock(_ context.Context, productID uuid.UUID, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[productID]
	if !ok {
		return catalog.ErrProductNotFound
	}
	p.AvailableQuantity += quantity
	c.products[productID] = p
	c.released = append(c.released, productID)
	return nil
}

type memoryDrivers struct {
	mu      sync.Mutex
	drivers map[uuid.UUID]driver.Driver
}

func newMemoryDrivers(drivers ...driver.Driver) *memoryDrivers {
	m := &memoryDrivers{drivers: make(map[uuid.UUID]driver.Driver)}
	for _, d := range drivers {
		m.drivers[d.ID] = d
	}
	return m
}

func (m *memoryDrivers) status(id uuid.UUID) driver.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drivers[id].Status
}

func (m *memoryDrivers) GetByID(_ context.Context, id uuid.UUID) (*driver.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, driver.ErrDriverNotFound
	}
	return &d, nil
}

func (m *memoryDrivers) GetForUpdate(ctx context.Context, id uuid.UUID) (*driver.Driver, error) {
	return m.GetByID(ctx, id)
}

func (m *memoryDrivers) ListByStatus(_ context.Context, status driver.Status) ([]driver.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]driver.Driver, 0)
	for _, d := range m.drivers {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memoryDrivers) UpdateStatus(_ context.Context, id uuid.UUID, status driver.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return driver.ErrDriverNotFound
	}
	d.Status = status
	d.UpdatedAt = at
	m.drivers[id] = d
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) Events() []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Event(nil), s.events...)
}

type fixture struct {
	vendor   catalog.Vendor
	product  catalog.Product
	customer uuid.UUID
	orders   *memoryOrders
	catalog  *memoryCatalog
	drivers  *memoryDrivers
	sink     *recordingSink
	svc      order.Service
}

// newFixture builds a verified vendor selling one product at 500 per litre
// with a delivery fee of 1000.
func newFixture(minimumOrder int64, drivers ...driver.Driver) *fixture {
	vendor := catalog.Vendor{
		ID:                 uuid.Must(uuid.NewV4()),
		Name:               "Lekki Fuel Depot",
		VerificationStatus: catalog.VerificationVerified,
		DeliveryFee:        decimal.NewFromInt(1000),
		MinimumOrder:       decimal.NewFromInt(minimumOrder),
	}
	product := catalog.Product{
		ID:                uuid.Must(uuid.NewV4()),
		VendorID:          vendor.ID,
		Name:              "Diesel",
		Unit:              "litre",
		PricePerUnit:      decimal.NewFromInt(500),
		MinOrderQuantity:  10,
		AvailableQuantity: 1000,
		Active:            true,
	}

	f := &fixture{
		vendor:   vendor,
		product:  product,
		customer: uuid.Must(uuid.NewV4()),
		orders:   newMemoryOrders(),
		catalog:  newMemoryCatalog(vendor, product),
		drivers:  newMemoryDrivers(drivers...),
		sink:     &recordingSink{},
	}
	f.svc = order.NewService(passThroughTx{}, f.orders, f.catalog, f.drivers, f.sink)
	return f
}

// seed stores an order of the fixture's vendor and customer in the given
// state, last touched an hour ago.
func (f *fixture) seed(status order.Status, total int64, driverID *uuid.UUID) order.Order {
	past := time.Now().UTC().Add(-time.Hour)
	o := order.Order{
		ID:         uuid.Must(uuid.NewV4()),
		VendorID:   f.vendor.ID,
		CustomerID: f.customer,
		DriverID:   driverID,
		Status:     status,
		Items: []order.Item{{
			ID:          uuid.Must(uuid.NewV4()),
			Position:    1,
			ProductID:   f.product.ID,
			ProductName: f.product.Name,
			Unit:        f.product.Unit,
			UnitPrice:   f.product.PricePerUnit,
			Quantity:    int((total - 1000) / 500),
			Subtotal:    decimal.NewFromInt(total - 1000),
		}},
		Subtotal:        decimal.NewFromInt(total - 1000),
		DeliveryFee:     decimal.NewFromInt(1000),
		TotalAmount:     decimal.NewFromInt(total),
		DeliveryAddress: "12 Admiralty Way",
		PhoneNumber:     "+2348000000000",
		PaymentMethod:   order.PaymentCash,
		PaymentStatus:   order.PaymentPending,
		Version:         1,
		CreatedAt:       past,
		UpdatedAt:       past,
	}
	o.Items[0].OrderID = o.ID
	f.orders.put(o)
	return o
}
