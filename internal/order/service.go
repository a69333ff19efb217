package order

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/fuel-delivery/internal/auth"
	"github.com/vasiliy-maslov/fuel-delivery/internal/catalog"
	"github.com/vasiliy-maslov/fuel-delivery/internal/db"
	"github.com/vasiliy-maslov/fuel-delivery/internal/driver"
	"github.com/vasiliy-maslov/fuel-delivery/internal/metrics"
	"github.com/vasiliy-maslov/fuel-delivery/internal/notify"
)

type Service interface {
	GetOrderSummary(ctx context.Context, actor auth.Actor, vendorID uuid.UUID, items []ItemRequest) (*Summary, error)
	CreateOrder(ctx context.Context, actor auth.Actor, in CreateOrderInput) (*Order, error)
	GetOrder(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Order, error)
	GetStatusHistory(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]StatusChange, error)
	UpdateOrderStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, status Status, notes string) (*Order, error)
	CancelOrder(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*Order, error)
	AssignDriver(ctx context.Context, actor auth.Actor, id, driverID uuid.UUID) (*Order, error)
	ConfirmPayment(ctx context.Context, actor auth.Actor, id uuid.UUID, amount decimal.Decimal, method string) (*Order, error)
	GetCustomerOrders(ctx context.Context, actor auth.Actor, f Filter) (*Page, error)
	GetVendorOrders(ctx context.Context, actor auth.Actor, f Filter) (*Page, error)
	GetDriverOrders(ctx context.Context, actor auth.Actor, f Filter) (*Page, error)
	GetAllOrders(ctx context.Context, actor auth.Actor, f Filter) (*Page, error)
}

type service struct {
	tx      db.TxManager
	orders  Repository
	catalog catalog.Repository
	drivers driver.Repository
	sink    notify.Sink
	now     func() time.Time
}

func NewService(tx db.TxManager, orders Repository, catalogRepo catalog.Repository, drivers driver.Repository, sink notify.Sink) Service {
	return &service{
		tx:      tx,
		orders:  orders,
		catalog: catalogRepo,
		drivers: drivers,
		sink:    sink,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// publish hands events to the relay. Failures never reach the caller since
// the state change is already committed.
func (s *service) publish(ctx context.Context, events ...notify.Event) {
	for _, ev := range events {
		if err := s.sink.Publish(ctx, ev); err != nil {
			metrics.NotificationFailures.WithLabelValues(string(ev.Type)).Inc()
			log.Warn().Err(err).Stringer("order_id", ev.OrderID).Str("event", string(ev.Type)).Msg("service: failed to publish notification")
		}
	}
}

func statusEvent(o *Order) notify.Event {
	ev := notify.Event{
		Type:          notify.EventOrderStatusUpdated,
		OrderID:       o.ID,
		VendorID:      o.VendorID,
		CustomerID:    o.CustomerID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Timestamp:     o.UpdatedAt,
	}
	if o.DriverID != nil {
		ev.DriverID = *o.DriverID
	}
	return ev
}

// isRejection reports errors caused by the request rather than the system.
func isRejection(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrPaymentMismatch) ||
		errors.Is(err, ErrPaymentAlreadyCompleted) ||
		errors.Is(err, ErrConcurrentUpdate) ||
		errors.Is(err, catalog.ErrVendorNotFound) ||
		errors.Is(err, catalog.ErrInsufficientStock) ||
		errors.Is(err, driver.ErrDriverNotFound) ||
		errors.Is(err, driver.ErrDriverUnavailable)
}

func (s *service) GetOrderSummary(ctx context.Context, actor auth.Actor, vendorID uuid.UUID, items []ItemRequest) (*Summary, error) {
	if !actor.Is(auth.RoleCustomer) && !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	vendor, err := s.catalog.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	products, err := s.catalog.GetProducts(ctx, vendorID, productIDs(items), false)
	if err != nil {
		log.Error().Err(err).Stringer("vendor_id", vendorID).Msg("service: failed to load products for summary")
		return nil, fmt.Errorf("service: failed to load products: %w", err)
	}
	return Summarize(vendor, products, items)
}

func validateCreateInput(actor auth.Actor, in CreateOrderInput) (uuid.UUID, PaymentMethod, error) {
	verr := &ValidationError{}

	customerID := actor.ID
	if actor.IsAdmin() {
		customerID = in.CustomerID
		if customerID == uuid.Nil {
			verr.add("customer_id", "is required when ordering on behalf of a customer")
		}
	}
	if in.VendorID == uuid.Nil {
		verr.add("vendor_id", "is required")
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		verr.add("delivery_address", "is required")
	}
	if strings.TrimSpace(in.PhoneNumber) == "" {
		verr.add("phone_number", "is required")
	}
	method, err := ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		verr.add("payment_method", "must be one of cash, card, transfer")
	}

	if !verr.empty() {
		return uuid.Nil, "", verr
	}
	return customerID, method, nil
}

func (s *service) CreateOrder(ctx context.Context, actor auth.Actor, in CreateOrderInput) (*Order, error) {
	if !actor.Is(auth.RoleCustomer) && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	customerID, method, err := validateCreateInput(actor, in)
	if err != nil {
		return nil, err
	}

	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate order id: %w", err)
	}

	var created *Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		vendor, err := s.catalog.GetVendor(ctx, in.VendorID)
		if err != nil {
			return err
		}
		products, err := s.catalog.GetProducts(ctx, in.VendorID, productIDs(in.Items), true)
		if err != nil {
			return err
		}
		summary, err := Summarize(vendor, products, in.Items)
		if err != nil {
			return err
		}

		for _, line := range summary.Items {
			if err := s.catalog.ReserveStock(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		items, err := summary.items(orderID)
		if err != nil {
			return err
		}

		now := s.now()
		o := &Order{
			ID:                  orderID,
			VendorID:            vendor.ID,
			CustomerID:          customerID,
			Status:              StatusPending,
			Items:               items,
			Subtotal:            summary.Subtotal,
			DeliveryFee:         summary.DeliveryFee,
			TotalAmount:         summary.Total,
			DeliveryAddress:     strings.TrimSpace(in.DeliveryAddress),
			PhoneNumber:         strings.TrimSpace(in.PhoneNumber),
			SpecialInstructions: strings.TrimSpace(in.SpecialInstructions),
			PaymentMethod:       method,
			PaymentStatus:       PaymentPending,
			Version:             1,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		if err := s.orders.AddStatusChange(ctx, StatusChange{
			OrderID:   o.ID,
			ToStatus:  StatusPending,
			ChangedBy: actor.ID,
			ActorRole: actor.Role.String(),
			ChangedAt: now,
		}); err != nil {
			return err
		}

		created = o
		return nil
	})
	if err != nil {
		if isRejection(err) {
			log.Warn().Err(err).Stringer("vendor_id", in.VendorID).Stringer("customer_id", customerID).Msg("service: order rejected")
			return nil, err
		}
		log.Error().Err(err).Stringer("vendor_id", in.VendorID).Msg("service: failed to create order")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	metrics.OrdersCreated.Inc()
	log.Info().Stringer("order_id", created.ID).Stringer("customer_id", created.CustomerID).
		Str("total_amount", created.TotalAmount.StringFixed(2)).Msg("service: order created")

	s.publish(ctx, notify.Event{
		Type:       notify.EventNotificationReceived,
		OrderID:    created.ID,
		VendorID:   created.VendorID,
		CustomerID: created.CustomerID,
		Status:     string(created.Status),
		Message:    "new order received",
		Timestamp:  created.CreatedAt,
	})
	return created, nil
}

func (s *service) GetOrder(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Err(err).Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}
	if !canAccess(actor, o) {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *service) GetStatusHistory(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]StatusChange, error) {
	if _, err := s.GetOrder(ctx, actor, id); err != nil {
		return nil, err
	}
	history, err := s.orders.History(ctx, id)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch status history")
		return nil, fmt.Errorf("service: failed to fetch status history: %w", err)
	}
	return history, nil
}

// byProductID returns a copy of items ordered like the product row locks
// taken in CreateOrder, so releasing stock cannot deadlock against it.
func byProductID(items []Item) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].ProductID.Bytes(), sorted[j].ProductID.Bytes()) < 0
	})
	return sorted
}

// releaseDriver frees a busy driver once their delivery leg is over.
func (s *service) releaseDriver(ctx context.Context, id uuid.UUID, at time.Time) error {
	d, err := s.drivers.GetForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != driver.StatusBusy {
		return nil
	}
	if err := d.Transition(driver.StatusAvailable, at); err != nil {
		return err
	}
	return s.drivers.UpdateStatus(ctx, d.ID, d.Status, d.UpdatedAt)
}

func (s *service) UpdateOrderStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, status Status, notes string) (*Order, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, invalid("status", err.Error())
	}

	var updated *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(actor, o, status); err != nil {
			return err
		}

		now := s.now()
		switch status {
		case StatusDelivered:
			if o.DriverID != nil {
				if err := s.releaseDriver(ctx, *o.DriverID, now); err != nil {
					return err
				}
			}
		case StatusCancelled:
			for _, it := range byProductID(o.Items) {
				if err := s.catalog.ReleaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					return err
				}
			}
			if o.DriverID != nil {
				if err := s.releaseDriver(ctx, *o.DriverID, now); err != nil {
					return err
				}
			}
			if o.PaymentStatus == PaymentCompleted {
				o.PaymentStatus = PaymentRefunded
			}
		}

		from := o.Status
		o.Status = status
		o.UpdatedAt = now
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		if err := s.orders.AddStatusChange(ctx, StatusChange{
			OrderID:    o.ID,
			FromStatus: from,
			ToStatus:   status,
			ChangedBy:  actor.ID,
			ActorRole:  actor.Role.String(),
			Notes:      strings.TrimSpace(notes),
			ChangedAt:  now,
		}); err != nil {
			return err
		}

		updated = o
		return nil
	})
	if err != nil {
		if isRejection(err) {
			metrics.StatusTransitions.WithLabelValues(string(status), "rejected").Inc()
			log.Warn().Err(err).Stringer("order_id", id).Stringer("new_status", status).
				Stringer("role", actor.Role).Msg("service: status change rejected")
			return nil, err
		}
		metrics.StatusTransitions.WithLabelValues(string(status), "error").Inc()
		log.Error().Err(err).Stringer("order_id", id).Stringer("new_status", status).Msg("service: failed to update order status")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	metrics.StatusTransitions.WithLabelValues(string(status), "ok").Inc()
	log.Info().Stringer("order_id", id).Stringer("new_status", status).Stringer("role", actor.Role).Msg("service: order status updated")

	s.publish(ctx, statusEvent(updated))
	return updated, nil
}

func (s *service) CancelOrder(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*Order, error) {
	return s.UpdateOrderStatus(ctx, actor, id, StatusCancelled, reason)
}

// AssignDriver sets the driver of a preparing order. Assigning the current
// driver again changes nothing.
func (s *service) AssignDriver(ctx context.Context, actor auth.Actor, id, driverID uuid.UUID) (*Order, error) {
	if !actor.Is(auth.RoleVendor) && !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	var (
		updated *Order
		changed bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !canAccess(actor, o) {
			return ErrForbidden
		}
		if o.Status != StatusPreparing {
			return &TransitionError{From: o.Status, To: o.Status, Role: actor.Role.String(),
				Reason: "a driver can only be assigned while the order is preparing"}
		}
		if o.HasDriver(driverID) {
			updated = o
			return nil
		}

		now := s.now()
		d, err := s.drivers.GetForUpdate(ctx, driverID)
		if err != nil {
			return err
		}
		if d.Status != driver.StatusAvailable {
			return fmt.Errorf("%w: driver %s is %s", driver.ErrDriverUnavailable, d.ID, d.Status)
		}
		if err := d.Transition(driver.StatusBusy, now); err != nil {
			return err
		}
		if err := s.drivers.UpdateStatus(ctx, d.ID, d.Status, d.UpdatedAt); err != nil {
			return err
		}
		if o.DriverID != nil {
			if err := s.releaseDriver(ctx, *o.DriverID, now); err != nil {
				return err
			}
		}

		o.DriverID = &d.ID
		o.UpdatedAt = now
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}

		updated, changed = o, true
		return nil
	})
	if err != nil {
		if isRejection(err) {
			log.Warn().Err(err).Stringer("order_id", id).Stringer("driver_id", driverID).Msg("service: driver assignment rejected")
			return nil, err
		}
		log.Error().Err(err).Stringer("order_id", id).Stringer("driver_id", driverID).Msg("service: failed to assign driver")
		return nil, fmt.Errorf("service: failed to assign driver: %w", err)
	}

	if changed {
		log.Info().Stringer("order_id", id).Stringer("driver_id", driverID).Msg("service: driver assigned")
		ev := statusEvent(updated)
		ev.Type = notify.EventDeliveryUpdated
		s.publish(ctx, ev)
	}
	return updated, nil
}

// ConfirmPayment records cash received on delivery. The amount has to match
// the order total exactly.
func (s *service) ConfirmPayment(ctx context.Context, actor auth.Actor, id uuid.UUID, amount decimal.Decimal, method string) (*Order, error) {
	if method == "" {
		method = "CASH"
	}
	if !strings.EqualFold(method, string(PaymentCash)) {
		return nil, invalid("method", "only CASH confirmation is supported")
	}
	if actor.Is(auth.RoleCustomer) {
		return nil, ErrForbidden
	}

	var updated *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !canAccess(actor, o) {
			return ErrForbidden
		}
		if o.PaymentMethod != PaymentCash {
			return invalid("payment_method", fmt.Sprintf("order is paid by %s, not cash", o.PaymentMethod))
		}
		if o.PaymentStatus == PaymentCompleted {
			return ErrPaymentAlreadyCompleted
		}
		if o.Status == StatusCancelled {
			return &TransitionError{From: o.Status, To: o.Status, Role: actor.Role.String(),
				Reason: "cannot take payment for a cancelled order"}
		}
		if !amount.Equal(o.TotalAmount) {
			return &PaymentMismatchError{Expected: o.TotalAmount, Received: amount}
		}

		o.PaymentStatus = PaymentCompleted
		o.UpdatedAt = s.now()
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		if isRejection(err) {
			metrics.PaymentsConfirmed.WithLabelValues("rejected").Inc()
			log.Warn().Err(err).Stringer("order_id", id).Str("amount", amount.String()).Msg("service: payment confirmation rejected")
			return nil, err
		}
		metrics.PaymentsConfirmed.WithLabelValues("error").Inc()
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to confirm payment")
		return nil, fmt.Errorf("service: failed to confirm payment: %w", err)
	}

	metrics.PaymentsConfirmed.WithLabelValues("ok").Inc()
	log.Info().Stringer("order_id", id).Str("amount", amount.StringFixed(2)).Msg("service: cash payment confirmed")

	s.publish(ctx, statusEvent(updated))
	return updated, nil
}

func (s *service) list(ctx context.Context, scope Scope, f Filter) (*Page, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}

	orders, total, err := s.orders.List(ctx, scope, f, f.DateRange.Since(s.now()))
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return &Page{Items: orders, Page: f.Page, Limit: f.Limit, Total: total}, nil
}

func (s *service) GetCustomerOrders(ctx context.Context, actor auth.Actor, f Filter) (*Page, error) {
	if !actor.Is(auth.RoleCustomer) {
		return nil, ErrForbidden
	}
	return s.list(ctx, Scope{CustomerID: actor.ID}, f)
}

func (s *service) GetVendorOrders(ctx context.Context, actor auth.Actor, f Filter) (*Page, error) {
	if !actor.Is(auth.RoleVendor) {
		return nil, ErrForbidden
	}
	return s.list(ctx, Scope{VendorID: actor.ID}, f)
}

func (s *service) GetDriverOrders(ctx context.Context, actor auth.Actor, f Filter) (*Page, error) {
	if !actor.Is(auth.RoleDriver) {
		return nil, ErrForbidden
	}
	return s.list(ctx, Scope{DriverID: actor.ID}, f)
}

func (s *service) GetAllOrders(ctx context.Context, actor auth.Actor, f Filter) (*Page, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.list(ctx, Scope{}, f)
}
