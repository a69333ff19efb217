package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/fuel-delivery/internal/auth"
	"github.com/vasiliy-maslov/fuel-delivery/internal/db"
	"github.com/vasiliy-maslov/fuel-delivery/internal/metrics"
	"github.com/vasiliy-maslov/fuel-delivery/internal/notify"
)

// Delivery is the order a driver is currently carrying.
type Delivery struct {
	OrderID    uuid.UUID
	VendorID   uuid.UUID
	CustomerID uuid.UUID
}

// DeliveryLookup finds the active delivery of a driver, if any.
type DeliveryLookup interface {
	ActiveDelivery(ctx context.Context, driverID uuid.UUID) (*Delivery, error)
}

type Service interface {
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Driver, error)
	ListAvailable(ctx context.Context, actor auth.Actor) ([]Driver, error)
	SetStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, status Status) (*Driver, error)
	UpdateLocation(ctx context.Context, actor auth.Actor, lat, lng float64) (*Location, error)
	GetLocation(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Location, error)
}

type service struct {
	tx         db.TxManager
	repo       Repository
	locations  LocationStore
	deliveries DeliveryLookup
	sink       notify.Sink
	now        func() time.Time
}

func NewService(tx db.TxManager, repo Repository, locations LocationStore, deliveries DeliveryLookup, sink notify.Sink) Service {
	return &service{
		tx:         tx,
		repo:       repo,
		locations:  locations,
		deliveries: deliveries,
		sink:       sink,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func canView(actor auth.Actor, id uuid.UUID) bool {
	switch actor.Role {
	case auth.RoleAdmin, auth.RoleVendor, auth.RoleCustomer:
		return true
	case auth.RoleDriver:
		return actor.ID == id
	}
	return false
}

func (s *service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Driver, error) {
	if !canView(actor, id) {
		return nil, ErrForbidden
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListAvailable(ctx context.Context, actor auth.Actor) ([]Driver, error) {
	if !actor.Is(auth.RoleVendor) && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	drivers, err := s.repo.ListByStatus(ctx, StatusAvailable)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list available drivers")
		return nil, fmt.Errorf("service: failed to list available drivers: %w", err)
	}
	return drivers, nil
}

// SetStatus lets a driver go online or offline. Busy is owned by order
// assignment: it cannot be set here, and a busy driver cannot leave it here.
func (s *service) SetStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, status Status) (*Driver, error) {
	if !actor.IsAdmin() && !(actor.Is(auth.RoleDriver) && actor.ID == id) {
		return nil, ErrForbidden
	}
	if status == StatusBusy {
		return nil, ErrManualBusyNotAllowed
	}

	var updated *Driver
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		d, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if d.Status == status {
			updated = d
			return nil
		}
		if d.Status == StatusBusy {
			return fmt.Errorf("%w: driver %s is on a delivery and is released by the order", ErrInvalidStatus, d.ID)
		}
		if err := d.Transition(status, s.now()); err != nil {
			return err
		}
		if err := s.repo.UpdateStatus(ctx, d.ID, d.Status, d.UpdatedAt); err != nil {
			return err
		}
		updated = d
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDriverNotFound) || errors.Is(err, ErrInvalidStatus) {
			log.Warn().Err(err).Stringer("driver_id", id).Stringer("status", status).Msg("service: driver status change rejected")
			return nil, err
		}
		log.Error().Err(err).Stringer("driver_id", id).Msg("service: failed to update driver status")
		return nil, fmt.Errorf("service: failed to update driver status: %w", err)
	}

	log.Info().Stringer("driver_id", id).Stringer("status", updated.Status).Msg("service: driver status updated")
	return updated, nil
}

func (s *service) UpdateLocation(ctx context.Context, actor auth.Actor, lat, lng float64) (*Location, error) {
	if !actor.Is(auth.RoleDriver) {
		return nil, ErrForbidden
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, ErrInvalidCoordinates
	}

	loc := Location{DriverID: actor.ID, Latitude: lat, Longitude: lng, UpdatedAt: s.now()}
	if err := s.locations.Save(ctx, loc); err != nil {
		log.Error().Err(err).Stringer("driver_id", actor.ID).Msg("service: failed to store driver location")
		return nil, fmt.Errorf("service: failed to store driver location: %w", err)
	}

	ev := notify.Event{
		Type:      notify.EventDriverLocationUpdated,
		DriverID:  actor.ID,
		Latitude:  &loc.Latitude,
		Longitude: &loc.Longitude,
		Timestamp: loc.UpdatedAt,
	}
	if s.deliveries != nil {
		delivery, err := s.deliveries.ActiveDelivery(ctx, actor.ID)
		if err != nil {
			log.Warn().Err(err).Stringer("driver_id", actor.ID).Msg("service: failed to resolve active delivery")
		} else if delivery != nil {
			ev.OrderID = delivery.OrderID
			ev.VendorID = delivery.VendorID
			ev.CustomerID = delivery.CustomerID
		}
	}

	if err := s.sink.Publish(ctx, ev); err != nil {
		metrics.NotificationFailures.WithLabelValues(string(ev.Type)).Inc()
		log.Warn().Err(err).Stringer("driver_id", actor.ID).Msg("service: failed to publish driver location")
	}

	return &loc, nil
}

func (s *service) GetLocation(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Location, error) {
	if !canView(actor, id) {
		return nil, ErrForbidden
	}
	return s.locations.Get(ctx, id)
}
