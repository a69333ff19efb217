package notify

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

type EventType string

const (
	EventOrderStatusUpdated    EventType = "order_status_updated"
	EventDeliveryUpdated       EventType = "delivery_updated"
	EventNotificationReceived  EventType = "notification_received"
	EventDriverLocationUpdated EventType = "driver_location_updated"
)

// Event is the JSON message pushed to connected clients. Routing ids that
// are uuid.Nil are left out of delivery.
type Event struct {
	Type          EventType `json:"type"`
	OrderID       uuid.UUID `json:"order_id"`
	VendorID      uuid.UUID `json:"vendor_id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	DriverID      uuid.UUID `json:"driver_id"`
	Status        string    `json:"status,omitempty"`
	PaymentStatus string    `json:"payment_status,omitempty"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	Message       string    `json:"message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sink receives events after the state change that produced them has been
// committed. Delivery is best effort.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Fanout publishes each event to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
