package driver

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrDriverNotFound       = errors.New("driver not found")
	ErrDriverUnavailable    = errors.New("driver is not available")
	ErrInvalidStatus        = errors.New("invalid driver status transition")
	ErrLocationNotFound     = errors.New("driver location not found")
	ErrForbidden            = errors.New("actor is not allowed to manage this driver")
	ErrInvalidCoordinates   = errors.New("latitude must be within [-90, 90] and longitude within [-180, 180]")
	ErrManualBusyNotAllowed = errors.New("busy status is set by order assignment only")
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusOffline   Status = "offline"
)

func (s Status) String() string {
	return string(s)
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusAvailable, StatusBusy, StatusOffline:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, s)
	}
}

// allowedTransitions: available <-> busy, available <-> offline. A busy
// driver has to finish or be released from the delivery first.
var allowedTransitions = map[Status]map[Status]bool{
	StatusAvailable: {
		StatusBusy:    true,
		StatusOffline: true,
	},
	StatusBusy: {
		StatusAvailable: true,
	},
	StatusOffline: {
		StatusAvailable: true,
	},
}

func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

type Driver struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	PhoneNumber string    `json:"phone_number" db:"phone_number"`
	Status      Status    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Transition moves the driver to next, refusing moves outside the state
// machine.
func (d *Driver) Transition(next Status, at time.Time) error {
	if !CanTransition(d.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, d.Status, next)
	}
	d.Status = next
	d.UpdatedAt = at
	return nil
}

type Location struct {
	DriverID  uuid.UUID `json:"driver_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updated_at"`
}
