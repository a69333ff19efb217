package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown order status %q", s)
	}
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) String() string {
	return string(s)
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return m, nil
	default:
		return "", fmt.Errorf("unknown payment method %q", s)
	}
}

// Item is a line of an order. Name, unit and price are copied from the
// catalog when the order is placed and never re-read.
type Item struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OrderID     uuid.UUID       `json:"order_id" db:"order_id"`
	Position    int             `json:"position" db:"position"`
	ProductID   uuid.UUID       `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name" db:"product_name"`
	Unit        string          `json:"unit" db:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal" db:"subtotal"`
}

type Order struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	VendorID            uuid.UUID       `json:"vendor_id" db:"vendor_id"`
	CustomerID          uuid.UUID       `json:"customer_id" db:"customer_id"`
	DriverID            *uuid.UUID      `json:"driver_id" db:"driver_id"`
	Status              Status          `json:"status" db:"status"`
	Items               []Item          `json:"items" db:"-"`
	Subtotal            decimal.Decimal `json:"subtotal" db:"subtotal"`
	DeliveryFee         decimal.Decimal `json:"delivery_fee" db:"delivery_fee"`
	TotalAmount         decimal.Decimal `json:"total_amount" db:"total_amount"`
	DeliveryAddress     string          `json:"delivery_address" db:"delivery_address"`
	PhoneNumber         string          `json:"phone_number" db:"phone_number"`
	SpecialInstructions string          `json:"special_instructions,omitempty" db:"special_instructions"`
	PaymentMethod       PaymentMethod   `json:"payment_method" db:"payment_method"`
	PaymentStatus       PaymentStatus   `json:"payment_status" db:"payment_status"`
	Version             int             `json:"version" db:"version"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

func (o *Order) HasDriver(id uuid.UUID) bool {
	return o.DriverID != nil && *o.DriverID == id
}

// StatusChange is one row of an order's status history.
type StatusChange struct {
	OrderID    uuid.UUID `json:"order_id"`
	FromStatus Status    `json:"from_status,omitempty"`
	ToStatus   Status    `json:"to_status"`
	ChangedBy  uuid.UUID `json:"changed_by"`
	ActorRole  string    `json:"actor_role"`
	Notes      string    `json:"notes,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

type CreateOrderInput struct {
	// CustomerID is only read when an admin places the order on a
	// customer's behalf.
	CustomerID          uuid.UUID
	VendorID            uuid.UUID
	Items               []ItemRequest
	DeliveryAddress     string
	PhoneNumber         string
	PaymentMethod       string
	SpecialInstructions string
}
