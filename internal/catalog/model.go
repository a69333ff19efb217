package catalog

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrVendorNotFound    = errors.New("vendor not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient product stock")
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// Vendor owns products and the pricing policy applied to its orders.
type Vendor struct {
	ID                 uuid.UUID          `json:"id" db:"id"`
	Name               string             `json:"name" db:"name"`
	VerificationStatus VerificationStatus `json:"verification_status" db:"verification_status"`
	DeliveryFee        decimal.Decimal    `json:"delivery_fee" db:"delivery_fee"`
	MinimumOrder       decimal.Decimal    `json:"minimum_order" db:"minimum_order"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

func (v *Vendor) IsVerified() bool {
	return v.VerificationStatus == VerificationVerified
}

type Product struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	VendorID          uuid.UUID       `json:"vendor_id" db:"vendor_id"`
	Name              string          `json:"name" db:"name"`
	Unit              string          `json:"unit" db:"unit"`
	PricePerUnit      decimal.Decimal `json:"price_per_unit" db:"price_per_unit"`
	MinOrderQuantity  int             `json:"min_order_quantity" db:"min_order_quantity"`
	AvailableQuantity int             `json:"available_quantity" db:"available_quantity"`
	Active            bool            `json:"active" db:"active"`
}
