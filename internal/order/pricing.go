package order

import (
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/fuel-delivery/internal/catalog"
)

type ItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type SummaryLine struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type Summary struct {
	VendorID    uuid.UUID       `json:"vendor_id"`
	Items       []SummaryLine   `json:"items"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Total       decimal.Decimal `json:"total"`
}

func productIDs(items []ItemRequest) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

// Summarize prices items against the vendor's catalog. It is used both for
// the preview and for order placement, so the two always agree.
func Summarize(vendor *catalog.Vendor, products map[uuid.UUID]catalog.Product, items []ItemRequest) (*Summary, error) {
	verr := &ValidationError{}

	if !vendor.IsVerified() {
		verr.add("vendor_id", "vendor %s is not accepting orders", vendor.ID)
	}
	if len(items) == 0 {
		verr.add("items", "at least one item is required")
		return nil, verr
	}

	summary := &Summary{
		VendorID:    vendor.ID,
		Items:       make([]SummaryLine, 0, len(items)),
		Subtotal:    decimal.Zero,
		DeliveryFee: vendor.DeliveryFee,
	}
	seen := make(map[uuid.UUID]bool, len(items))

	for i, it := range items {
		field := fmt.Sprintf("items[%d]", i)

		if seen[it.ProductID] {
			verr.add(field+".product_id", "product %s is listed more than once", it.ProductID)
			continue
		}
		seen[it.ProductID] = true

		p, ok := products[it.ProductID]
		if !ok || p.VendorID != vendor.ID {
			verr.add(field+".product_id", "product %s is not sold by this vendor", it.ProductID)
			continue
		}
		if !p.Active {
			verr.add(field+".product_id", "product %s is not available", it.ProductID)
			continue
		}
		if it.Quantity <= 0 {
			verr.add(field+".quantity", "must be greater than zero")
			continue
		}
		if it.Quantity < p.MinOrderQuantity {
			verr.add(field+".quantity", "must be at least %d", p.MinOrderQuantity)
			continue
		}
		if it.Quantity > p.AvailableQuantity {
			verr.add(field+".quantity", "only %d available", p.AvailableQuantity)
			continue
		}

		line := SummaryLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Unit:        p.Unit,
			UnitPrice:   p.PricePerUnit,
			Quantity:    it.Quantity,
			Subtotal:    p.PricePerUnit.Mul(decimal.NewFromInt(int64(it.Quantity))),
		}
		summary.Items = append(summary.Items, line)
		summary.Subtotal = summary.Subtotal.Add(line.Subtotal)
	}

	if !verr.empty() {
		return nil, verr
	}

	if summary.Subtotal.LessThan(vendor.MinimumOrder) {
		return nil, invalid("items", fmt.Sprintf("subtotal %s is below the vendor minimum order of %s",
			summary.Subtotal.StringFixed(2), vendor.MinimumOrder.StringFixed(2)))
	}

	summary.Total = summary.Subtotal.Add(summary.DeliveryFee)
	return summary, nil
}

// items converts the priced lines into order items for orderID.
func (s *Summary) items(orderID uuid.UUID) ([]Item, error) {
	items := make([]Item, 0, len(s.Items))
	for i, line := range s.Items {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("service: failed to generate order item id: %w", err)
		}
		items = append(items, Item{
			ID:          id,
			OrderID:     orderID,
			Position:    i + 1,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Unit:        line.Unit,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			Subtotal:    line.Subtotal,
		})
	}
	return items, nil
}
