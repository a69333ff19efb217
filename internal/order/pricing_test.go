package order_test

import (
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/fuel-delivery/internal/catalog"
	"github.com/vasiliy-maslov/fuel-delivery/internal/order"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestSummarize(t *testing.T) {
	vendor := catalog.Vendor{
		ID:                 uuid.Must(uuid.NewV4()),
		VerificationStatus: catalog.VerificationVerified,
		DeliveryFee:        decimal.NewFromInt(1000),
		MinimumOrder:       decimal.NewFromInt(5000),
	}
	diesel := catalog.Product{
		ID:                uuid.Must(uuid.NewV4()),
		VendorID:          vendor.ID,
		Name:              "Diesel",
		Unit:              "litre",
		PricePerUnit:      decimal.NewFromInt(500),
		MinOrderQuantity:  10,
		AvailableQuantity: 100,
		Active:            true,
	}
	retired := diesel
	retired.ID = uuid.Must(uuid.NewV4())
	retired.Active = false
	foreign := diesel
	foreign.ID = uuid.Must(uuid.NewV4())
	foreign.VendorID = uuid.Must(uuid.NewV4())

	products := map[uuid.UUID]catalog.Product{diesel.ID: diesel, retired.ID: retired, foreign.ID: foreign}

	tests := []struct {
		name       string
		vendor     func(v catalog.Vendor) catalog.Vendor
		items      []order.ItemRequest
		want       *order.Summary
		wantFields []string
	}{
		{
			name:  "accepted_above_minimum",
			items: []order.ItemRequest{{ProductID: diesel.ID, Quantity: 20}},
			want: &order.Summary{
				VendorID: vendor.ID,
				Items: []order.SummaryLine{{
					ProductID:   diesel.ID,
					ProductName: "Diesel",
					Unit:        "litre",
					UnitPrice:   decimal.NewFromInt(500),
					Quantity:    20,
					Subtotal:    decimal.NewFromInt(10000),
				}},
				Subtotal:    decimal.NewFromInt(10000),
				DeliveryFee: decimal.NewFromInt(1000),
				Total:       decimal.NewFromInt(11000),
			},
		},
		{
			name: "below_vendor_minimum",
			vendor: func(v catalog.Vendor) catalog.Vendor {
				v.MinimumOrder = decimal.NewFromInt(20000)
				return v
			},
			items:      []order.ItemRequest{{ProductID: diesel.ID, Quantity: 20}},
			wantFields: []string{"items"},
		},
		{
			name:       "empty_cart",
			items:      nil,
			wantFields: []string{"items"},
		},
		{
			name:       "below_min_order_quantity",
			items:      []order.ItemRequest{{ProductID: diesel.ID, Quantity: 5}},
			wantFields: []string{"items[0].quantity"},
		},
		{
			name:       "above_available_quantity",
			items:      []order.ItemRequest{{ProductID: diesel.ID, Quantity: 101}},
			wantFields: []string{"items[0].quantity"},
		},
		{
			name:       "non_positive_quantity",
			items:      []order.ItemRequest{{ProductID: diesel.ID, Quantity: 0}},
			wantFields: []string{"items[0].quantity"},
		},
		{
			name: "duplicate_and_foreign_and_inactive",
			items: []order.ItemRequest{
				{ProductID: diesel.ID, Quantity: 20},
				{ProductID: diesel.ID, Quantity: 20},
				{ProductID: foreign.ID, Quantity: 20},
				{ProductID: retired.ID, Quantity: 20},
			},
			wantFields: []string{"items[1].product_id", "items[2].product_id", "items[3].product_id"},
		},
		{
			name: "unverified_vendor",
			vendor: func(v catalog.Vendor) catalog.Vendor {
				v.VerificationStatus = catalog.VerificationPending
				return v
			},
			items:      []order.ItemRequest{{ProductID: diesel.ID, Quantity: 20}},
			wantFields: []string{"vendor_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := vendor
			if tt.vendor != nil {
				v = tt.vendor(v)
			}

			got, err := order.Summarize(&v, products, tt.items)

			if tt.wantFields != nil {
				require.ErrorIs(t, err, order.ErrValidation)
				var verr *order.ValidationError
				require.True(t, errors.As(err, &verr))
				fields := make([]string, 0, len(verr.Fields))
				for _, f := range verr.Fields {
					fields = append(fields, f.Field)
				}
				assert.Equal(t, tt.wantFields, fields)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got, decimalEqual); diff != "" {
				t.Errorf("Summarize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
