package checkout

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratama/storefront/internal/cart"
	inErrors "github.com/pratama/storefront/internal/errors"
)

func testPolicy() Policy {
	return Policy{
		BaseCurrency:          "USD",
		TaxRate:               decimal.RequireFromString("0.1"),
		FreeShippingThreshold: decimal.RequireFromString("100"),
		FlatShippingFee:       decimal.RequireFromString("5"),
	}
}

func lineAt(unitPrice string, qty int32) cart.LineItem {
	productID := uuid.New()
	return cart.LineItem{
		Key:       cart.ItemKey(productID, cart.Variant{}),
		ProductID: productID,
		Name:      "sneaker",
		UnitPrice: decimal.RequireFromString(unitPrice),
		Quantity:  qty,
	}
}

func TestComputeCharge(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		items    []cart.LineItem
		discount string
		expected Charge
		err      error
	}{
		{
			name:     "given cart below threshold should charge flat shipping",
			policy:   testPolicy(),
			items:    []cart.LineItem{lineAt("10.00", 3)},
			discount: "0",
			expected: Charge{
				Subtotal: decimal.RequireFromString("30"),
				Tax:      decimal.RequireFromString("3"),
				Shipping: decimal.RequireFromString("5"),
				Discount: decimal.Zero,
				Total:    decimal.RequireFromString("38"),
			},
		},
		{
			name:     "given cart above threshold should waive shipping",
			policy:   testPolicy(),
			items:    []cart.LineItem{lineAt("60.00", 2)},
			discount: "0",
			expected: Charge{
				Subtotal: decimal.RequireFromString("120"),
				Tax:      decimal.RequireFromString("12"),
				Shipping: decimal.Zero,
				Discount: decimal.Zero,
				Total:    decimal.RequireFromString("132"),
			},
		},
		{
			name:     "given discount should subtract it from total",
			policy:   testPolicy(),
			items:    []cart.LineItem{lineAt("10.00", 3)},
			discount: "8",
			expected: Charge{
				Subtotal: decimal.RequireFromString("30"),
				Tax:      decimal.RequireFromString("3"),
				Shipping: decimal.RequireFromString("5"),
				Discount: decimal.RequireFromString("8"),
				Total:    decimal.RequireFromString("30"),
			},
		},
		{
			name: "given fractional prices should round once per line and once at total",
			policy: Policy{
				BaseCurrency:          "USD",
				TaxRate:               decimal.RequireFromString("0.07"),
				FreeShippingThreshold: decimal.RequireFromString("100"),
				FlatShippingFee:       decimal.RequireFromString("4.99"),
			},
			items:    []cart.LineItem{lineAt("0.333", 3), lineAt("19.99", 2)},
			discount: "0",
			expected: Charge{
				Subtotal: decimal.RequireFromString("40.98"),
				Tax:      decimal.RequireFromString("2.87"),
				Shipping: decimal.RequireFromString("4.99"),
				Discount: decimal.Zero,
				Total:    decimal.RequireFromString("48.84"),
			},
		},
		{
			name: "given tax rate above 1 should fail integrity check",
			policy: Policy{
				BaseCurrency:          "USD",
				TaxRate:               decimal.RequireFromString("1.5"),
				FreeShippingThreshold: decimal.RequireFromString("100"),
				FlatShippingFee:       decimal.RequireFromString("5"),
			},
			items:    []cart.LineItem{lineAt("10.00", 1)},
			discount: "0",
			err:      inErrors.ErrIntegrity,
		},
		{
			name:     "given discount exceeding charge should fail integrity check",
			policy:   testPolicy(),
			items:    []cart.LineItem{lineAt("10.00", 1)},
			discount: "1000",
			err:      inErrors.ErrIntegrity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeCharge(
				tt.policy,
				tt.items,
				decimal.RequireFromString(tt.discount),
			)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Subtotal.Equal(tt.expected.Subtotal), "subtotal %s", got.Subtotal)
			assert.True(t, got.Tax.Equal(tt.expected.Tax), "tax %s", got.Tax)
			assert.True(t, got.Shipping.Equal(tt.expected.Shipping), "shipping %s", got.Shipping)
			assert.True(t, got.Discount.Equal(tt.expected.Discount), "discount %s", got.Discount)
			assert.True(t, got.Total.Equal(tt.expected.Total), "total %s", got.Total)
		})
	}
}

// The breakdown must always reassemble into the total, whatever the inputs.
func TestChargeComponentsSumToTotal(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	policy := testPolicy()

	for i := 0; i < 200; i++ {
		items := make([]cart.LineItem, 0, 5)
		for j := 0; j < 1+rng.Intn(5); j++ {
			cents := 1 + rng.Intn(100000)
			items = append(items, lineAt(
				decimal.New(int64(cents), -2).String(),
				int32(1+rng.Intn(9)),
			))
		}
		discount := decimal.New(int64(rng.Intn(500)), -2)

		charge, err := ComputeCharge(policy, items, discount)
		require.NoError(t, err)

		reassembled := charge.Subtotal.
			Add(charge.Tax).
			Add(charge.Shipping).
			Sub(charge.Discount).
			Round(2)
		assert.True(
			t,
			charge.Total.Equal(reassembled),
			"total=%s reassembled=%s",
			charge.Total,
			reassembled,
		)
	}
}
