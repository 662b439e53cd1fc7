package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pratama/storefront/internal/cart"
	inErrors "github.com/pratama/storefront/internal/errors"
)

// Policy carries the business values the engine applies but does not decide.
type Policy struct {
	BaseCurrency          string
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
}

// ComputeCharge derives the charge breakdown in base currency with decimal
// arithmetic throughout. Rounding is applied once per line (inside
// LineItem.Total) and once at the total.
func ComputeCharge(
	policy Policy,
	items []cart.LineItem,
	discount decimal.Decimal,
) (Charge, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Total())
	}

	tax := subtotal.Mul(policy.TaxRate).Round(2)

	shipping := policy.FlatShippingFee
	if subtotal.GreaterThan(policy.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	total := subtotal.Add(tax).Add(shipping).Sub(discount).Round(2)

	charge := Charge{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    total,
	}
	if err := checkIntegrity(policy, charge); err != nil {
		return Charge{}, err
	}
	return charge, nil
}

// checkIntegrity is the hard gate before any network call: a submission with a
// malformed charge aborts locally.
func checkIntegrity(policy Policy, charge Charge) error {
	one := decimal.NewFromInt(1)
	if policy.TaxRate.IsNegative() || policy.TaxRate.GreaterThan(one) {
		return fmt.Errorf(
			"tax rate=%s out of range: %w",
			policy.TaxRate.String(),
			inErrors.ErrIntegrity,
		)
	}
	if policy.FlatShippingFee.IsNegative() || policy.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("shipping policy is negative: %w", inErrors.ErrIntegrity)
	}
	for name, amount := range map[string]decimal.Decimal{
		"subtotal": charge.Subtotal,
		"tax":      charge.Tax,
		"shipping": charge.Shipping,
		"discount": charge.Discount,
		"total":    charge.Total,
	} {
		if amount.IsNegative() {
			return fmt.Errorf("%s=%s is negative: %w", name, amount.String(), inErrors.ErrIntegrity)
		}
	}
	return nil
}
