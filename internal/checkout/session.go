package checkout

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pratama/storefront/internal/cart"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusValidating Status = "validating"
	StatusSubmitting Status = "submitting"
	StatusRedirected Status = "redirected"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Family splits payment methods by submission path: redirect methods hand
// control to an external hosted page, direct methods create the order with an
// authenticated call.
type Family string

const (
	FamilyRedirect Family = "redirect"
	FamilyDirect   Family = "direct"
)

type PaymentMethod string

const (
	MethodCard          PaymentMethod = "card"
	MethodBankTransfer  PaymentMethod = "bank-transfer"
	MethodPayOnDelivery PaymentMethod = "pay-on-delivery"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodPayOnDelivery:
		return true
	}
	return false
}

func (m PaymentMethod) Family() Family {
	if m == MethodPayOnDelivery {
		return FamilyDirect
	}
	return FamilyRedirect
}

// RequiresPhone reports whether the method needs a contact number; the courier
// calls ahead for pay-on-delivery.
func (m PaymentMethod) RequiresPhone() bool {
	return m == MethodPayOnDelivery
}

type Address struct {
	Name       string `validate:"required" json:"name"`
	Street     string `validate:"required" json:"street"`
	City       string `validate:"required" json:"city"`
	Region     string `validate:"required" json:"region"`
	PostalCode string `validate:"required" json:"postal_code"`
	Country    string `validate:"required" json:"country"`
	Phone      string `                    json:"phone,omitempty"`
}

// Request is what the shopper submits to start a checkout.
type Request struct {
	Address  Address         `validate:"required" json:"address"`
	Method   PaymentMethod   `validate:"required" json:"method"`
	Discount decimal.Decimal `                    json:"discount"`
}

// Charge is the computed breakdown in base currency. It is what the engine
// sends upstream; the server performs the final authoritative verification.
type Charge struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Submission is the immutable snapshot taken when a checkout enters
// Submitting. The live cart is not re-read until the submission resolves, so
// concurrently arriving stock events cannot corrupt an in-flight attempt.
type Submission struct {
	AttemptID uuid.UUID       `json:"attempt_id"`
	Method    PaymentMethod   `json:"method"`
	Address   Address         `json:"address"`
	Items     []cart.LineItem `json:"items"`
	Charge    Charge          `json:"charge"`
}

// PaymentSession is the signed payment-initiation payload minted by the
// server for redirect methods. The engine treats it as opaque: it neither
// computes nor verifies the integrity hash, it only forwards the fields
// unmodified to the external gateway.
type PaymentSession struct {
	Action        string            `json:"action"`
	FormFields    map[string]string `json:"form_fields"`
	TransactionID string            `json:"transaction_id"`
}

// Outcome is what a resolved submission produced.
type Outcome struct {
	Family     Family          `json:"family"`
	OrderID    uuid.UUID       `json:"order_id,omitempty"`
	Status     string          `json:"status,omitempty"`
	Payment    *PaymentSession `json:"payment,omitempty"`
	Submission Submission      `json:"submission"`
}
