package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pratama/storefront/internal/cart"
	"github.com/pratama/storefront/internal/checkout"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Order mirrors the server-authoritative order. Items carry price-at-purchase
// and are never re-derived from live product prices. Created only by a
// successful checkout submission; mutated only by server-pushed transitions.
type Order struct {
	ID              uuid.UUID        `json:"id"`
	Items           []cart.LineItem  `json:"items"`
	Status          Status           `json:"status"`
	PaymentStatus   string           `json:"payment_status"`
	ShippingAddress checkout.Address `json:"shipping_address"`
	Total           decimal.Decimal  `json:"total"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
