package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pratama/storefront/internal/cart"
	"github.com/pratama/storefront/internal/log"
)

// StockUpdate is the wire shape of a pushed stock-level change.
type StockUpdate struct {
	ProductID         uuid.UUID `json:"product_id"`
	AvailableQuantity int32     `json:"available_quantity"`
}

// Snapshot is the last-known available quantity for a product. The server is
// authoritative; this copy is advisory.
type Snapshot struct {
	Available  int32     `json:"available"`
	ReceivedAt time.Time `json:"received_at"`
}

// Warning flags a cart line whose quantity exceeds last-known stock. The
// ledger is never mutated automatically; the shopper must explicitly reduce or
// remove the line.
type Warning struct {
	ItemKey   string    `json:"item_key"`
	ProductID uuid.UUID `json:"product_id"`
	Available int32     `json:"available"`
}

// Book holds the client-side stock snapshots and the outstanding warnings
// derived from them. Like the ledger it is owned by the engine event loop and
// carries no locking of its own.
type Book struct {
	snapshots map[uuid.UUID]Snapshot
	warnings  map[string]Warning
}

func NewBook() *Book {
	return &Book{
		snapshots: map[uuid.UUID]Snapshot{},
		warnings:  map[string]Warning{},
	}
}

// Available implements cart.StockView.
func (b *Book) Available(productID uuid.UUID) (int32, bool) {
	snap, ok := b.snapshots[productID]
	return snap.Available, ok
}

// Apply records a pushed stock update and re-derives warnings for every cart
// line referencing the product. Updates apply in arrival order: the last
// received wins for a product, regardless of send order.
func (b *Book) Apply(c context.Context, update StockUpdate, lines []cart.LineItem) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Book Apply").
		Str(log.KeyProductID, update.ProductID.String()).
		Int32(log.KeyAvailable, update.AvailableQuantity).
		Logger()

	b.snapshots[update.ProductID] = Snapshot{
		Available:  update.AvailableQuantity,
		ReceivedAt: time.Now(),
	}

	for _, line := range lines {
		if line.ProductID != update.ProductID {
			continue
		}
		if line.Quantity > update.AvailableQuantity {
			b.warnings[line.Key] = Warning{
				ItemKey:   line.Key,
				ProductID: line.ProductID,
				Available: update.AvailableQuantity,
			}
			logger.Warn().
				Str(log.KeyItemKey, line.Key).
				Int32(log.KeyQuantity, line.Quantity).
				Msg("cart line exceeds available stock")
			continue
		}
		if _, ok := b.warnings[line.Key]; ok {
			delete(b.warnings, line.Key)
			logger.Info().Str(log.KeyItemKey, line.Key).Msg("stock warning cleared")
		}
	}
}

// Reconcile re-derives every warning from the current snapshots and cart
// lines. Called after cart mutations (a reduced or removed line resolves its
// warning) and after a full reconciliation fetch.
func (b *Book) Reconcile(c context.Context, lines []cart.LineItem) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Book Reconcile").
		Logger()

	next := map[string]Warning{}
	for _, line := range lines {
		snap, ok := b.snapshots[line.ProductID]
		if !ok {
			continue
		}
		if line.Quantity > snap.Available {
			next[line.Key] = Warning{
				ItemKey:   line.Key,
				ProductID: line.ProductID,
				Available: snap.Available,
			}
		}
	}
	if len(next) != len(b.warnings) {
		logger.Info().
			Int(log.KeyWarnings, len(next)).
			Msg("reconciled stock warnings")
	}
	b.warnings = next
}

// Outstanding returns the unresolved warnings in deterministic order.
func (b *Book) Outstanding() []Warning {
	warnings := make([]Warning, 0, len(b.warnings))
	for _, w := range b.warnings {
		warnings = append(warnings, w)
	}
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].ItemKey < warnings[j].ItemKey })
	return warnings
}

// Snapshots returns a copy of the current stock snapshots.
func (b *Book) Snapshots() map[uuid.UUID]Snapshot {
	snapshots := make(map[uuid.UUID]Snapshot, len(b.snapshots))
	for id, snap := range b.snapshots {
		snapshots[id] = snap
	}
	return snapshots
}
