package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratama/storefront/internal/cart"
	"github.com/pratama/storefront/internal/inventory"
	"github.com/pratama/storefront/internal/order"
)

func startEngine(t *testing.T) (*Engine, context.Context) {
	t.Helper()
	c, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	book := inventory.NewBook()
	ledger := cart.NewLedger("session-test", book, nil)
	eng := New(ledger, book, order.NewTracker())
	go eng.Run(c)
	return eng, c
}

func TestDoSerializesCommands(t *testing.T) {
	eng, c := startEngine(t)
	productID := uuid.New()

	// Many concurrent merges into the same line must serialize cleanly.
	done := make(chan error)
	for i := 0; i < 50; i++ {
		go func() {
			done <- eng.Do(c, func(cc context.Context) {
				_, err := eng.Ledger().AddItem(cc, cart.Product{
					ID:        productID,
					Name:      "sneaker",
					UnitPrice: decimal.NewFromInt(10),
				}, 1, cart.Variant{})
				assert.NoError(t, err)
			})
		}()
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, <-done)
	}

	var items []cart.LineItem
	require.NoError(t, eng.Do(c, func(context.Context) {
		items = eng.Ledger().Items()
	}))
	require.Len(t, items, 1)
	assert.Equal(t, int32(50), items[0].Quantity)
}

func TestStockUpdatedEventRaisesWarning(t *testing.T) {
	eng, c := startEngine(t)
	productID := uuid.New()

	require.NoError(t, eng.Do(c, func(cc context.Context) {
		_, err := eng.Ledger().AddItem(cc, cart.Product{
			ID:        productID,
			Name:      "sneaker",
			UnitPrice: decimal.NewFromInt(10),
		}, 5, cart.Variant{})
		assert.NoError(t, err)
	}))

	eng.Publish(c, StockUpdated{Update: inventory.StockUpdate{
		ProductID:         productID,
		AvailableQuantity: 3,
	}})

	// The event is applied by the loop; observe through a serialized read.
	assert.Eventually(t, func() bool {
		var warnings []inventory.Warning
		if err := eng.Do(c, func(context.Context) {
			warnings = eng.Book().Outstanding()
		}); err != nil {
			return false
		}
		return len(warnings) == 1 && warnings[0].Available == 3
	}, time.Second, 10*time.Millisecond)

	// The cart itself is untouched; the shopper resolves the warning.
	var quantity int32
	require.NoError(t, eng.Do(c, func(context.Context) {
		quantity = eng.Ledger().Items()[0].Quantity
	}))
	assert.Equal(t, int32(5), quantity)
}

func TestOrderUpdatedEventAdoptsState(t *testing.T) {
	eng, c := startEngine(t)
	o := order.Order{
		ID:        uuid.New(),
		Status:    order.StatusShipped,
		Total:     decimal.NewFromInt(38),
		CreatedAt: time.Now(),
	}

	eng.Publish(c, OrderUpdated{Order: o})

	assert.Eventually(t, func() bool {
		var got order.Order
		var ok bool
		if err := eng.Do(c, func(context.Context) {
			got, ok = eng.Tracker().Get(o.ID)
		}); err != nil {
			return false
		}
		return ok && got.Status == order.StatusShipped
	}, time.Second, 10*time.Millisecond)
}

// Abandoning the wait must not cancel the command itself; the mutation still
// lands.
func TestDoOutlivesCallerCancellation(t *testing.T) {
	eng, c := startEngine(t)
	productID := uuid.New()

	block := make(chan struct{})
	go eng.Do(c, func(context.Context) { <-block })

	callerCtx, cancel := context.WithCancel(c)
	queued := make(chan error, 1)
	go func() {
		queued <- eng.Do(callerCtx, func(cc context.Context) {
			_, err := eng.Ledger().AddItem(cc, cart.Product{
				ID:        productID,
				Name:      "sneaker",
				UnitPrice: decimal.NewFromInt(10),
			}, 1, cart.Variant{})
			assert.NoError(t, err)
		})
	}()

	// Give the command time to enqueue behind the blocked one, then abandon.
	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-queued, context.Canceled)
	close(block)

	assert.Eventually(t, func() bool {
		var empty bool
		if err := eng.Do(c, func(context.Context) {
			empty = eng.Ledger().Empty()
		}); err != nil {
			return false
		}
		return !empty
	}, time.Second, 10*time.Millisecond)
}
