package order

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	inErrors "github.com/pratama/storefront/internal/errors"
	"github.com/pratama/storefront/internal/log"
)

// Tracker holds the shopper's view of their orders. It is owned by the engine
// event loop; every method here is pure state manipulation so the loop is
// never blocked on the network. Pushed statuses are adopted verbatim: the
// server is authoritative and may move status in ways that look non-monotonic
// locally, so no forward-only transition table is enforced here.
type Tracker struct {
	orders     map[uuid.UUID]Order
	cancelling map[uuid.UUID]bool
}

func NewTracker() *Tracker {
	return &Tracker{
		orders:     map[uuid.UUID]Order{},
		cancelling: map[uuid.UUID]bool{},
	}
}

// Track registers an order created by a successful checkout submission.
func (t *Tracker) Track(c context.Context, o Order) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Tracker Track").
		Str(log.KeyOrderID, o.ID.String()).
		Str(log.KeyOrderStatus, string(o.Status)).
		Logger()

	t.orders[o.ID] = o
	logger.Info().Msg("tracking order")
}

// Adopt applies a server-pushed order state verbatim. Any optimistic
// cancelling flag is reconciled away by the authoritative state.
func (t *Tracker) Adopt(c context.Context, o Order) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Tracker Adopt").
		Str(log.KeyOrderID, o.ID.String()).
		Str(log.KeyOrderStatus, string(o.Status)).
		Logger()

	t.orders[o.ID] = o
	delete(t.cancelling, o.ID)
	logger.Info().Msg("adopted pushed order state")
}

func (t *Tracker) Get(id uuid.UUID) (Order, bool) {
	o, ok := t.orders[id]
	return o, ok
}

// Cancelling reports whether a cancellation request is optimistically pending
// for the order, awaiting the server's actual response.
func (t *Tracker) Cancelling(id uuid.UUID) bool {
	return t.cancelling[id]
}

// MarkCancelling flags a cancellation request. Only a still-pending order may
// be cancelled by the shopper.
func (t *Tracker) MarkCancelling(c context.Context, id uuid.UUID) error {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Tracker MarkCancelling").
		Str(log.KeyOrderID, id.String()).
		Logger()

	o, ok := t.orders[id]
	if !ok {
		err := fmt.Errorf("orderId=%s: %w", id.String(), inErrors.ErrOrderNotFound)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	if o.Status != StatusPending {
		err := fmt.Errorf(
			"orderId=%s has status=%s: %w",
			id.String(),
			o.Status,
			inErrors.ErrOrderNotCancelable,
		)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	t.cancelling[id] = true
	logger.Info().Msg("marked order as cancelling")
	return nil
}

// UnmarkCancelling clears the optimistic flag after a failed cancel request.
func (t *Tracker) UnmarkCancelling(id uuid.UUID) {
	delete(t.cancelling, id)
}

// Orders returns the tracked orders, newest first.
func (t *Tracker) Orders() []Order {
	orders := make([]Order, 0, len(t.orders))
	for _, o := range t.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders
}
