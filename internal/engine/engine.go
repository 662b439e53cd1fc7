package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pratama/storefront/internal/cart"
	"github.com/pratama/storefront/internal/inventory"
	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/order"
	"github.com/pratama/storefront/internal/otel"
)

// Event is a message delivered on the push channel. Each concrete event type
// is dispatched to exactly one handler that updates exactly one state slice.
type Event interface {
	Kind() string
}

type StockUpdated struct {
	Update inventory.StockUpdate
}

func (StockUpdated) Kind() string { return "stockUpdate" }

type OrderUpdated struct {
	Order order.Order
}

func (OrderUpdated) Kind() string { return "orderUpdated" }

type command struct {
	fn   func(context.Context)
	done chan struct{}
}

// Engine is the single logical owner of all shopper-session state. One
// goroutine (Run) drives the loop; push events and user commands enter through
// channels and are applied strictly one at a time, so no interleaved partial
// write can occur. Network calls happen outside the loop and re-enter their
// results as commands.
type Engine struct {
	ledger  *cart.Ledger
	book    *inventory.Book
	tracker *order.Tracker

	events   chan Event
	commands chan command
}

func New(ledger *cart.Ledger, book *inventory.Book, tracker *order.Tracker) *Engine {
	return &Engine{
		ledger:   ledger,
		book:     book,
		tracker:  tracker,
		events:   make(chan Event, 64),
		commands: make(chan command, 64),
	}
}

func (e *Engine) Ledger() *cart.Ledger    { return e.ledger }
func (e *Engine) Book() *inventory.Book   { return e.book }
func (e *Engine) Tracker() *order.Tracker { return e.tracker }

// Publish delivers a push event into the inbox.
func (e *Engine) Publish(c context.Context, ev Event) {
	select {
	case e.events <- ev:
	case <-c.Done():
	}
}

// Do schedules fn on the event loop and waits for it to finish. Cancelling c
// abandons only the local wait: the command still executes, matching the rule
// that leaving a view never cancels an already-dispatched operation.
func (e *Engine) Do(c context.Context, fn func(context.Context)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case e.commands <- cmd:
	case <-c.Done():
		return c.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-c.Done():
		return c.Err()
	}
}

// Run drives the loop until the context ends.
func (e *Engine) Run(c context.Context) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Engine Run").
		Logger()

	logger.Info().Msg("engine loop started")
	for {
		select {
		case <-c.Done():
			logger.Info().Msg("engine loop stopped")
			return
		case ev := <-e.events:
			e.dispatch(c, ev)
		case cmd := <-e.commands:
			cmd.fn(c)
			close(cmd.done)
		}
	}
}

func (e *Engine) dispatch(c context.Context, ev Event) {
	c, span := otel.Tracer.Start(c, "Engine dispatch")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Engine dispatch").
		Str("event", ev.Kind()).
		Logger()
	c = logger.WithContext(c)

	switch ev := ev.(type) {
	case StockUpdated:
		e.handleStockUpdated(c, ev)
	case OrderUpdated:
		e.handleOrderUpdated(c, ev)
	default:
		logger.Warn().Msg("dropping unknown event")
	}
}

// handleStockUpdated touches only the inventory slice. The ledger is read to
// derive warnings but never mutated.
func (e *Engine) handleStockUpdated(c context.Context, ev StockUpdated) {
	e.book.Apply(c, ev.Update, e.ledger.Items())
}

// handleOrderUpdated touches only the order slice.
func (e *Engine) handleOrderUpdated(c context.Context, ev OrderUpdated) {
	e.tracker.Adopt(c, ev.Order)
}

// Revalidate opportunistically refreshes price and stock for everything in
// the cart. It runs on cart-view mount and before checkout starts, not on
// every read, to bound request volume. The fetches happen outside the loop;
// results are applied as one serialized command.
func (e *Engine) Revalidate(c context.Context, fetcher *inventory.Fetcher) error {
	c, span := otel.Tracer.Start(c, "Engine Revalidate")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Engine Revalidate").
		Logger()

	var productIDs []uuid.UUID
	err := e.Do(c, func(context.Context) {
		productIDs = e.ledger.ProductIDs()
	})
	if err != nil {
		return err
	}
	if len(productIDs) == 0 {
		return nil
	}

	logger.Info().Int("productCount", len(productIDs)).Msg("revalidating cart contents")
	states, fetchErr := fetcher.FetchAll(c, productIDs)
	if fetchErr != nil {
		otel.RecordError(fetchErr, span)
		logger.Warn().Err(fetchErr).Msg("partial cart revalidation")
	}

	err = e.Do(c, func(cc context.Context) {
		for _, state := range states {
			if err := e.ledger.SetUnitPrice(cc, state.ProductID, state.UnitPrice); err != nil {
				zerolog.Ctx(cc).Warn().Err(err).Msg("failed persisting revalidated price")
			}
			e.book.Apply(cc, inventory.StockUpdate{
				ProductID:         state.ProductID,
				AvailableQuantity: state.AvailableQuantity,
			}, e.ledger.Items())
		}
	})
	if err != nil {
		return err
	}
	return fetchErr
}
