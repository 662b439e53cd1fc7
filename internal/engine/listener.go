package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pratama/storefront/internal/inventory"
	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/order"
	"github.com/pratama/storefront/internal/otel"
)

type pushEnvelope struct {
	Type              string       `json:"type"`
	ProductID         string       `json:"product_id"`
	AvailableQuantity int32        `json:"available_quantity"`
	Order             *order.Order `json:"order"`
}

// Listener consumes the per-session push channel. Delivery is at-most-once
// with no backlog: events missed during a disconnect are gone, so every
// successful (re)subscribe is followed by a full reconciliation pass that
// re-fetches stock for each product in the cart. Channel loss reconnects with
// bounded exponential backoff for as long as the session lives.
type Listener struct {
	cache   *redis.Client
	engine  *Engine
	fetcher *inventory.Fetcher
	channel string
}

func NewListener(
	cache *redis.Client,
	engine *Engine,
	fetcher *inventory.Fetcher,
	channel string,
) *Listener {
	return &Listener{cache: cache, engine: engine, fetcher: fetcher, channel: channel}
}

func (l *Listener) Listen(c context.Context) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Listener Listen").
		Str(log.KeyChannel, l.channel).
		Logger()
	c = logger.WithContext(c)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 500 * time.Millisecond
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0

	for {
		if c.Err() != nil {
			logger.Info().Msg("push listener stopped")
			return
		}

		logger.Info().Msg("subscribing to push channel")
		sub := l.cache.Subscribe(c, l.channel)
		_, err := sub.Receive(c)
		if err != nil {
			err = fmt.Errorf("failed subscribing to push channel with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			sub.Close()
			if !l.wait(c, retry.NextBackOff()) {
				return
			}
			continue
		}
		retry.Reset()
		logger.Info().Msg("subscribed to push channel")

		// No replay of missed events, so resynchronize from scratch.
		l.reconcile(c)

		l.consume(c, sub)
		sub.Close()
		if !l.wait(c, retry.NextBackOff()) {
			return
		}
	}
}

func (l *Listener) wait(c context.Context, d time.Duration) bool {
	select {
	case <-c.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (l *Listener) consume(c context.Context, sub *redis.PubSub) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Listener consume").
		Logger()

	for {
		msg, err := sub.ReceiveMessage(c)
		if err != nil {
			if c.Err() != nil {
				return
			}
			err = fmt.Errorf("push channel lost with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		l.handle(c, msg.Payload)
	}
}

func (l *Listener) handle(c context.Context, payload string) {
	c, span := otel.Tracer.Start(c, "Listener handle")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Listener handle").
		Logger()

	env := pushEnvelope{}
	err := json.Unmarshal([]byte(payload), &env)
	if err != nil {
		err = fmt.Errorf("failed decoding push event with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}

	switch env.Type {
	case "stockUpdate":
		productID, err := uuid.Parse(env.ProductID)
		if err != nil {
			err = fmt.Errorf("invalid product id in push event with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		l.engine.Publish(c, StockUpdated{Update: inventory.StockUpdate{
			ProductID:         productID,
			AvailableQuantity: env.AvailableQuantity,
		}})
	case "orderUpdated":
		if env.Order == nil {
			logger.Warn().Msg("orderUpdated event without order payload")
			return
		}
		l.engine.Publish(c, OrderUpdated{Order: *env.Order})
	default:
		logger.Warn().Str("type", env.Type).Msg("dropping unknown push event type")
	}
}

// reconcile re-fetches current stock for every product in the cart and applies
// the results as if they had been pushed.
func (l *Listener) reconcile(c context.Context) {
	c, span := otel.Tracer.Start(c, "Listener reconcile")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Listener reconcile").
		Str(log.KeyProcess, "reconciling stock").
		Logger()

	var productIDs []uuid.UUID
	_ = l.engine.Do(c, func(context.Context) {
		productIDs = l.engine.ledger.ProductIDs()
	})
	if len(productIDs) == 0 {
		logger.Info().Msg("cart is empty, nothing to reconcile")
		return
	}

	logger.Info().Int("productCount", len(productIDs)).Msg("reconciling stock")
	states, err := l.fetcher.FetchAll(c, productIDs)
	if err != nil {
		err = fmt.Errorf("partial stock reconciliation with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
	}

	_ = l.engine.Do(c, func(cc context.Context) {
		for _, state := range states {
			l.engine.book.Apply(cc, inventory.StockUpdate{
				ProductID:         state.ProductID,
				AvailableQuantity: state.AvailableQuantity,
			}, l.engine.ledger.Items())
		}
	})
	logger.Info().Int("appliedCount", len(states)).Msg("reconciled stock")
}
