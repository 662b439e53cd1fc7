package cart

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	inErrors "github.com/pratama/storefront/internal/errors"
	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/otel"
)

// MaxLineQuantity caps a line when no stock snapshot exists for its product.
const MaxLineQuantity = 999

// Variant holds the optional attributes distinguishing two lines of the same
// product.
type Variant struct {
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
}

type Product struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type LineItem struct {
	Key       string          `json:"key"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int32           `json:"quantity"`
	Variant   Variant         `json:"variant"`
}

// Total is the line amount at the current unit price, rounded once per line.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt32(li.Quantity)).Round(2)
}

// ItemKey derives the identity of a line from product and variant, so the same
// product in two variants occupies two lines.
func ItemKey(productID uuid.UUID, variant Variant) string {
	h := sha256.New()
	h.Write([]byte(productID.String()))
	h.Write([]byte{0})
	h.Write([]byte(variant.Size))
	h.Write([]byte{0})
	h.Write([]byte(variant.Color))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// StockView exposes the last-known available quantity for a product. The cart
// only consults it to clamp quantities; it never trusts it as authoritative.
type StockView interface {
	Available(productID uuid.UUID) (int32, bool)
}

// Ledger is the shopper's transient cart state. It is owned by the engine
// event loop: all mutations and reads are serialized through it, so the ledger
// itself carries no locking. Totals are always recomputed from live line data,
// never cached. Every mutation persists a local snapshot for
// reload-resilience.
type Ledger struct {
	sessionID string
	items     map[string]LineItem
	stock     StockView
	store     *SnapshotStore
}

func NewLedger(sessionID string, stock StockView, store *SnapshotStore) *Ledger {
	return &Ledger{
		sessionID: sessionID,
		items:     map[string]LineItem{},
		stock:     stock,
		store:     store,
	}
}

func (l *Ledger) clampQuantity(productID uuid.UUID, qty int32) int32 {
	max := int32(MaxLineQuantity)
	if l.stock != nil {
		if available, ok := l.stock.Available(productID); ok {
			max = available
		}
	}
	if qty > max {
		qty = max
	}
	if qty < 1 {
		qty = 1
	}
	return qty
}

// AddItem inserts a line or merges quantity into an existing line for the same
// product and variant.
func (l *Ledger) AddItem(
	c context.Context,
	product Product,
	qty int32,
	variant Variant,
) (LineItem, error) {
	c, span := otel.Tracer.Start(c, "Ledger AddItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Ledger AddItem").
		Str(log.KeyProductID, product.ID.String()).
		Int32(log.KeyQuantity, qty).
		Logger()

	if qty < 1 {
		err := fmt.Errorf("quantity=%d must be at least 1: %w", qty, inErrors.ErrValidation)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return LineItem{}, err
	}

	key := ItemKey(product.ID, variant)
	item, ok := l.items[key]
	if ok {
		logger.Info().Str(log.KeyItemKey, key).Msg("merging quantity into existing line")
		item.Quantity = l.clampQuantity(product.ID, item.Quantity+qty)
		item.UnitPrice = product.UnitPrice
	} else {
		item = LineItem{
			Key:       key,
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.UnitPrice,
			Quantity:  l.clampQuantity(product.ID, qty),
			Variant:   variant,
		}
	}
	l.items[key] = item

	logger.Info().
		Str(log.KeyItemKey, key).
		Int32(log.KeyQuantity, item.Quantity).
		Msg("added line item")
	l.persist()
	return item, nil
}

// UpdateQuantity sets a line's quantity. A quantity below 1 removes the line.
func (l *Ledger) UpdateQuantity(c context.Context, key string, qty int32) error {
	c, span := otel.Tracer.Start(c, "Ledger UpdateQuantity")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Ledger UpdateQuantity").
		Str(log.KeyItemKey, key).
		Int32(log.KeyQuantity, qty).
		Logger()

	item, ok := l.items[key]
	if !ok {
		err := fmt.Errorf("itemKey=%s: %w", key, inErrors.ErrItemNotFound)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	if qty < 1 {
		logger.Info().Msg("quantity dropped below 1, removing line")
		delete(l.items, key)
		l.persist()
		return nil
	}

	item.Quantity = l.clampQuantity(item.ProductID, qty)
	l.items[key] = item
	logger.Info().Int32(log.KeyQuantity, item.Quantity).Msg("updated line quantity")
	l.persist()
	return nil
}

func (l *Ledger) RemoveItem(c context.Context, key string) error {
	c, span := otel.Tracer.Start(c, "Ledger RemoveItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Ledger RemoveItem").
		Str(log.KeyItemKey, key).
		Logger()

	if _, ok := l.items[key]; !ok {
		err := fmt.Errorf("itemKey=%s: %w", key, inErrors.ErrItemNotFound)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	delete(l.items, key)
	logger.Info().Msg("removed line item")
	l.persist()
	return nil
}

func (l *Ledger) Clear(c context.Context) error {
	c, span := otel.Tracer.Start(c, "Ledger Clear")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Ledger Clear").
		Logger()

	l.items = map[string]LineItem{}
	logger.Info().Msg("cleared cart")
	l.persist()
	return nil
}

func (l *Ledger) Empty() bool {
	return len(l.items) == 0
}

// Items returns the lines in deterministic key order.
func (l *Ledger) Items() []LineItem {
	items := make([]LineItem, 0, len(l.items))
	for _, item := range l.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items
}

func (l *Ledger) Item(key string) (LineItem, bool) {
	item, ok := l.items[key]
	return item, ok
}

// Subtotal recomputes the cart amount from current line data on every call so
// an upstream price change is reflected, never masked by a stale cached total.
func (l *Ledger) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range l.items {
		subtotal = subtotal.Add(item.Total())
	}
	return subtotal
}

// ProductIDs lists the distinct products referenced by the cart, for stock
// reconciliation and revalidation.
func (l *Ledger) ProductIDs() []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	ids := []uuid.UUID{}
	for _, item := range l.items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// SetUnitPrice adopts a revalidated price for every line of the product.
func (l *Ledger) SetUnitPrice(c context.Context, productID uuid.UUID, price decimal.Decimal) error {
	changed := false
	for key, item := range l.items {
		if item.ProductID != productID || item.UnitPrice.Equal(price) {
			continue
		}
		item.UnitPrice = price
		l.items[key] = item
		changed = true
	}
	if !changed {
		return nil
	}
	l.persist()
	return nil
}

// Restore reloads the persisted snapshot, reconstructing the cart after a
// reload. Persisted prices may be stale until revalidated.
func (l *Ledger) Restore(c context.Context) error {
	c, span := otel.Tracer.Start(c, "Ledger Restore")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Ledger Restore").
		Str(log.KeySessionID, l.sessionID).
		Logger()

	if l.store == nil {
		return nil
	}

	logger.Info().Msg("restoring cart snapshot")
	items, err := l.store.Load(c, l.sessionID)
	if err != nil {
		err = fmt.Errorf("failed restoring cart snapshot with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	l.items = map[string]LineItem{}
	for _, item := range items {
		l.items[item.Key] = item
	}
	logger.Info().Int("lineCount", len(items)).Msg("restored cart snapshot")
	return nil
}

// persist hands the serialized lines to the background saver so the event
// loop never waits on redis.
func (l *Ledger) persist() {
	if l.store == nil {
		return
	}
	l.store.Enqueue(l.sessionID, l.Items())
}
